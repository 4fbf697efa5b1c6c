package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webManifest = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
  labels:
    main-app: web
spec:
  replicas: 3
  selector:
    matchLabels:
      main-app: web
  template:
    metadata:
      labels:
        main-app: web
        app-version: v42
    spec:
      containers:
        - name: web
          image: registry.example.com/shop/web:abc123
---
apiVersion: v1
kind: Service
metadata:
  name: web
spec:
  ports:
    - port: 80
---
apiVersion: networking.k8s.io/v1
kind: Ingress
metadata:
  name: web
spec:
  rules:
    - host: api.example.com
    - host: www.example.com
`

// TestDetails tests structural extraction of name, version and replicas
func TestDetails(t *testing.T) {
	m, err := Parse(webManifest)
	require.NoError(t, err)

	details := m.Details()
	require.NotNil(t, details.DeploymentName)
	require.NotNil(t, details.AppVersion)
	require.NotNil(t, details.Replicas)
	assert.Equal(t, "web", details.Name())
	assert.Equal(t, "v42", details.Version())
	assert.Equal(t, int32(3), *details.Replicas)
}

// TestDetailsMissingFields tests that undeclared fields stay nil
func TestDetailsMissingFields(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{
			name: "deployment without name",
			manifest: `kind: Deployment
metadata: {}
spec:
  template:
    spec:
      containers: []
`,
		},
		{
			name: "no deployment at all",
			manifest: `kind: ConfigMap
metadata:
  name: settings
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(tt.manifest)
			require.NoError(t, err)

			details := m.Details()
			assert.Nil(t, details.DeploymentName)
			assert.Nil(t, details.AppVersion)
			assert.Nil(t, details.Replicas)
			assert.Equal(t, "", details.Name())
		})
	}
}

// TestAppVersionFallsBackToMetadata tests version lookup on deployment labels
func TestAppVersionFallsBackToMetadata(t *testing.T) {
	m, err := Parse(`kind: Deployment
metadata:
  name: worker
  labels:
    app-version: v7
`)
	require.NoError(t, err)
	assert.Equal(t, "v7", m.Details().Version())
}

// TestIngress tests ingress host extraction
func TestIngress(t *testing.T) {
	m, err := Parse(webManifest)
	require.NoError(t, err)

	ingress := m.Ingress()
	require.NotNil(t, ingress)
	assert.Equal(t, []string{"api.example.com", "www.example.com"}, ingress.Hosts())
}

// TestNoIngress tests that manifests without Ingress report none
func TestNoIngress(t *testing.T) {
	m, err := Parse(`kind: Deployment
metadata:
  name: web
`)
	require.NoError(t, err)
	assert.Nil(t, m.Ingress())

	var none *IngressConfig
	assert.Empty(t, none.Hosts())
}

// TestFinalUnchanged tests that an unmodified manifest is returned verbatim
func TestFinalUnchanged(t *testing.T) {
	m, err := Parse(webManifest)
	require.NoError(t, err)

	final, err := m.Final()
	require.NoError(t, err)
	assert.Equal(t, webManifest, final)
}

// TestSetImageAndReplicas tests manifest mutation and re-encoding
func TestSetImageAndReplicas(t *testing.T) {
	m, err := Parse(webManifest)
	require.NoError(t, err)

	require.NoError(t, m.SetImage("registry.example.com/shop/web:def456"))
	require.NoError(t, m.SetReplicas(5))

	final, err := m.Final()
	require.NoError(t, err)
	assert.Contains(t, final, "image: registry.example.com/shop/web:def456")

	reparsed, err := Parse(final)
	require.NoError(t, err)
	details := reparsed.Details()
	require.NotNil(t, details.Replicas)
	assert.Equal(t, int32(5), *details.Replicas)
	assert.Equal(t, "web", details.Name())
	assert.Len(t, reparsed.Ingress().Hosts(), 2)
}

// TestSetReplicasAddsField tests adding replicas to a spec without one
func TestSetReplicasAddsField(t *testing.T) {
	m, err := Parse(`kind: Deployment
metadata:
  name: web
spec:
  template: {}
`)
	require.NoError(t, err)
	require.NoError(t, m.SetReplicas(2))
	assert.Equal(t, int32(2), *m.Details().Replicas)
}

// TestParseErrors tests malformed and empty input
func TestParseErrors(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrEmptyManifest)

	_, err = Parse("kind: [unterminated")
	assert.Error(t, err)

	m, err := Parse("kind: Service\nmetadata:\n  name: web\n")
	require.NoError(t, err)
	assert.Error(t, m.SetImage("x"))
}
