package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cuemby/wharf/pkg/metrics"
	"github.com/cuemby/wharf/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
)

const testContext = "prod-ctx"

var testRegistry = Registry{
	Server:   "registry.example.com",
	Username: "robot",
	Password: "s3cret",
}

func newFakeManager(objects ...runtime.Object) (*KubeManager, *fake.Clientset) {
	cs := fake.NewSimpleClientset(objects...)
	return NewKubeManagerWithClients(testRegistry, map[string]kubernetes.Interface{testContext: cs}), cs
}

func int32Ptr(v int32) *int32 { return &v }

// TestNamespaces tests namespace existence and creation
func TestNamespaces(t *testing.T) {
	ctx := context.Background()
	m, _ := newFakeManager(&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "existing"}})

	exists, err := m.NamespaceExists(ctx, testContext, "existing")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = m.NamespaceExists(ctx, testContext, "fresh")
	require.NoError(t, err)
	assert.False(t, exists)

	created, err := m.CreateNamespace(ctx, testContext, "fresh")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = m.CreateNamespace(ctx, testContext, "fresh")
	require.NoError(t, err)
	assert.False(t, created)
}

// TestCreateImagePullSecret tests secret contents and the already-exists path
func TestCreateImagePullSecret(t *testing.T) {
	ctx := context.Background()
	m, cs := newFakeManager()

	req := PullSecretRequest{AppSlug: "web", Env: "prod", ClusterSlug: "prod", KubeContext: testContext, Namespace: "shop"}

	name, err := m.CreateImagePullSecret(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "web-prod-registry", name)

	secret, err := cs.CoreV1().Secrets("shop").Get(ctx, name, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.SecretTypeDockerConfigJson, secret.Type)

	var cfg struct {
		Auths map[string]map[string]string `json:"auths"`
	}
	require.NoError(t, json.Unmarshal(secret.Data[corev1.DockerConfigJsonKey], &cfg))
	assert.Equal(t, "robot", cfg.Auths["registry.example.com"]["username"])

	name, err = m.CreateImagePullSecret(ctx, req)
	assert.Equal(t, "web-prod-registry", name)
	assert.True(t, IsAlreadyExists(err))
}

// TestCreateImagePullSecretNoRegistry tests the missing registry error
func TestCreateImagePullSecretNoRegistry(t *testing.T) {
	cs := fake.NewSimpleClientset()
	m := NewKubeManagerWithClients(Registry{}, map[string]kubernetes.Interface{testContext: cs})

	_, err := m.CreateImagePullSecret(context.Background(), PullSecretRequest{
		AppSlug: "web", Env: "prod", KubeContext: testContext, Namespace: "shop",
	})
	assert.Error(t, err)
	assert.False(t, IsAlreadyExists(err))
}

// TestCreateImagePullSecretReusesWithoutRegistry tests that an existing secret
// is reused when no registry is configured
func TestCreateImagePullSecretReusesWithoutRegistry(t *testing.T) {
	cs := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "web-prod-registry", Namespace: "shop"},
		Type:       corev1.SecretTypeDockerConfigJson,
	})
	m := NewKubeManagerWithClients(Registry{}, map[string]kubernetes.Interface{testContext: cs})

	name, err := m.CreateImagePullSecret(context.Background(), PullSecretRequest{
		AppSlug: "web", Env: "prod", KubeContext: testContext, Namespace: "shop",
	})
	assert.Equal(t, "web-prod-registry", name)
	assert.True(t, IsAlreadyExists(err), "got %v", err)
}

// TestAnnotateAndScale tests merge patches on a deployment
func TestAnnotateAndScale(t *testing.T) {
	ctx := context.Background()
	m, cs := newFakeManager(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "shop"},
		Spec:       appsv1.DeploymentSpec{Replicas: int32Ptr(1)},
	})

	err := m.AnnotateDeployment(ctx, testContext, "shop", "web", map[string]string{
		"kubernetes.io/change-cause": "release r1",
	})
	require.NoError(t, err)

	require.NoError(t, m.ScaleDeployment(ctx, testContext, "shop", "web", 3))

	dep, err := cs.AppsV1().Deployments("shop").Get(ctx, "web", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "release r1", dep.Annotations["kubernetes.io/change-cause"])
	assert.Equal(t, int32(3), *dep.Spec.Replicas)

	err = m.ScaleDeployment(ctx, testContext, "shop", "missing", 3)
	assert.Error(t, err)
}

// TestGetAllIngresses tests the cluster-wide ingress listing
func TestGetAllIngresses(t *testing.T) {
	m, _ := newFakeManager(
		&networkingv1.Ingress{ObjectMeta: metav1.ObjectMeta{Name: "a", Namespace: "ns-a"}},
		&networkingv1.Ingress{ObjectMeta: metav1.ObjectMeta{Name: "b", Namespace: "ns-b"}},
	)

	ingresses, err := m.GetAllIngresses(context.Background(), testContext)
	require.NoError(t, err)
	assert.Len(t, ingresses, 2)
}

// TestGetPodsAndLogs tests label-filtered pods and concatenated logs
func TestGetPodsAndLogs(t *testing.T) {
	ctx := context.Background()
	pod := func(name, version string) *corev1.Pod {
		return &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: "shop",
				Labels:    map[string]string{"main-app": "web", "app-version": version},
			},
			Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "web"}}},
		}
	}
	m, _ := newFakeManager(pod("web-1", "v1"), pod("web-2", "v2"))

	pods, err := m.GetPods(ctx, testContext, "shop", "main-app=web,app-version=v2")
	require.NoError(t, err)
	require.Len(t, pods, 1)
	assert.Equal(t, "web-2", pods[0].Name)

	logs, err := m.LogPodsByFilter(ctx, testContext, "shop", LogOptions{
		LabelSelector: "app-version=v2",
		Previous:      true,
		TailLines:     100,
	})
	require.NoError(t, err)
	assert.Contains(t, logs, "==> web-2/web <==")
	assert.Contains(t, logs, "fake logs")
	assert.NotContains(t, logs, "web-1")
}

// TestUnknownContext tests operations on a context that was never authenticated
func TestUnknownContext(t *testing.T) {
	m, _ := newFakeManager()

	_, err := m.GetPods(context.Background(), "other-ctx", "shop", "")
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	err = m.ApplyContent(context.Background(), testContext, "shop", "kind: ConfigMap")
	assert.Error(t, err, "typed-only contexts cannot apply")
}

// TestAuthenticateIdempotent tests that cached contexts authenticate without I/O
func TestAuthenticateIdempotent(t *testing.T) {
	m, _ := newFakeManager()
	c := &types.Cluster{Slug: "prod", ContextName: testContext}

	require.NoError(t, m.Authenticate(context.Background(), c, types.Ownership{Owner: "alice"}))
	require.NoError(t, m.Authenticate(context.Background(), c, types.Ownership{Owner: "alice"}))

	err := m.Authenticate(context.Background(), &types.Cluster{Slug: "bare"}, types.Ownership{})
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

// TestAuthenticateRecordsClusterHealth tests that each cluster's last
// authentication outcome shows on /health
func TestAuthenticateRecordsClusterHealth(t *testing.T) {
	m, _ := newFakeManager()
	m.kubeconfig = filepath.Join(t.TempDir(), "missing-kubeconfig")
	t.Cleanup(func() {
		for _, slug := range []string{"prod", "edge", "bare"} {
			metrics.UpdateComponent(metrics.ClusterComponent(slug), true, "")
		}
	})

	require.NoError(t, m.Authenticate(context.Background(), &types.Cluster{Slug: "prod", ContextName: testContext}, types.Ownership{}))
	assert.Error(t, m.Authenticate(context.Background(), &types.Cluster{Slug: "edge", ContextName: "edge-ctx"}, types.Ownership{}))
	assert.Error(t, m.Authenticate(context.Background(), &types.Cluster{Slug: "bare"}, types.Ownership{}))

	h := metrics.GetHealth()
	assert.Equal(t, metrics.StatusHealthy, h.Components["cluster/prod"])
	assert.Contains(t, h.Components["cluster/edge"], "edge-ctx")
	assert.Contains(t, h.Components["cluster/bare"], metrics.StatusUnhealthy)
	assert.Equal(t, metrics.StatusDegraded, h.Status)
	assert.Equal(t, []string{"cluster/bare", "cluster/edge"}, h.Degraded)
}

// TestDecodeObjects tests manifest splitting into unstructured objects
func TestDecodeObjects(t *testing.T) {
	objs, err := DecodeObjects(`apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
---
---
apiVersion: v1
kind: Service
metadata:
  name: web
  namespace: shop
`)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "Deployment", objs[0].GetKind())
	assert.Equal(t, "apps", objs[0].GroupVersionKind().Group)
	assert.Equal(t, "shop", objs[1].GetNamespace())

	_, err = DecodeObjects("kind: Service\nmetadata: {}\n")
	assert.Error(t, err)
}

// TestIsAlreadyExists tests the already-exists classification
func TestIsAlreadyExists(t *testing.T) {
	assert.False(t, IsAlreadyExists(nil))
	assert.True(t, IsAlreadyExists(ErrAlreadyExists))
	assert.True(t, IsAlreadyExists(errors.New(`secrets "web-prod-registry" already exists`)))
	assert.False(t, IsAlreadyExists(errors.New("forbidden")))
}
