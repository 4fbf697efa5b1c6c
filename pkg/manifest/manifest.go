package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// LabelAppVersion is stamped on pod templates by the build pipeline
	LabelAppVersion = "app-version"

	// LabelMainApp selects the pods of an app's main deployment
	LabelMainApp = "main-app"

	kindDeployment = "Deployment"
	kindIngress    = "Ingress"
)

// ErrEmptyManifest is returned when a manifest has no documents
var ErrEmptyManifest = errors.New("manifest has no documents")

// Details holds the fields derived from the manifest. A nil field was not
// declared.
type Details struct {
	DeploymentName *string
	AppVersion     *string
	Replicas       *int32
}

// Name returns the deployment name or an empty string
func (d Details) Name() string {
	if d.DeploymentName == nil {
		return ""
	}
	return *d.DeploymentName
}

// Version returns the app version or an empty string
func (d Details) Version() string {
	if d.AppVersion == nil {
		return ""
	}
	return *d.AppVersion
}

// IngressRule is a single host routed by an Ingress
type IngressRule struct {
	Host string
}

// IngressConfig lists the hosts declared by a manifest's Ingress documents
type IngressConfig struct {
	Rules []IngressRule
}

// Hosts returns the non-empty hosts in declaration order
func (c *IngressConfig) Hosts() []string {
	if c == nil {
		return nil
	}
	hosts := make([]string, 0, len(c.Rules))
	for _, r := range c.Rules {
		if r.Host != "" {
			hosts = append(hosts, r.Host)
		}
	}
	return hosts
}

// object is the subset of a Kubernetes object the processor reads
type object struct {
	Kind     string `yaml:"kind"`
	Metadata struct {
		Name   string            `yaml:"name"`
		Labels map[string]string `yaml:"labels"`
	} `yaml:"metadata"`
	Spec struct {
		Replicas *int32 `yaml:"replicas"`
		Template struct {
			Metadata struct {
				Labels map[string]string `yaml:"labels"`
			} `yaml:"metadata"`
		} `yaml:"template"`
		Rules []struct {
			Host string `yaml:"host"`
		} `yaml:"rules"`
	} `yaml:"spec"`
}

type document struct {
	node *yaml.Node
	obj  object
}

// Manifest is a parsed, rendered deployment manifest
type Manifest struct {
	raw     string
	docs    []*document
	mutated bool
}

// Parse decodes a multi-document YAML manifest
func Parse(content string) (*Manifest, error) {
	m := &Manifest{raw: content}

	dec := yaml.NewDecoder(strings.NewReader(content))
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
		if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
			// Empty document between separators
			continue
		}

		doc := &document{node: &node}
		if err := node.Decode(&doc.obj); err != nil {
			return nil, fmt.Errorf("failed to decode manifest document %d: %w", len(m.docs)+1, err)
		}
		m.docs = append(m.docs, doc)
	}

	if len(m.docs) == 0 {
		return nil, ErrEmptyManifest
	}
	return m, nil
}

func (m *Manifest) deployment() *document {
	for _, d := range m.docs {
		if d.obj.Kind == kindDeployment {
			return d
		}
	}
	return nil
}

// Details extracts the deployment name, app version and replica count
func (m *Manifest) Details() Details {
	var details Details

	dep := m.deployment()
	if dep == nil {
		return details
	}

	if name := dep.obj.Metadata.Name; name != "" {
		details.DeploymentName = &name
	}

	version := dep.obj.Spec.Template.Metadata.Labels[LabelAppVersion]
	if version == "" {
		version = dep.obj.Metadata.Labels[LabelAppVersion]
	}
	if version != "" {
		details.AppVersion = &version
	}

	if dep.obj.Spec.Replicas != nil {
		replicas := *dep.obj.Spec.Replicas
		details.Replicas = &replicas
	}

	return details
}

// Ingress returns the declared ingress rules, or nil when the manifest
// declares no Ingress
func (m *Manifest) Ingress() *IngressConfig {
	var cfg *IngressConfig
	for _, d := range m.docs {
		if d.obj.Kind != kindIngress {
			continue
		}
		if cfg == nil {
			cfg = &IngressConfig{}
		}
		for _, r := range d.obj.Spec.Rules {
			cfg.Rules = append(cfg.Rules, IngressRule{Host: r.Host})
		}
	}
	return cfg
}

// SetImage replaces the image of the deployment's first container
func (m *Manifest) SetImage(image string) error {
	dep := m.deployment()
	if dep == nil {
		return fmt.Errorf("manifest has no %s", kindDeployment)
	}
	containers := lookup(dep.node.Content[0], "spec", "template", "spec", "containers")
	if containers == nil || containers.Kind != yaml.SequenceNode || len(containers.Content) == 0 {
		return fmt.Errorf("deployment has no containers")
	}
	setScalar(containers.Content[0], "image", image, "!!str")
	m.mutated = true
	return nil
}

// SetReplicas sets the deployment's replica count
func (m *Manifest) SetReplicas(replicas int32) error {
	dep := m.deployment()
	if dep == nil {
		return fmt.Errorf("manifest has no %s", kindDeployment)
	}
	spec := lookup(dep.node.Content[0], "spec")
	if spec == nil || spec.Kind != yaml.MappingNode {
		return fmt.Errorf("deployment has no spec")
	}
	setScalar(spec, "replicas", strconv.Itoa(int(replicas)), "!!int")
	dep.obj.Spec.Replicas = &replicas
	m.mutated = true
	return nil
}

// Final returns the manifest ready to submit. Unmodified manifests are
// returned byte-for-byte.
func (m *Manifest) Final() (string, error) {
	if !m.mutated {
		return m.raw, nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, d := range m.docs {
		if err := enc.Encode(d.node); err != nil {
			return "", fmt.Errorf("failed to encode manifest: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// lookup walks mapping keys from node
func lookup(node *yaml.Node, path ...string) *yaml.Node {
	cur := node
	for _, key := range path {
		if cur == nil || cur.Kind != yaml.MappingNode {
			return nil
		}
		var next *yaml.Node
		for i := 0; i+1 < len(cur.Content); i += 2 {
			if cur.Content[i].Value == key {
				next = cur.Content[i+1]
				break
			}
		}
		cur = next
	}
	return cur
}

func setScalar(mapping *yaml.Node, key, value, tag string) {
	if existing := lookup(mapping, key); existing != nil {
		existing.Kind = yaml.ScalarNode
		existing.Tag = tag
		existing.Value = value
		existing.Content = nil
		return
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value},
	)
}
