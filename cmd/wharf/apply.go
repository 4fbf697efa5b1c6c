package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/wharf/pkg/manifest"
	"github.com/cuemby/wharf/pkg/storage"
	"github.com/cuemby/wharf/pkg/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a configuration file",
	Long: `Apply wharf records from a YAML file. Documents are separated by ---
and applied in order; existing records with the same name are replaced.

Examples:
  # Register a cluster and an app
  wharf apply -f cluster.yaml

  # Seed a release ready to roll out
  wharf apply -f release.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// Resource is one document of an apply file
type Resource struct {
	Kind     string                 `yaml:"kind"`
	Metadata ResourceMetadata       `yaml:"metadata"`
	Spec     map[string]interface{} `yaml:"spec"`
}

// ResourceMetadata names a resource. Name is the slug or ID of the record.
type ResourceMetadata struct {
	Name string `yaml:"name"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	resources, err := decodeResources(data)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, res := range resources {
		id, err := applyResource(store, res)
		if err != nil {
			return fmt.Errorf("failed to apply %s %q: %v", res.Kind, res.Metadata.Name, err)
		}
		fmt.Printf("✓ %s applied: %s\n", res.Kind, id)
	}
	return nil
}

// decodeResources splits a multi-document YAML file
func decodeResources(data []byte) ([]*Resource, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var out []*Resource
	for {
		var res Resource
		err := dec.Decode(&res)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %v", err)
		}
		if res.Kind == "" {
			continue
		}
		out = append(out, &res)
	}
	return out, nil
}

// applyResource writes res and returns the key it was stored under
func applyResource(store storage.Store, res *Resource) (string, error) {
	name := res.Metadata.Name

	switch res.Kind {
	case "Cluster":
		var c types.Cluster
		if err := decodeSpec(res.Spec, &c); err != nil {
			return "", err
		}
		c.Slug = orDefault(name, c.Slug)
		if c.Slug == "" {
			return "", fmt.Errorf("cluster name is required")
		}
		return c.Slug, store.CreateCluster(&c)

	case "Workspace":
		var w types.Workspace
		if err := decodeSpec(res.Spec, &w); err != nil {
			return "", err
		}
		w.Slug = orDefault(name, w.Slug)
		if w.Slug == "" {
			return "", fmt.Errorf("workspace name is required")
		}
		return w.Slug, store.CreateWorkspace(&w)

	case "Project":
		var p types.Project
		if err := decodeSpec(res.Spec, &p); err != nil {
			return "", err
		}
		p.Slug = orDefault(name, p.Slug)
		if p.Slug == "" {
			return "", fmt.Errorf("project name is required")
		}
		return p.Slug, store.CreateProject(&p)

	case "App":
		var a types.App
		if err := decodeSpec(res.Spec, &a); err != nil {
			return "", err
		}
		a.Slug = orDefault(name, a.Slug)
		if a.Slug == "" {
			return "", fmt.Errorf("app name is required")
		}
		return a.Slug, store.CreateApp(&a)

	case "Build":
		var b types.Build
		if err := decodeSpec(res.Spec, &b); err != nil {
			return "", err
		}
		b.ID = orDefault(name, orDefault(b.ID, uuid.New().String()))
		if b.DeployStatus == "" {
			b.DeployStatus = types.BuildStatusPending
		}
		return b.ID, store.CreateBuild(&b)

	case "Release":
		return applyRelease(store, name, res.Spec)

	case "Webhook":
		var w types.Webhook
		if err := decodeSpec(res.Spec, &w); err != nil {
			return "", err
		}
		w.ID = orDefault(name, orDefault(w.ID, uuid.New().String()))
		if w.URL == "" || w.Release == "" {
			return "", fmt.Errorf("webhook url and release are required")
		}
		return w.ID, store.CreateWebhook(&w)

	default:
		return "", fmt.Errorf("unsupported resource kind: %s", res.Kind)
	}
}

// applyRelease stores a pending release. A spec image or replicas count is
// written into the deployment manifest; an image defaults to the build's.
func applyRelease(store storage.Store, name string, spec map[string]interface{}) (string, error) {
	var r types.Release
	if err := decodeSpec(spec, &r); err != nil {
		return "", err
	}
	r.ID = orDefault(name, orDefault(r.ID, uuid.New().String()))
	if r.AppSlug == "" || r.Env == "" {
		return "", fmt.Errorf("release appSlug and env are required")
	}
	r.Status = types.ReleaseStatusPending
	r.Active = false

	image := getString(spec, "image", "")
	if image == "" && r.BuildID != "" {
		if build, err := store.GetBuild(r.BuildID); err == nil {
			image = build.Image
		}
	}
	replicas := getInt(spec, "replicas", 0)

	if r.DeploymentYAML != "" && (image != "" || replicas > 0) {
		m, err := manifest.Parse(r.DeploymentYAML)
		if err != nil {
			return "", fmt.Errorf("invalid deployment manifest: %v", err)
		}
		if image != "" {
			if err := m.SetImage(image); err != nil {
				return "", err
			}
		}
		if replicas > 0 {
			if err := m.SetReplicas(int32(replicas)); err != nil {
				return "", err
			}
		}
		if r.DeploymentYAML, err = m.Final(); err != nil {
			return "", err
		}
	}

	return r.ID, store.CreateRelease(&r)
}

// decodeSpec maps a YAML spec onto a record using its JSON field names
func decodeSpec(spec map[string]interface{}, v interface{}) error {
	if spec == nil {
		return nil
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("invalid spec: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid spec: %v", err)
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// Helper functions
func getString(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return defaultValue
}

func getInt(m map[string]interface{}, key string, defaultValue int) int {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case float64:
			return int(val)
		}
	}
	return defaultValue
}
