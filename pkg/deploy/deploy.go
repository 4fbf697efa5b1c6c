package deploy

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/wharf/pkg/cluster"
	"github.com/cuemby/wharf/pkg/log"
	"github.com/cuemby/wharf/pkg/manifest"
	"github.com/cuemby/wharf/pkg/types"
)

// AnnotationChangeCause records why a deployment revision was created
const AnnotationChangeCause = "kubernetes.io/change-cause"

var (
	// ErrNamespaceCreateFailed means the target namespace could not be created
	ErrNamespaceCreateFailed = errors.New("namespace create failed")

	// ErrApplyFailed wraps errors from submitting the manifest
	ErrApplyFailed = errors.New("apply failed")
)

// Preparator readies a namespace for a release and applies its manifest
type Preparator struct {
	manager   cluster.Manager
	cluster   *types.Cluster
	namespace string
	appSlug   string
	env       string
}

// NewPreparator creates a preparator for one (cluster, namespace, app, env)
func NewPreparator(mgr cluster.Manager, c *types.Cluster, namespace, appSlug, env string) *Preparator {
	return &Preparator{
		manager:   mgr,
		cluster:   c,
		namespace: namespace,
		appSlug:   appSlug,
		env:       env,
	}
}

// SecretResult describes the image pull secret used by the release
type SecretResult struct {
	Name   string
	Reused bool
}

// ApplyResult describes an apply. AnnotateErr is informational only.
type ApplyResult struct {
	DeploymentName string
	Annotated      bool
	AnnotateErr    error
}

// PrepareNamespace creates the namespace if missing and reports whether it did
func (p *Preparator) PrepareNamespace(ctx context.Context) (bool, error) {
	exists, err := p.manager.NamespaceExists(ctx, p.cluster.ContextName, p.namespace)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrNamespaceCreateFailed, p.namespace, err)
	}
	if exists {
		return false, nil
	}

	created, err := p.manager.CreateNamespace(ctx, p.cluster.ContextName, p.namespace)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrNamespaceCreateFailed, p.namespace, err)
	}
	return created, nil
}

// CreateImagePullSecrets ensures the registry secret for (app, env) exists.
// An existing secret is reused.
func (p *Preparator) CreateImagePullSecrets(ctx context.Context) (SecretResult, error) {
	name, err := p.manager.CreateImagePullSecret(ctx, cluster.PullSecretRequest{
		AppSlug:     p.appSlug,
		Env:         p.env,
		ClusterSlug: p.cluster.Slug,
		KubeContext: p.cluster.ContextName,
		Namespace:   p.namespace,
	})
	if err != nil {
		if cluster.IsAlreadyExists(err) {
			if name == "" {
				name = cluster.PullSecretName(p.appSlug, p.env)
			}
			return SecretResult{Name: name, Reused: true}, nil
		}
		return SecretResult{}, fmt.Errorf("failed to create image pull secret: %w", err)
	}
	return SecretResult{Name: name}, nil
}

// ApplyDeployment applies the manifest, then annotates the deployment with
// changeCause when its name is known. Only the apply can fail the call.
func (p *Preparator) ApplyDeployment(ctx context.Context, m *manifest.Manifest, changeCause string) (ApplyResult, error) {
	content, err := m.Final()
	if err != nil {
		return ApplyResult{}, fmt.Errorf("%w: %v", ErrApplyFailed, err)
	}
	if err := p.manager.ApplyContent(ctx, p.cluster.ContextName, p.namespace, content); err != nil {
		return ApplyResult{}, fmt.Errorf("%w: %v", ErrApplyFailed, err)
	}

	details := m.Details()
	if details.DeploymentName == nil {
		log.Logger.Warn().
			Str("namespace", p.namespace).
			Msg("Manifest has no deployment name, skipping change-cause annotation")
		return ApplyResult{}, nil
	}

	result := ApplyResult{DeploymentName: *details.DeploymentName}
	err = p.manager.AnnotateDeployment(ctx, p.cluster.ContextName, p.namespace, result.DeploymentName, map[string]string{
		AnnotationChangeCause: changeCause,
	})
	if err != nil {
		log.Logger.Warn().Err(err).
			Str("deployment", result.DeploymentName).
			Msg("Failed to annotate deployment")
		result.AnnotateErr = err
		return result, nil
	}
	result.Annotated = true
	return result, nil
}
