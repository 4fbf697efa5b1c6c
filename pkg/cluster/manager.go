package cluster

import (
	"context"
	"errors"
	"strings"

	"github.com/cuemby/wharf/pkg/types"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
)

var (
	// ErrClusterNotFound is returned when no cluster record matches a slug
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrUnauthenticated is returned for clusters without a kube context
	ErrUnauthenticated = errors.New("cluster is not authenticated")

	// ErrAlreadyExists reports a resource that is already present
	ErrAlreadyExists = errors.New("already exists")
)

// PullSecretRequest scopes an image pull secret to an app environment
type PullSecretRequest struct {
	AppSlug     string
	Env         string
	ClusterSlug string
	KubeContext string
	Namespace   string
}

// LogOptions filters the pods and containers logs are read from
type LogOptions struct {
	LabelSelector string
	Previous      bool
	TailLines     int64
}

// Manager performs kubectl-equivalent operations against a cluster,
// addressed by kube context name
type Manager interface {
	// Authenticate establishes a client for the cluster's context. It is
	// idempotent.
	Authenticate(ctx context.Context, cluster *types.Cluster, owner types.Ownership) error

	NamespaceExists(ctx context.Context, kubeContext, namespace string) (bool, error)
	CreateNamespace(ctx context.Context, kubeContext, namespace string) (bool, error)

	// CreateImagePullSecret returns the secret name. An existing secret is
	// reported with an error matching IsAlreadyExists alongside the name.
	CreateImagePullSecret(ctx context.Context, req PullSecretRequest) (string, error)

	ApplyContent(ctx context.Context, kubeContext, namespace, content string) error
	AnnotateDeployment(ctx context.Context, kubeContext, namespace, name string, annotations map[string]string) error
	ScaleDeployment(ctx context.Context, kubeContext, namespace, name string, replicas int32) error

	GetPods(ctx context.Context, kubeContext, namespace, labelSelector string) ([]corev1.Pod, error)
	GetAllIngresses(ctx context.Context, kubeContext string) ([]networkingv1.Ingress, error)
	LogPodsByFilter(ctx context.Context, kubeContext, namespace string, opts LogOptions) (string, error)
}

// IsAlreadyExists reports whether err means the resource already exists
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAlreadyExists) ||
		k8serrors.IsAlreadyExists(err) ||
		strings.Contains(strings.ToLower(err.Error()), "already exists")
}
