package cluster

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cuemby/wharf/pkg/log"
	"github.com/cuemby/wharf/pkg/metrics"
	"github.com/cuemby/wharf/pkg/types"
	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	k8stypes "k8s.io/apimachinery/pkg/types"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	// FieldManager owns the fields wharf applies server-side
	FieldManager = "wharf"

	labelManagedBy = "app.kubernetes.io/managed-by"
)

// Registry holds the credentials written into image pull secrets
type Registry struct {
	Server   string
	Username string
	Password string
	Email    string
}

type clients struct {
	kube    kubernetes.Interface
	dynamic dynamic.Interface
	mapper  meta.RESTMapper
}

// KubeManager implements Manager with client-go. Clients are created per
// kube context on Authenticate and cached.
type KubeManager struct {
	kubeconfig string
	registry   Registry
	logger     zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*clients
}

// NewKubeManager creates a manager reading contexts from kubeconfig. An empty
// path uses the default loading rules (KUBECONFIG, ~/.kube/config).
func NewKubeManager(kubeconfig string, registry Registry) *KubeManager {
	return &KubeManager{
		kubeconfig: kubeconfig,
		registry:   registry,
		logger:     log.WithComponent("kube"),
		clients:    make(map[string]*clients),
	}
}

// NewKubeManagerWithClients creates a manager with pre-built typed clients
// per context. Dynamic apply is unavailable for these contexts.
func NewKubeManagerWithClients(registry Registry, kube map[string]kubernetes.Interface) *KubeManager {
	m := NewKubeManager("", registry)
	for name, cs := range kube {
		m.clients[name] = &clients{kube: cs}
	}
	return m
}

// Authenticate loads the cluster's kube context and verifies the API server
// answers. Already authenticated contexts return immediately. The outcome is
// recorded under metrics.ClusterComponent(cluster.Slug).
func (m *KubeManager) Authenticate(ctx context.Context, cluster *types.Cluster, owner types.Ownership) error {
	logger := log.WithCluster(cluster.Slug)
	component := metrics.ClusterComponent(cluster.Slug)

	if err := m.authenticate(cluster, owner, logger); err != nil {
		metrics.UpdateComponent(component, false, err.Error())
		logger.Warn().Err(err).Str("context", cluster.ContextName).Msg("Cluster authentication failed")
		return err
	}
	metrics.UpdateComponent(component, true, cluster.ContextName)
	return nil
}

func (m *KubeManager) authenticate(cluster *types.Cluster, owner types.Ownership, logger zerolog.Logger) error {
	if cluster.ContextName == "" {
		return fmt.Errorf("cluster %s: %w", cluster.Slug, ErrUnauthenticated)
	}

	m.mu.RLock()
	_, ok := m.clients[cluster.ContextName]
	m.mu.RUnlock()
	if ok {
		return nil
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if m.kubeconfig != "" {
		rules.ExplicitPath = m.kubeconfig
	}
	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		rules,
		&clientcmd.ConfigOverrides{CurrentContext: cluster.ContextName},
	).ClientConfig()
	if err != nil {
		return fmt.Errorf("failed to load kube context %s: %w", cluster.ContextName, err)
	}

	cs, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("failed to create clientset: %w", err)
	}
	dyn, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("failed to create dynamic client: %w", err)
	}

	version, err := cs.Discovery().ServerVersion()
	if err != nil {
		return fmt.Errorf("cluster %s unreachable: %w", cluster.Slug, err)
	}

	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(cs.Discovery()))

	m.mu.Lock()
	m.clients[cluster.ContextName] = &clients{kube: cs, dynamic: dyn, mapper: mapper}
	m.mu.Unlock()

	logger.Info().
		Str("context", cluster.ContextName).
		Str("owner", owner.Owner).
		Str("server_version", version.GitVersion).
		Msg("Authenticated cluster")
	return nil
}

func (m *KubeManager) clientsFor(kubeContext string) (*clients, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[kubeContext]
	if !ok {
		return nil, fmt.Errorf("kube context %q: %w", kubeContext, ErrUnauthenticated)
	}
	return c, nil
}

// NamespaceExists reports whether the namespace exists
func (m *KubeManager) NamespaceExists(ctx context.Context, kubeContext, namespace string) (bool, error) {
	c, err := m.clientsFor(kubeContext)
	if err != nil {
		return false, err
	}
	_, err = c.kube.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateNamespace creates the namespace and reports whether it was created
func (m *KubeManager) CreateNamespace(ctx context.Context, kubeContext, namespace string) (bool, error) {
	c, err := m.clientsFor(kubeContext)
	if err != nil {
		return false, err
	}
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   namespace,
			Labels: map[string]string{labelManagedBy: FieldManager},
		},
	}
	_, err = c.kube.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PullSecretName returns the name of the pull secret for an app environment
func PullSecretName(appSlug, env string) string {
	return fmt.Sprintf("%s-%s-registry", appSlug, env)
}

// CreateImagePullSecret creates a kubernetes.io/dockerconfigjson secret. An
// existing secret is reported as ErrAlreadyExists without reading the
// registry settings.
func (m *KubeManager) CreateImagePullSecret(ctx context.Context, req PullSecretRequest) (string, error) {
	name := PullSecretName(req.AppSlug, req.Env)

	c, err := m.clientsFor(req.KubeContext)
	if err != nil {
		return name, err
	}

	_, err = c.kube.CoreV1().Secrets(req.Namespace).Get(ctx, name, metav1.GetOptions{})
	if err == nil {
		return name, fmt.Errorf("secret %s/%s: %w", req.Namespace, name, ErrAlreadyExists)
	}
	if !k8serrors.IsNotFound(err) {
		return name, err
	}

	dockerConfig, err := m.dockerConfigJSON()
	if err != nil {
		return name, err
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: req.Namespace,
			Labels: map[string]string{
				labelManagedBy: FieldManager,
				"main-app":     req.AppSlug,
				"env":          req.Env,
			},
		},
		Type: corev1.SecretTypeDockerConfigJson,
		Data: map[string][]byte{
			corev1.DockerConfigJsonKey: dockerConfig,
		},
	}

	_, err = c.kube.CoreV1().Secrets(req.Namespace).Create(ctx, secret, metav1.CreateOptions{})
	return name, err
}

func (m *KubeManager) dockerConfigJSON() ([]byte, error) {
	if m.registry.Server == "" {
		return nil, errors.New("registry server is not configured")
	}
	auth := base64.StdEncoding.EncodeToString([]byte(m.registry.Username + ":" + m.registry.Password))
	return json.Marshal(map[string]any{
		"auths": map[string]any{
			m.registry.Server: map[string]string{
				"username": m.registry.Username,
				"password": m.registry.Password,
				"email":    m.registry.Email,
				"auth":     auth,
			},
		},
	})
}

// ApplyContent server-side applies every object in a multi-document
// manifest. Namespaced objects without a namespace land in namespace.
func (m *KubeManager) ApplyContent(ctx context.Context, kubeContext, namespace, content string) error {
	c, err := m.clientsFor(kubeContext)
	if err != nil {
		return err
	}
	if c.dynamic == nil || c.mapper == nil {
		return fmt.Errorf("kube context %q has no dynamic client", kubeContext)
	}

	objs, err := DecodeObjects(content)
	if err != nil {
		return err
	}

	for _, obj := range objs {
		gvk := obj.GroupVersionKind()
		mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		if err != nil {
			return fmt.Errorf("unknown resource %s: %w", gvk, err)
		}

		var ri dynamic.ResourceInterface
		if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
			if obj.GetNamespace() == "" {
				obj.SetNamespace(namespace)
			}
			ri = c.dynamic.Resource(mapping.Resource).Namespace(obj.GetNamespace())
		} else {
			ri = c.dynamic.Resource(mapping.Resource)
		}

		if _, err := ri.Apply(ctx, obj.GetName(), obj, metav1.ApplyOptions{
			FieldManager: FieldManager,
			Force:        true,
		}); err != nil {
			return fmt.Errorf("failed to apply %s/%s: %w", gvk.Kind, obj.GetName(), err)
		}
		m.logger.Debug().Str("kind", gvk.Kind).Str("name", obj.GetName()).Msg("Applied object")
	}
	return nil
}

// DecodeObjects splits a YAML or JSON manifest into unstructured objects
func DecodeObjects(content string) ([]*unstructured.Unstructured, error) {
	dec := utilyaml.NewYAMLOrJSONDecoder(strings.NewReader(content), 4096)
	var objs []*unstructured.Unstructured
	for {
		obj := &unstructured.Unstructured{}
		err := dec.Decode(&obj.Object)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode manifest: %w", err)
		}
		if len(obj.Object) == 0 {
			continue
		}
		if obj.GetKind() == "" || obj.GetName() == "" {
			return nil, fmt.Errorf("manifest object %d is missing kind or name", len(objs)+1)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// AnnotateDeployment merges annotations into the deployment's metadata
func (m *KubeManager) AnnotateDeployment(ctx context.Context, kubeContext, namespace, name string, annotations map[string]string) error {
	c, err := m.clientsFor(kubeContext)
	if err != nil {
		return err
	}
	patch, err := json.Marshal(map[string]any{
		"metadata": map[string]any{"annotations": annotations},
	})
	if err != nil {
		return err
	}
	_, err = c.kube.AppsV1().Deployments(namespace).Patch(ctx, name, k8stypes.MergePatchType, patch, metav1.PatchOptions{})
	return err
}

// ScaleDeployment sets the deployment's replica count
func (m *KubeManager) ScaleDeployment(ctx context.Context, kubeContext, namespace, name string, replicas int32) error {
	c, err := m.clientsFor(kubeContext)
	if err != nil {
		return err
	}
	patch, err := json.Marshal(map[string]any{
		"spec": map[string]any{"replicas": replicas},
	})
	if err != nil {
		return err
	}
	_, err = c.kube.AppsV1().Deployments(namespace).Patch(ctx, name, k8stypes.MergePatchType, patch, metav1.PatchOptions{})
	return err
}

// GetPods lists pods matching labelSelector
func (m *KubeManager) GetPods(ctx context.Context, kubeContext, namespace, labelSelector string) ([]corev1.Pod, error) {
	c, err := m.clientsFor(kubeContext)
	if err != nil {
		return nil, err
	}
	pods, err := c.kube.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, err
	}
	return pods.Items, nil
}

// GetAllIngresses lists ingresses across all namespaces
func (m *KubeManager) GetAllIngresses(ctx context.Context, kubeContext string) ([]networkingv1.Ingress, error) {
	c, err := m.clientsFor(kubeContext)
	if err != nil {
		return nil, err
	}
	list, err := c.kube.NetworkingV1().Ingresses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// LogPodsByFilter concatenates the logs of every container of the matching
// pods. Per-container read errors are written inline.
func (m *KubeManager) LogPodsByFilter(ctx context.Context, kubeContext, namespace string, opts LogOptions) (string, error) {
	pods, err := m.GetPods(ctx, kubeContext, namespace, opts.LabelSelector)
	if err != nil {
		return "", err
	}
	c, err := m.clientsFor(kubeContext)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, pod := range pods {
		for _, container := range pod.Spec.Containers {
			logOpts := &corev1.PodLogOptions{
				Container: container.Name,
				Previous:  opts.Previous,
			}
			if opts.TailLines > 0 {
				tail := opts.TailLines
				logOpts.TailLines = &tail
			}

			fmt.Fprintf(&b, "==> %s/%s <==\n", pod.Name, container.Name)
			raw, err := c.kube.CoreV1().Pods(namespace).GetLogs(pod.Name, logOpts).DoRaw(ctx)
			if err != nil {
				fmt.Fprintf(&b, "(logs unavailable: %v)\n", err)
				continue
			}
			b.Write(raw)
			if len(raw) > 0 && raw[len(raw)-1] != '\n' {
				b.WriteByte('\n')
			}
		}
	}
	return b.String(), nil
}
