// Package clustertest provides an in-memory cluster.Manager for tests.
package clustertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/wharf/pkg/cluster"
	"github.com/cuemby/wharf/pkg/types"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Fake records calls and serves canned cluster state. Errors keyed by method
// name are returned from that method.
type Fake struct {
	mu sync.Mutex

	Namespaces map[string]bool
	Secrets    map[string]bool
	Ingresses  []networkingv1.Ingress

	// Pods returns the pod list for the n-th GetPods call (0-based)
	Pods func(n int) []corev1.Pod

	Logs         string
	PreviousLogs string

	Errors map[string]error

	Calls       []string
	Applied     []string
	Annotations map[string]map[string]string
	Scaled      map[string]int32
	LogRequests []cluster.LogOptions

	podCalls int
}

var _ cluster.Manager = (*Fake)(nil)

// New creates an empty fake
func New() *Fake {
	return &Fake{
		Namespaces:  make(map[string]bool),
		Secrets:     make(map[string]bool),
		Errors:      make(map[string]error),
		Annotations: make(map[string]map[string]string),
		Scaled:      make(map[string]int32),
	}
}

func (f *Fake) record(method string) error {
	f.Calls = append(f.Calls, method)
	return f.Errors[method]
}

// Called reports whether method was invoked
func (f *Fake) Called(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Calls {
		if c == method {
			return true
		}
	}
	return false
}

// PodCalls returns how many times GetPods ran
func (f *Fake) PodCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.podCalls
}

func (f *Fake) Authenticate(ctx context.Context, c *types.Cluster, owner types.Ownership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("Authenticate")
}

func (f *Fake) NamespaceExists(ctx context.Context, kubeContext, namespace string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("NamespaceExists"); err != nil {
		return false, err
	}
	return f.Namespaces[namespace], nil
}

func (f *Fake) CreateNamespace(ctx context.Context, kubeContext, namespace string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateNamespace"); err != nil {
		return false, err
	}
	if f.Namespaces[namespace] {
		return false, nil
	}
	f.Namespaces[namespace] = true
	return true, nil
}

func (f *Fake) CreateImagePullSecret(ctx context.Context, req cluster.PullSecretRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := cluster.PullSecretName(req.AppSlug, req.Env)
	if err := f.record("CreateImagePullSecret"); err != nil {
		return name, err
	}
	key := req.Namespace + "/" + name
	if f.Secrets[key] {
		return name, fmt.Errorf("secrets %q %w", name, cluster.ErrAlreadyExists)
	}
	f.Secrets[key] = true
	return name, nil
}

func (f *Fake) ApplyContent(ctx context.Context, kubeContext, namespace, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ApplyContent"); err != nil {
		return err
	}
	f.Applied = append(f.Applied, content)
	return nil
}

func (f *Fake) AnnotateDeployment(ctx context.Context, kubeContext, namespace, name string, annotations map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AnnotateDeployment"); err != nil {
		return err
	}
	f.Annotations[name] = annotations
	return nil
}

func (f *Fake) ScaleDeployment(ctx context.Context, kubeContext, namespace, name string, replicas int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ScaleDeployment"); err != nil {
		return err
	}
	f.Scaled[name] = replicas
	return nil
}

func (f *Fake) GetPods(ctx context.Context, kubeContext, namespace, labelSelector string) ([]corev1.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetPods"); err != nil {
		return nil, err
	}
	n := f.podCalls
	f.podCalls++
	if f.Pods == nil {
		return nil, nil
	}
	return f.Pods(n), nil
}

func (f *Fake) GetAllIngresses(ctx context.Context, kubeContext string) ([]networkingv1.Ingress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetAllIngresses"); err != nil {
		return nil, err
	}
	return f.Ingresses, nil
}

func (f *Fake) LogPodsByFilter(ctx context.Context, kubeContext, namespace string, opts cluster.LogOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("LogPodsByFilter"); err != nil {
		return "", err
	}
	f.LogRequests = append(f.LogRequests, opts)
	if opts.Previous {
		return f.PreviousLogs, nil
	}
	return f.Logs, nil
}

// Always returns a Pods function serving the same pods on every call
func Always(pods ...corev1.Pod) func(int) []corev1.Pod {
	return func(int) []corev1.Pod { return pods }
}

// Sequence serves each snapshot in turn, repeating the last one
func Sequence(snapshots ...[]corev1.Pod) func(int) []corev1.Pod {
	return func(n int) []corev1.Pod {
		if len(snapshots) == 0 {
			return nil
		}
		if n >= len(snapshots) {
			n = len(snapshots) - 1
		}
		return snapshots[n]
	}
}

// Ingress builds an ingress in namespace routing hosts
func Ingress(namespace, name string, hosts ...string) networkingv1.Ingress {
	ing := networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
	}
	for _, h := range hosts {
		ing.Spec.Rules = append(ing.Spec.Rules, networkingv1.IngressRule{Host: h})
	}
	return ing
}

// RunningPod builds a pod with condition Ready=True
func RunningPod(name string) corev1.Pod {
	pod := basePod(name)
	pod.Status.Phase = corev1.PodRunning
	pod.Status.Conditions = []corev1.PodCondition{
		{Type: corev1.PodReady, Status: corev1.ConditionTrue},
	}
	pod.Status.ContainerStatuses = []corev1.ContainerStatus{
		{Name: "app", Ready: true, State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}}},
	}
	return pod
}

// WaitingPod builds a pod whose container waits with reason
func WaitingPod(name, reason string) corev1.Pod {
	pod := basePod(name)
	pod.Status.Phase = corev1.PodPending
	pod.Status.Conditions = []corev1.PodCondition{
		{Type: corev1.PodReady, Status: corev1.ConditionFalse},
	}
	pod.Status.ContainerStatuses = []corev1.ContainerStatus{
		{Name: "app", State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: reason}}},
	}
	return pod
}

// CrashedPod builds a pod in CrashLoopBackOff
func CrashedPod(name string) corev1.Pod {
	return WaitingPod(name, "CrashLoopBackOff")
}

// CreatingPod builds a pod in ContainerCreating
func CreatingPod(name string) corev1.Pod {
	return WaitingPod(name, "ContainerCreating")
}

func basePod(name string) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "app"}},
		},
	}
}
