package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/wharf/pkg/cluster"
	"github.com/cuemby/wharf/pkg/manifest"
	"github.com/cuemby/wharf/pkg/types"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	reasonCrashLoopBackOff  = "CrashLoopBackOff"
	reasonContainerCreating = "ContainerCreating"

	DefaultCreatingInterval = 10 * time.Second
	DefaultCreatingTimeout  = 300 * time.Second
	DefaultRunningInterval  = 5 * time.Second
	DefaultRunningTimeout   = 300 * time.Second
)

var (
	// ErrPodsCrashed stops a wait as soon as a crashed pod is observed
	ErrPodsCrashed = errors.New("pods are crash looping")

	// ErrTimeout is returned when a wait's condition never held
	ErrTimeout = errors.New("timed out waiting for pods")
)

// PodLister is the subset of cluster.Manager the checker polls
type PodLister interface {
	GetPods(ctx context.Context, kubeContext, namespace, labelSelector string) ([]corev1.Pod, error)
}

var _ PodLister = cluster.Manager(nil)

// Checker polls the pods of one app version
type Checker struct {
	pods        PodLister
	kubeContext string
	namespace   string
	appName     string
	appVersion  string

	CreatingInterval time.Duration
	CreatingTimeout  time.Duration
	RunningInterval  time.Duration
	RunningTimeout   time.Duration
}

// New creates a checker with the fixed default poll settings
func New(pods PodLister, kubeContext, namespace, appName, appVersion string) *Checker {
	return &Checker{
		pods:             pods,
		kubeContext:      kubeContext,
		namespace:        namespace,
		appName:          appName,
		appVersion:       appVersion,
		CreatingInterval: DefaultCreatingInterval,
		CreatingTimeout:  DefaultCreatingTimeout,
		RunningInterval:  DefaultRunningInterval,
		RunningTimeout:   DefaultRunningTimeout,
	}
}

// Selector returns main-app=<app>[,app-version=<version>]
func (c *Checker) Selector() string {
	selector := manifest.LabelMainApp + "=" + c.appName
	if c.appVersion != "" {
		selector += "," + manifest.LabelAppVersion + "=" + c.appVersion
	}
	return selector
}

// Health fetches the pods and classifies them
func (c *Checker) Health(ctx context.Context) (types.PodHealth, error) {
	pods, err := c.pods.GetPods(ctx, c.kubeContext, c.namespace, c.Selector())
	if err != nil {
		return types.PodHealth{}, fmt.Errorf("failed to list pods: %w", err)
	}
	return Classify(pods), nil
}

// Classify derives a health snapshot from a pod list
func Classify(pods []corev1.Pod) types.PodHealth {
	h := types.PodHealth{TotalPods: len(pods)}
	for _, pod := range pods {
		if hasWaitingReason(pod, reasonCrashLoopBackOff) {
			h.CrashedPods++
		}
		if hasWaitingReason(pod, reasonContainerCreating) {
			h.CreatingPods++
		}
		if IsPodReady(pod) {
			h.RunningPods++
		}
	}
	h.IsHealthy = h.TotalPods > 0 && h.CrashedPods == 0 && h.RunningPods > 0
	return h
}

// IsPodReady checks the pod's Ready condition
func IsPodReady(pod corev1.Pod) bool {
	for _, c := range pod.Status.Conditions {
		if c.Type == corev1.PodReady && c.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

func hasWaitingReason(pod corev1.Pod, reason string) bool {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason == reason {
			return true
		}
	}
	return false
}

// WaitUntilNoCreatingPods waits until no pod is in ContainerCreating
func (c *Checker) WaitUntilNoCreatingPods(ctx context.Context) error {
	return poll(ctx, c.CreatingInterval, c.CreatingTimeout, func(ctx context.Context) (bool, error) {
		h, err := c.Health(ctx)
		if err != nil {
			return false, nil
		}
		return h.CreatingPods == 0, nil
	})
}

// WaitUntilAtLeastOnePodIsRunning waits for a Ready pod. It returns
// ErrPodsCrashed on the first poll that sees a crashed pod.
func (c *Checker) WaitUntilAtLeastOnePodIsRunning(ctx context.Context) error {
	return poll(ctx, c.RunningInterval, c.RunningTimeout, func(ctx context.Context) (bool, error) {
		h, err := c.Health(ctx)
		if err != nil {
			return false, nil
		}
		if h.CrashedPods > 0 {
			return false, fmt.Errorf("%w: %d of %d pods", ErrPodsCrashed, h.CrashedPods, h.TotalPods)
		}
		return h.RunningPods > 0, nil
	})
}

// IsDeploymentReady reports whether at least required pods are Ready and,
// unless skipCrashed is set, none are crashed
func (c *Checker) IsDeploymentReady(ctx context.Context, required int, skipCrashed bool) (bool, error) {
	h, err := c.Health(ctx)
	if err != nil {
		return false, err
	}
	if !skipCrashed && h.CrashedPods > 0 {
		return false, nil
	}
	return h.RunningPods >= required, nil
}

// poll checks immediately, then every interval, until cond holds, cond
// errors, or timeout elapses
func poll(ctx context.Context, interval, timeout time.Duration, cond wait.ConditionWithContextFunc) error {
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, cond)
	if err != nil && wait.Interrupted(err) && ctx.Err() == nil {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return err
}
