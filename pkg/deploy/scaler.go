package deploy

import (
	"context"
	"time"

	"github.com/cuemby/wharf/pkg/cluster"
	"github.com/cuemby/wharf/pkg/log"
	"github.com/cuemby/wharf/pkg/readiness"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	DefaultScaleInterval = 5 * time.Second
	DefaultScaleTimeout  = 300 * time.Second
)

// Scaler scales a deployment and waits for the new replica count to be Ready
type Scaler struct {
	manager     cluster.Manager
	kubeContext string
	namespace   string
	checker     *readiness.Checker

	Interval time.Duration
	Timeout  time.Duration
}

// NewScaler creates a scaler that checks pods of appName/appVersion
func NewScaler(mgr cluster.Manager, kubeContext, namespace, appName, appVersion string) *Scaler {
	return &Scaler{
		manager:     mgr,
		kubeContext: kubeContext,
		namespace:   namespace,
		checker:     readiness.New(mgr, kubeContext, namespace, appName, appVersion),
		Interval:    DefaultScaleInterval,
		Timeout:     DefaultScaleTimeout,
	}
}

// ScaleDeployment scales name to replicas and reports whether that many pods
// became Ready in time. Errors are logged, never returned.
func (s *Scaler) ScaleDeployment(ctx context.Context, name string, replicas int32) bool {
	logger := log.WithComponent("scaler").With().
		Str("deployment", name).
		Str("namespace", s.namespace).
		Int32("replicas", replicas).
		Logger()

	if err := s.manager.ScaleDeployment(ctx, s.kubeContext, s.namespace, name, replicas); err != nil {
		logger.Warn().Err(err).Msg("Scale request failed")
		return false
	}

	err := wait.PollUntilContextTimeout(ctx, s.Interval, s.Timeout, true, func(ctx context.Context) (bool, error) {
		ready, err := s.checker.IsDeploymentReady(ctx, int(replicas), false)
		if err != nil {
			logger.Debug().Err(err).Msg("Readiness check failed, retrying")
			return false, nil
		}
		return ready, nil
	})
	if err != nil {
		logger.Warn().Err(err).Dur("timeout", s.Timeout).Msg("Deployment did not reach replica count")
		return false
	}

	logger.Info().Msg("Deployment scaled")
	return true
}
