package reconciler

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/wharf/pkg/events"
	"github.com/cuemby/wharf/pkg/log"
	"github.com/cuemby/wharf/pkg/metrics"
	"github.com/cuemby/wharf/pkg/types"
	"github.com/rs/zerolog"
)

// MsgInterrupted is published for releases whose rollout never finished
const MsgInterrupted = "Rollout interrupted"

// DefaultStaleAfter must exceed the creating, running and scale waits back
// to back; config.Validate enforces this for configured values.
const DefaultStaleAfter = 30 * time.Minute

// Store is the storage subset the reconciler reads and patches
type Store interface {
	ListReleases() ([]*types.Release, error)
	UpdateRelease(id string, mutate func(*types.Release)) (*types.Release, error)
	UpdateBuild(id string, mutate func(*types.Build)) (*types.Build, error)
}

// Publisher receives a rollout.failed event per interrupted release
type Publisher interface {
	Publish(event *events.Event)
}

// Reconciler fails releases left in_progress by a rollout that died with
// its process
type Reconciler struct {
	store      Store
	events     Publisher
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	logger     zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewReconciler creates a reconciler running every minute. publisher may be
// nil.
func NewReconciler(store Store, staleAfter time.Duration, publisher Publisher) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Reconciler{
		store:      store,
		events:     publisher,
		interval:   time.Minute,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     log.WithComponent("reconciler"),
		stopCh:     make(chan struct{}),
	}
}

// Start runs one cycle immediately, then one per interval
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if _, err := r.Reconcile(); err != nil {
		r.logger.Warn().Err(err).Msg("Reconciliation failed")
	}
	for {
		select {
		case <-ticker.C:
			if _, err := r.Reconcile(); err != nil {
				r.logger.Warn().Err(err).Msg("Reconciliation failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// Reconcile runs one cycle and returns the IDs of releases it failed
func (r *Reconciler) Reconcile() ([]string, error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	releases, err := r.store.ListReleases()
	if err != nil {
		return nil, fmt.Errorf("failed to list releases: %w", err)
	}

	cutoff := r.now().Add(-r.staleAfter)
	var failed []string
	for _, rel := range releases {
		if rel.Status != types.ReleaseStatusInProgress || !lastTouched(rel).Before(cutoff) {
			continue
		}
		flipped, err := r.failRelease(rel)
		if err != nil {
			r.logger.Warn().Err(err).Str("release_id", rel.ID).Msg("Failed to mark stale release")
			continue
		}
		if flipped {
			failed = append(failed, rel.ID)
		}
	}
	return failed, nil
}

// failRelease reports false when the release left in_progress after the
// listing; its build is then left alone.
func (r *Reconciler) failRelease(rel *types.Release) (bool, error) {
	flipped := false
	_, err := r.store.UpdateRelease(rel.ID, func(cur *types.Release) {
		if cur.Status == types.ReleaseStatusInProgress {
			cur.Status = types.ReleaseStatusFailed
			flipped = true
		}
	})
	if err != nil || !flipped {
		return false, err
	}

	metrics.StaleReleasesFailed.Inc()
	r.logger.Warn().
		Str("release_id", rel.ID).
		Time("last_update", lastTouched(rel)).
		Msg("Marked interrupted rollout as failed")

	if r.events != nil {
		r.events.Publish(&events.Event{
			Type:      events.EventRolloutFailed,
			ReleaseID: rel.ID,
			Message:   MsgInterrupted,
			Metadata:  map[string]string{"app": rel.AppSlug, "env": rel.Env},
		})
	}

	if rel.BuildID == "" {
		return true, nil
	}
	if _, err := r.store.UpdateBuild(rel.BuildID, func(b *types.Build) {
		b.DeployStatus = types.BuildStatusFailed
	}); err != nil {
		r.logger.Warn().Err(err).Str("build_id", rel.BuildID).Msg("Failed to mark build failed")
	}
	return true, nil
}

func lastTouched(rel *types.Release) time.Time {
	if rel.UpdatedAt.After(rel.CreatedAt) {
		return rel.UpdatedAt
	}
	return rel.CreatedAt
}
