package rollout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/wharf/pkg/cluster"
	"github.com/cuemby/wharf/pkg/deploy"
	"github.com/cuemby/wharf/pkg/events"
	"github.com/cuemby/wharf/pkg/log"
	"github.com/cuemby/wharf/pkg/manifest"
	"github.com/cuemby/wharf/pkg/metrics"
	"github.com/cuemby/wharf/pkg/probe"
	"github.com/cuemby/wharf/pkg/readiness"
	"github.com/cuemby/wharf/pkg/storage"
	"github.com/cuemby/wharf/pkg/types"
	"github.com/rs/zerolog"
)

// Fixed failure messages
const (
	MsgReleaseNotFound    = "Release not found"
	MsgClusterAuthFailed  = "Cluster authentication failed"
	MsgDomainConflict     = "Domain conflict detected"
	MsgApplyFailed        = "Deployment application failed"
	MsgStartupFailed      = "Application startup failed"
	MsgErrorDetectedInLog = "Application error detected in logs"
	MsgAIUnavailable      = "AI analysis unavailable"
)

// WebhookEventFailed is the event sent to a release's webhook on failure
const WebhookEventFailed = "failed"

// ErrorPatterns are literal substrings that mark application logs as failed
var ErrorPatterns = []string{
	"Error from server",
	"An error occurred",
	"Command failed",
	"Unexpected Server Error",
}

// ProgressFunc receives human-readable progress messages
type ProgressFunc func(message string)

// WebhookDispatcher finds and fires a release's webhook
type WebhookDispatcher interface {
	FindByRelease(releaseID string) (*types.Webhook, error)
	Trigger(ctx context.Context, webhookID, event string) error
}

// LogAnalyzer explains failed rollout logs
type LogAnalyzer interface {
	AnalyzeErrorLog(ctx context.Context, text string) (string, error)
}

// LogArchiver keeps the logs of failed rollouts
type LogArchiver interface {
	ArchiveLogs(ctx context.Context, releaseID, logs string) (string, error)
}

// EndpointProber checks a live endpoint after the release is active
type EndpointProber interface {
	Probe(ctx context.Context, url string) probe.Result
}

// Publisher receives rollout events
type Publisher interface {
	Publish(event *events.Event)
}

// Deps are the collaborators of a rollout. Analyzer, Archiver, Prober and
// Events are optional.
type Deps struct {
	Store    storage.Store
	Cluster  cluster.Manager
	Webhooks WebhookDispatcher
	Analyzer LogAnalyzer
	Archiver LogArchiver
	Prober   EndpointProber
	Events   Publisher
}

// Options tunes the waits. Zero values take the defaults.
type Options struct {
	CreatingInterval time.Duration
	CreatingTimeout  time.Duration
	RunningInterval  time.Duration
	RunningTimeout   time.Duration
	ScaleInterval    time.Duration
	ScaleTimeout     time.Duration
	LogTailLines     int64
	WebhookTimeout   time.Duration
}

// DefaultOptions returns the fixed poll intervals and timeouts
func DefaultOptions() Options {
	return Options{
		CreatingInterval: readiness.DefaultCreatingInterval,
		CreatingTimeout:  readiness.DefaultCreatingTimeout,
		RunningInterval:  readiness.DefaultRunningInterval,
		RunningTimeout:   readiness.DefaultRunningTimeout,
		ScaleInterval:    deploy.DefaultScaleInterval,
		ScaleTimeout:     deploy.DefaultScaleTimeout,
		LogTailLines:     500,
		WebhookTimeout:   30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	setDuration := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	setDuration(&o.CreatingInterval, d.CreatingInterval)
	setDuration(&o.CreatingTimeout, d.CreatingTimeout)
	setDuration(&o.RunningInterval, d.RunningInterval)
	setDuration(&o.RunningTimeout, d.RunningTimeout)
	setDuration(&o.ScaleInterval, d.ScaleInterval)
	setDuration(&o.ScaleTimeout, d.ScaleTimeout)
	setDuration(&o.WebhookTimeout, d.WebhookTimeout)
	if o.LogTailLines <= 0 {
		o.LogTailLines = d.LogTailLines
	}
	return o
}

// Result is the outcome of a rollout. On success Release is set; on failure
// Error holds the first failure and ReleaseID/BuildID identify the attempt.
type Result struct {
	Error     string         `json:"error,omitempty"`
	Release   *types.Release `json:"release,omitempty"`
	ReleaseID string         `json:"releaseId,omitempty"`
	BuildID   string         `json:"buildId,omitempty"`
}

// Failed reports whether the rollout failed
func (r *Result) Failed() bool {
	return r.Error != ""
}

// Orchestrator rolls releases out onto their clusters
type Orchestrator struct {
	deps Deps
	opts Options
}

// New creates an orchestrator
func New(deps Deps, opts Options) *Orchestrator {
	return &Orchestrator{deps: deps, opts: opts.withDefaults()}
}

// Rollout runs the saga for releaseID. Deployment failures are reported in
// Result.Error; the returned error is reserved for finalize failures after
// the workload is already live.
func (o *Orchestrator) Rollout(ctx context.Context, releaseID string, onUpdate ProgressFunc) (*Result, error) {
	r := &run{
		o:         o,
		releaseID: releaseID,
		onUpdate:  onUpdate,
		logger:    log.WithReleaseID(releaseID),
		phase:     PhasePreparing,
		timer:     metrics.NewTimer(),
	}

	metrics.RolloutsInProgress.Inc()
	defer metrics.RolloutsInProgress.Dec()
	total := metrics.NewTimer()

	res, err := r.execute(ctx)

	outcome := "succeeded"
	switch {
	case err != nil:
		outcome = "error"
	case res.Failed():
		outcome = "failed"
	}
	metrics.RolloutsTotal.WithLabelValues(outcome).Inc()
	total.ObserveDurationVec(metrics.RolloutDuration, outcome)
	return res, err
}

// run is the state of one rollout
type run struct {
	o         *Orchestrator
	releaseID string
	onUpdate  ProgressFunc
	logger    zerolog.Logger

	phase Phase
	timer *metrics.Timer

	release   *types.Release
	build     *types.Build
	workspace *types.Workspace
	webhook   *types.Webhook
	cluster   *types.Cluster
	manifest  *manifest.Manifest
	details   manifest.Details
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	deps := r.o.deps
	r.publish(events.EventRolloutPhase, "")

	// 1. Prepare release
	release, err := deps.Store.UpdateRelease(r.releaseID, func(rel *types.Release) {
		rel.Status = types.ReleaseStatusInProgress
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to load release")
		return r.abort(MsgReleaseNotFound), nil
	}
	r.release = release
	r.logger = r.logger.With().
		Str("app", release.AppSlug).
		Str("env", release.Env).
		Str("cluster", release.Cluster).
		Logger()
	r.progress(fmt.Sprintf("Starting rollout of release %s (%s/%s)", displayName(release), release.AppSlug, release.Env))

	r.bestEffort("load-workspace", func() error {
		ws, err := deps.Store.GetWorkspace(release.Workspace)
		r.workspace = ws
		return err
	})

	// 2. Webhook lookup
	if deps.Webhooks != nil {
		r.bestEffort("find-webhook", func() error {
			wh, err := deps.Webhooks.FindByRelease(release.ID)
			r.webhook = wh
			return err
		})
	}

	build, err := deps.Store.GetBuild(release.BuildID)
	if err != nil {
		return r.fail(fmt.Sprintf("Build not found: %s", release.BuildID), err), nil
	}
	r.build = build

	m, err := manifest.Parse(release.DeploymentYAML)
	if err != nil {
		return r.fail(fmt.Sprintf("Invalid deployment manifest: %v", err), err), nil
	}
	r.manifest = m
	r.details = m.Details()
	if r.details.DeploymentName == nil {
		r.progress("Warning: manifest declares no deployment name, change-cause annotation and scaling will be skipped")
	}

	// 3. Cluster auth
	r.enter(PhaseClusterAuth, fmt.Sprintf("Authenticating with cluster %s", release.Cluster))
	c, err := cluster.NewAuthenticator(deps.Store, deps.Cluster).Authenticate(ctx, release.Cluster, types.Ownership{
		Owner:     release.Owner,
		Workspace: release.Workspace,
	})
	if err != nil {
		return r.fail(MsgClusterAuthFailed, err), nil
	}
	r.cluster = c

	// 4. Namespace and pull secret
	r.enter(PhaseNamespacePrep, fmt.Sprintf("Preparing namespace %s", release.Namespace))
	prep := deploy.NewPreparator(deps.Cluster, c, release.Namespace, release.AppSlug, release.Env)
	created, err := prep.PrepareNamespace(ctx)
	if err != nil {
		return r.fail(err.Error(), err), nil
	}
	if created {
		r.progress(fmt.Sprintf("Created namespace %s", release.Namespace))
	}
	secret, err := prep.CreateImagePullSecrets(ctx)
	if err != nil {
		return r.fail(err.Error(), err), nil
	}
	if secret.Reused {
		r.progress(fmt.Sprintf("Reusing image pull secret %s", secret.Name))
	} else {
		r.progress(fmt.Sprintf("Created image pull secret %s", secret.Name))
	}

	// 5. Domain conflicts, before any workload mutation
	r.enter(PhaseDomainCheck, "Checking ingress domains")
	if ingress := m.Ingress(); ingress != nil {
		conflict, err := deploy.CheckDomainConflict(ctx, deps.Cluster, c.ContextName, release.Namespace, ingress)
		if err != nil {
			return r.fail(fmt.Sprintf("Domain conflict check failed: %v", err), err), nil
		}
		if conflict != nil {
			r.progress(conflict.String())
			return r.fail(MsgDomainConflict, errors.New(conflict.String())), nil
		}
	}

	// 6. Apply
	r.enter(PhaseApplying, "Applying deployment manifest")
	applied, err := prep.ApplyDeployment(ctx, m, r.changeCause())
	if err != nil {
		return r.fail(fmt.Sprintf("%s: %v", MsgApplyFailed, err), err), nil
	}
	if applied.AnnotateErr != nil {
		metrics.BestEffortFailures.WithLabelValues("annotate").Inc()
		r.progress(fmt.Sprintf("Warning: could not annotate deployment %s: %v", applied.DeploymentName, applied.AnnotateErr))
	}

	// 7. Readiness
	r.enter(PhaseReadinessWait, "Waiting for pods")
	checker := readiness.New(deps.Cluster, c.ContextName, release.Namespace, r.appName(), r.details.Version())
	checker.CreatingInterval = r.o.opts.CreatingInterval
	checker.CreatingTimeout = r.o.opts.CreatingTimeout
	checker.RunningInterval = r.o.opts.RunningInterval
	checker.RunningTimeout = r.o.opts.RunningTimeout

	if err := checker.WaitUntilNoCreatingPods(ctx); err != nil {
		r.progress(fmt.Sprintf("Pods still creating: %v", err))
	}
	ready := true
	if err := checker.WaitUntilAtLeastOnePodIsRunning(ctx); err != nil {
		ready = false
		r.logger.Warn().Err(err).Msg("Deployment did not become ready")
		r.progress(fmt.Sprintf("Deployment not ready: %v", err))
	}

	// 8. Logs; previous container output when the pods never came up
	r.enter(PhaseLogCheck, "Checking application logs")
	logs := r.fetchLogs(ctx, !ready)
	if logs != "" {
		r.progress(logs)
	}
	if !ready {
		return r.failWithLogs(ctx, MsgStartupFailed, logs), nil
	}

	// 9. Error patterns
	if pattern, found := MatchErrorPattern(logs); found {
		r.logger.Warn().Str("pattern", pattern).Msg("Error pattern found in logs")
		return r.failWithLogs(ctx, MsgErrorDetectedInLog, logs), nil
	}

	// 10. Build references
	r.updateBuildReferences()

	// 11. Scale; a short replica count does not fail the rollout
	r.scale(ctx)

	// 12. Finalize
	r.enter(PhaseFinalizing, "Finalizing release")
	final, err := r.finalize()
	if err != nil {
		r.logger.Error().Err(err).Msg("Finalize failed")
		r.publish(events.EventRolloutFailed, err.Error())
		return nil, fmt.Errorf("finalize release %s: %w", r.releaseID, err)
	}

	// 13. Done
	r.enter(PhaseActive, "")
	endpoint := r.endpointURL()
	r.logger.Info().Str("endpoint", endpoint).Msg("Release is live")
	r.progress(banner(final, endpoint))
	r.probeEndpoint(ctx, endpoint)
	r.publish(events.EventRolloutSucceeded, endpoint)
	return &Result{Release: final, ReleaseID: final.ID, BuildID: final.BuildID}, nil
}

// enter moves to next and reports the phase boundary
func (r *run) enter(next Phase, message string) {
	if !r.phase.CanTransition(next) {
		r.logger.Error().Str("from", string(r.phase)).Str("to", string(next)).Msg("Invalid phase transition")
	}
	r.timer.ObserveDurationVec(metrics.RolloutPhaseDuration, string(r.phase))
	r.timer = metrics.NewTimer()
	r.phase = next

	r.logger.Debug().Str("phase", string(next)).Msg("Entering phase")
	r.publish(events.EventRolloutPhase, message)
	if message != "" {
		r.progress(message)
	}
}

// progress reports to the caller. The callback can neither block the
// rollout on a panic nor fail it.
func (r *run) progress(message string) {
	r.publish(events.EventRolloutProgress, message)
	if r.onUpdate == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn().Interface("panic", rec).Msg("Progress callback panicked")
		}
	}()
	r.onUpdate(message)
}

func (r *run) publish(t events.EventType, message string) {
	if r.o.deps.Events == nil {
		return
	}
	e := &events.Event{
		Type:      t,
		ReleaseID: r.releaseID,
		Phase:     string(r.phase),
		Message:   message,
	}
	if r.release != nil {
		e.Metadata = map[string]string{"app": r.release.AppSlug, "env": r.release.Env}
	}
	r.o.deps.Events.Publish(e)
}

func (r *run) changeCause() string {
	if r.release.Message != "" {
		return r.release.Message
	}
	return fmt.Sprintf("Release %s of build %s by %s", displayName(r.release), r.build.Tag, r.release.Owner)
}

// appName is the main-app label value of the workload's pods
func (r *run) appName() string {
	if r.details.DeploymentName != nil {
		return *r.details.DeploymentName
	}
	return r.release.AppSlug
}

func (r *run) fetchLogs(ctx context.Context, previous bool) string {
	selector := manifest.LabelMainApp + "=" + r.appName()
	if v := r.details.Version(); v != "" {
		selector = manifest.LabelAppVersion + "=" + v
	}

	var logs string
	r.bestEffort("fetch-logs", func() error {
		out, err := r.o.deps.Cluster.LogPodsByFilter(ctx, r.cluster.ContextName, r.release.Namespace, cluster.LogOptions{
			LabelSelector: selector,
			Previous:      previous,
			TailLines:     r.o.opts.LogTailLines,
		})
		logs = out
		return err
	})
	return logs
}

// updateBuildReferences points the project and app environment at the new
// build ahead of finalize
func (r *run) updateBuildReferences() {
	store := r.o.deps.Store
	rel := r.release
	r.bestEffort("update-project", func() error {
		_, err := store.UpdateProject(rel.ProjectSlug, func(p *types.Project) {
			p.LatestBuild = r.build.ID
		})
		return err
	})
	r.bestEffort("update-app", func() error {
		_, err := store.UpdateApp(rel.AppSlug, func(a *types.App) {
			de := a.Environment(rel.Env)
			de.Cluster = rel.Cluster
			de.Namespace = rel.Namespace
			de.BuildID = r.build.ID
		})
		return err
	})
	r.bestEffort("update-build", func() error {
		_, err := store.UpdateBuild(r.build.ID, func(b *types.Build) {
			if b.AppSlug == "" {
				b.AppSlug = rel.AppSlug
			}
		})
		return err
	})
}

func (r *run) scale(ctx context.Context) {
	if r.details.DeploymentName == nil || r.details.Replicas == nil {
		return
	}
	name, replicas := *r.details.DeploymentName, *r.details.Replicas

	r.progress(fmt.Sprintf("Scaling %s to %d replicas", name, replicas))
	scaler := deploy.NewScaler(r.o.deps.Cluster, r.cluster.ContextName, r.release.Namespace, r.appName(), r.details.Version())
	scaler.Interval = r.o.opts.ScaleInterval
	scaler.Timeout = r.o.opts.ScaleTimeout
	if !scaler.ScaleDeployment(ctx, name, replicas) {
		metrics.BestEffortFailures.WithLabelValues("scale").Inc()
		r.progress(fmt.Sprintf("Warning: %s did not reach %d ready replicas, continuing", name, replicas))
	}
}

// finalize records the release as the single active one for its app/env.
// Every error here is returned.
func (r *run) finalize() (*types.Release, error) {
	store := r.o.deps.Store
	rel := r.release
	version := r.details.Version()

	if _, err := store.DeactivateReleases(rel.AppSlug, rel.Env, rel.ID); err != nil {
		return nil, fmt.Errorf("deactivate previous releases: %w", err)
	}

	final, err := store.UpdateRelease(rel.ID, func(x *types.Release) {
		x.Active = true
		x.Status = types.ReleaseStatusSuccess
		if version != "" {
			x.AppVersion = version
		}
	})
	if err != nil {
		return nil, fmt.Errorf("activate release: %w", err)
	}

	if _, err := store.UpdateBuild(r.build.ID, func(b *types.Build) {
		b.DeployStatus = types.BuildStatusSuccess
	}); err != nil {
		return nil, fmt.Errorf("update build: %w", err)
	}

	if _, err := store.UpdateProject(rel.ProjectSlug, func(p *types.Project) {
		p.LastUpdatedBy = rel.Owner
		p.LatestBuild = r.build.ID
	}); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}

	if _, err := store.UpdateApp(rel.AppSlug, func(a *types.App) {
		de := a.Environment(rel.Env)
		de.LatestRelease = rel.ID
		de.AppVersion = version
		de.BuildID = r.build.ID
		if r.details.Replicas != nil {
			de.Replicas = *r.details.Replicas
		}
		if hosts := r.manifest.Ingress().Hosts(); len(hosts) > 0 {
			de.Domains = hosts
		}
	}); err != nil {
		return nil, fmt.Errorf("update app environment: %w", err)
	}

	return final, nil
}

func (r *run) endpointURL() string {
	endpoint := r.release.Endpoint
	if endpoint == "" {
		if hosts := r.manifest.Ingress().Hosts(); len(hosts) > 0 {
			endpoint = hosts[0]
		}
	}
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}

// probeEndpoint reports whether the live endpoint answers. The release is
// already active; the result is only a progress message.
func (r *run) probeEndpoint(ctx context.Context, endpoint string) {
	prober := r.o.deps.Prober
	if prober == nil || endpoint == "" {
		return
	}
	r.bestEffort("endpoint-probe", func() error {
		res := prober.Probe(ctx, endpoint)
		if !res.Healthy {
			r.progress(fmt.Sprintf("Warning: endpoint %s not answering after %d attempts: %s", endpoint, res.Attempts, res.Message))
			return fmt.Errorf("endpoint probe: %s", res.Message)
		}
		r.progress(fmt.Sprintf("Endpoint %s answered %s", endpoint, res.Message))
		return nil
	})
}

func banner(rel *types.Release, endpoint string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Release %s is live (%s/%s)", displayName(rel), rel.AppSlug, rel.Env)
	if endpoint != "" {
		fmt.Fprintf(&b, "\nEndpoint: %s", endpoint)
	}
	return b.String()
}

func displayName(rel *types.Release) string {
	if rel.Slug != "" {
		return rel.Slug
	}
	return rel.ID
}

// MatchErrorPattern returns the first error pattern contained in logs
func MatchErrorPattern(logs string) (string, bool) {
	for _, p := range ErrorPatterns {
		if strings.Contains(logs, p) {
			return p, true
		}
	}
	return "", false
}
