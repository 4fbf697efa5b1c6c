package rollout

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/wharf/pkg/events"
	"github.com/cuemby/wharf/pkg/metrics"
	"github.com/cuemby/wharf/pkg/types"
)

// FailureLogLines is how many trailing log lines a failure message carries
const FailureLogLines = 100

// bestEffort runs fn and swallows its error or panic, logging it under step.
// Steps whose failure must not change the rollout outcome go through here.
func (r *run) bestEffort(step string, fn func() error) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.BestEffortFailures.WithLabelValues(step).Inc()
			r.logger.Warn().Str("step", step).Interface("panic", rec).Msg("Best-effort step panicked")
			ok = false
		}
	}()
	if err := fn(); err != nil {
		metrics.BestEffortFailures.WithLabelValues(step).Inc()
		r.logger.Warn().Err(err).Str("step", step).Msg("Best-effort step failed")
		return false
	}
	return true
}

// abort ends a rollout that never loaded its release. There is no webhook
// and nothing to mark failed.
func (r *run) abort(message string) *Result {
	metrics.RolloutFailures.WithLabelValues(string(r.phase)).Inc()
	r.enter(PhaseFailed, "")
	r.progress("Rollout failed: " + message)
	r.publish(events.EventRolloutFailed, message)
	return &Result{Error: message, ReleaseID: r.releaseID}
}

// fail runs the failure pipeline: fire the webhook without waiting, mark
// the release and build failed, and return message as the result.
func (r *run) fail(message string, cause error) *Result {
	failedIn := r.phase
	r.logger.Error().Err(cause).Str("phase", string(failedIn)).Msg(firstLine(message))
	metrics.RolloutFailures.WithLabelValues(string(failedIn)).Inc()
	r.enter(PhaseFailed, "")

	r.triggerWebhook()

	store := r.o.deps.Store
	r.bestEffort("mark-release-failed", func() error {
		_, err := store.UpdateRelease(r.release.ID, func(rel *types.Release) {
			rel.Status = types.ReleaseStatusFailed
		})
		return err
	})
	if buildID := r.release.BuildID; buildID != "" {
		r.bestEffort("mark-build-failed", func() error {
			_, err := store.UpdateBuild(buildID, func(b *types.Build) {
				b.DeployStatus = types.BuildStatusFailed
			})
			return err
		})
	}

	r.progress("Rollout failed: " + message)
	r.publish(events.EventRolloutFailed, message)
	return &Result{Error: message, ReleaseID: r.release.ID, BuildID: r.release.BuildID}
}

// failWithLogs appends the log tail and, when the workspace enables it, an
// AI analysis before running the failure pipeline
func (r *run) failWithLogs(ctx context.Context, message string, logs string) *Result {
	tail := LastLines(logs, FailureLogLines)

	var b strings.Builder
	b.WriteString(message)
	if tail != "" {
		fmt.Fprintf(&b, "\n\nLast %d lines of logs:\n%s", FailureLogLines, tail)
	} else {
		b.WriteString("\n\nNo logs available")
	}

	if r.workspace != nil && r.workspace.AIAnalysisEnabled {
		b.WriteString("\n\n")
		b.WriteString(r.analyze(ctx, tail))
	}

	if r.o.deps.Archiver != nil && logs != "" {
		r.bestEffort("archive-logs", func() error {
			uri, err := r.o.deps.Archiver.ArchiveLogs(ctx, r.release.ID, logs)
			if err != nil {
				return err
			}
			r.progress("Logs archived to " + uri)
			return nil
		})
	}

	return r.fail(b.String(), nil)
}

// analyze never fails: any analyzer error becomes the unavailable note
func (r *run) analyze(ctx context.Context, tail string) string {
	analysis := MsgAIUnavailable
	if r.o.deps.Analyzer == nil || tail == "" {
		return analysis
	}
	r.bestEffort("analyze-logs", func() error {
		out, err := r.o.deps.Analyzer.AnalyzeErrorLog(ctx, tail)
		if err != nil {
			return err
		}
		analysis = "AI analysis:\n" + out
		return nil
	})
	return analysis
}

// triggerWebhook fires the failed event in its own goroutine. Delivery is
// not part of the rollout result.
func (r *run) triggerWebhook() {
	dispatcher := r.o.deps.Webhooks
	if dispatcher == nil || r.webhook == nil {
		return
	}
	webhookID := r.webhook.ID
	timeout := r.o.opts.WebhookTimeout
	logger := r.logger.With().Str("webhook_id", webhookID).Logger()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().Interface("panic", rec).Msg("Webhook trigger panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := dispatcher.Trigger(ctx, webhookID, WebhookEventFailed); err != nil {
			metrics.BestEffortFailures.WithLabelValues("webhook").Inc()
			logger.Warn().Err(err).Msg("Failed to trigger webhook")
			return
		}
		logger.Debug().Msg("Webhook triggered")
	}()
}

// LastLines returns the last n lines of s
func LastLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" || n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
