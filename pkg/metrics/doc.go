/*
Package metrics exposes Prometheus metrics and the component health registry
for wharf.

# Metrics

All collectors are registered with the default registry in init and served
by Handler on /metrics.

	wharf_rollouts_total{result}                 succeeded | failed | error
	wharf_rollouts_in_progress
	wharf_rollout_duration_seconds{result}
	wharf_rollout_phase_duration_seconds{phase}
	wharf_rollout_failures_total{phase}          phase the rollout failed in
	wharf_best_effort_failures_total{step}       annotate, scale, analyze, ...
	wharf_releases_total{status}                 refreshed by Collector
	wharf_active_releases                        refreshed by Collector
	wharf_webhook_deliveries_total{event,outcome}
	wharf_analyzer_requests_total{outcome}
	wharf_api_requests_total{method,status}
	wharf_api_request_duration_seconds{method}
	wharf_reconciliation_duration_seconds
	wharf_reconciliation_cycles_total
	wharf_stale_releases_failed_total

Timer wraps a start time for histogram observations:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RolloutPhaseDuration, "APPLYING")

# Health

Components report their state with RegisterComponent. Storage and the API
are critical: when either fails, GetHealth is unhealthy and HealthHandler
answers 503. Any other failing component, such as the event broker or a
target cluster under ClusterComponent(slug), only degrades it and is listed
in Degraded. LivenessHandler answers 200 while the process runs. Readiness
is served by the API, which probes storage itself.
*/
package metrics
