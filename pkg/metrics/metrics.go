package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Rollout metrics
	RolloutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wharf_rollouts_total",
			Help: "Total number of rollouts by result",
		},
		[]string{"result"},
	)

	RolloutsInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wharf_rollouts_in_progress",
			Help: "Number of rollouts currently running",
		},
	)

	RolloutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wharf_rollout_duration_seconds",
			Help:    "End-to-end rollout duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 900},
		},
		[]string{"result"},
	)

	RolloutPhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wharf_rollout_phase_duration_seconds",
			Help:    "Time spent in each rollout phase in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	RolloutFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wharf_rollout_failures_total",
			Help: "Total number of failed rollouts by the phase that failed",
		},
		[]string{"phase"},
	)

	BestEffortFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wharf_best_effort_failures_total",
			Help: "Total number of swallowed best-effort step failures",
		},
		[]string{"step"},
	)

	// Release bookkeeping, refreshed by the collector
	ReleasesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wharf_releases_total",
			Help: "Total number of releases by status",
		},
		[]string{"status"},
	)

	ActiveReleases = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wharf_active_releases",
			Help: "Number of releases marked active",
		},
	)

	// Collaborator metrics
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wharf_webhook_deliveries_total",
			Help: "Total number of webhook deliveries by event and outcome",
		},
		[]string{"event", "outcome"},
	)

	AnalyzerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wharf_analyzer_requests_total",
			Help: "Total number of log analysis requests by outcome",
		},
		[]string{"outcome"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wharf_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wharf_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wharf_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wharf_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	StaleReleasesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wharf_stale_releases_failed_total",
			Help: "Total number of interrupted rollouts marked failed by the reconciler",
		},
	)
)

func init() {
	prometheus.MustRegister(RolloutsTotal)
	prometheus.MustRegister(RolloutsInProgress)
	prometheus.MustRegister(RolloutDuration)
	prometheus.MustRegister(RolloutPhaseDuration)
	prometheus.MustRegister(RolloutFailures)
	prometheus.MustRegister(BestEffortFailures)
	prometheus.MustRegister(ReleasesTotal)
	prometheus.MustRegister(ActiveReleases)
	prometheus.MustRegister(WebhookDeliveries)
	prometheus.MustRegister(AnalyzerRequests)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(StaleReleasesFailed)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
