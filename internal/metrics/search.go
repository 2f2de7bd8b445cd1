package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search and completion Prometheus metrics.
var (
	SearchesStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "searches_started_total",
			Help:      "Total number of search sessions started",
		},
		[]string{"mode"},
	)

	SearchesFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "searches_finished_total",
			Help:      "Total number of search sessions by terminal status",
		},
		[]string{"status"}, // "completed" / "failed" / "cancelled"
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kestrel",
			Name:      "active_sessions",
			Help:      "Search sessions currently in the session table",
		},
	)

	HitsFetchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "hits_fetched_total",
			Help:      "Total result hits returned to clients",
		},
	)

	CompletionSessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "completion_sessions_total",
			Help:      "Total completion sessions started",
		},
	)

	ExtractionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "extraction_requests_total",
			Help:      "Total natural-mode keyword extraction requests",
		},
		[]string{"status"}, // "success" / "error"
	)

	ExtractionRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "extraction_request_duration_seconds",
			Help:      "Keyword extraction request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchesStartedTotal)
	prometheus.MustRegister(SearchesFinishedTotal)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(HitsFetchedTotal)
	prometheus.MustRegister(CompletionSessionsTotal)
	prometheus.MustRegister(ExtractionRequestsTotal)
	prometheus.MustRegister(ExtractionRequestDuration)
	searchMetricsRegistered = true
}
