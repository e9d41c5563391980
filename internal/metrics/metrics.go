package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrelay_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smsrelay_http_request_duration_seconds",
			Help:    "Histogram of HTTP response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	MessagesIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsrelay_messages_ingested_total",
			Help: "Inbound messages persisted as new rows",
		},
	)

	MessagesDeduplicated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsrelay_messages_deduplicated_total",
			Help: "Inbound messages suppressed as duplicates",
		},
	)

	Verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrelay_verifications_total",
			Help: "Verification attempts recorded, by outcome",
		},
		[]string{"outcome"},
	)
)

// Register installs all collectors on the default registry. Call once at
// startup.
func Register() {
	prometheus.MustRegister(
		HTTPRequests,
		HTTPDuration,
		MessagesIngested,
		MessagesDeduplicated,
		Verifications,
	)
}
