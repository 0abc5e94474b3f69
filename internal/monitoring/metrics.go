package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keybalancer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keybalancer_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keybalancer_http_inflight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Probe metrics: one outbound classification per increment. The outcome
	// label carries the classification kind or "error" for transport failures.
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keybalancer_probes_total",
			Help: "Total number of credential classification probes",
		},
		[]string{"provider", "outcome"},
	)

	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keybalancer_probe_duration_seconds",
			Help:    "Classification probe latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30},
		},
		[]string{"provider"},
	)

	ThrottleRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keybalancer_throttle_rejections_total",
			Help: "Probe requests rejected because the user already had one in flight",
		},
	)

	ProxiedProbesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keybalancer_proxied_probes_total",
			Help: "Outbound probes routed through an egress proxy",
		},
	)

	RateLimitKeysGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keybalancer_ratelimit_keys",
			Help: "Number of per-client rate limiters currently cached",
		},
	)
)
