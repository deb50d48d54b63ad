package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bakong_requests_total",
			Help: "Outbound settlement-API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)
	ProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bakong_request_duration_seconds",
			Help:    "Outbound settlement-API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(ProviderRequests)
	prometheus.MustRegister(ProviderDuration)
}

// Observe records one outbound call.
func Observe(endpoint, outcome string, start time.Time) {
	ProviderRequests.WithLabelValues(endpoint, outcome).Inc()
	ProviderDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// Serve exposes /metrics on its own listener so the payment API and the
// scrape endpoint never share a port.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
