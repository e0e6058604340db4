// Package metrics exposes Prometheus instrumentation for the receiver.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authhook_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authhook_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authhook_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authhook_webhook_deliveries_total",
			Help: "Webhook deliveries by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authhook_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	rateLimitKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authhook_rate_limit_keys",
			Help: "Client keys currently tracked by the rate limiter",
		},
	)

	downstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authhook_downstream_duration_seconds",
			Help:    "User service call latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "result"},
	)

	secretReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authhook_secret_reloads_total",
			Help: "Webhook secret reloads from the config file",
		},
		[]string{"result"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authhook_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	dbConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authhook_db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func IncrementInFlight() {
	httpRequestsInFlight.Inc()
}

func DecrementInFlight() {
	httpRequestsInFlight.Dec()
}

// RecordDelivery counts a handled webhook. outcome is "ok" or one of the
// error codes returned to the caller.
func RecordDelivery(endpoint, outcome string) {
	webhookDeliveries.WithLabelValues(endpoint, outcome).Inc()
}

func RecordRateLimited() {
	rateLimited.Inc()
}

func SetRateLimitKeys(n int) {
	rateLimitKeys.Set(float64(n))
}

func RecordDownstreamCall(endpoint, result string, duration time.Duration) {
	downstreamDuration.WithLabelValues(endpoint, result).Observe(duration.Seconds())
}

func RecordSecretReload(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	secretReloads.WithLabelValues(result).Inc()
}

func UpdateDBStats(open, inUse int) {
	dbConnectionsOpen.Set(float64(open))
	dbConnectionsInUse.Set(float64(inUse))
}
