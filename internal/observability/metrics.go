package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "calendar", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "calendar", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "calendar", Name: "commands_total", Help: "Calendar commands by outcome."},
		[]string{"type", "status"},
	)
	LockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "calendar", Name: "property_lock_wait_seconds",
			Help:    "Time spent waiting for the property lock.",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"result"},
	)
	OutboxDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "calendar", Name: "outbox_deliveries_total", Help: "Outbox publish attempts."},
		[]string{"result"}, // result: sent|retry|failed
	)
	ReconciliationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "calendar", Name: "reconciliation_runs_total", Help: "Reconciliation runs."},
		[]string{"channel", "status"},
	)
	Discrepancies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calendar", Name: "reconciliation_discrepancies_total",
			Help: "Divergent dates found and fixed by reconciliation.",
		},
		[]string{"channel", "kind"}, // kind: found|fixed
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "calendar", Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "status"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "calendar", Name: "cache_events_total", Help: "Cache hits and misses."},
		[]string{"cache", "event"},
	)
)

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		HTTPRequests, HTTPLatency, Commands, LockWait, OutboxDeliveries,
		ReconciliationRuns, Discrepancies, ExternalRequests, CacheEvents,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveCommand(cmdType, status string) {
	Commands.WithLabelValues(cmdType, status).Inc()
}

func ObserveLockWait(acquired bool, dur time.Duration) {
	result := "acquired"
	if !acquired {
		result = "timeout"
	}
	LockWait.WithLabelValues(result).Observe(dur.Seconds())
}

func ObserveDelivery(result string) {
	OutboxDeliveries.WithLabelValues(result).Inc()
}

func ObserveReconciliation(channel, status string, found, fixed int) {
	ReconciliationRuns.WithLabelValues(channel, status).Inc()
	Discrepancies.WithLabelValues(channel, "found").Add(float64(found))
	Discrepancies.WithLabelValues(channel, "fixed").Add(float64(fixed))
}

func ObserveExternal(service string, status int) {
	ExternalRequests.WithLabelValues(service, strconv.Itoa(status)).Inc()
}

func ObserveCache(cache, event string) { // event: hit|miss
	CacheEvents.WithLabelValues(cache, event).Inc()
}
