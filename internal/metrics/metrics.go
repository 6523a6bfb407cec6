// Package metrics exposes Prometheus collectors for the storefront.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storefront"

// Metrics holds the collectors registered by New.
type Metrics struct {
	cartsCreated    prometheus.Counter
	cartsFinalized  prometheus.Counter
	cartConflicts   prometheus.Counter
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cartsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carts_created_total",
			Help:      "Open carts created.",
		}),
		cartsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carts_finalized_total",
			Help:      "Carts sealed by checkout.",
		}),
		cartConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "open_cart_conflicts_total",
			Help:      "Concurrent open-cart creations that lost the race and were retried.",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) CartCreated() {
	if m == nil {
		return
	}
	m.cartsCreated.Inc()
}

func (m *Metrics) CartFinalized() {
	if m == nil {
		return
	}
	m.cartsFinalized.Inc()
}

func (m *Metrics) OpenCartConflict() {
	if m == nil {
		return
	}
	m.cartConflicts.Inc()
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
