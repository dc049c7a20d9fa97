// Package metrics exposes Prometheus counters for the reservation engine.
// A nil *Metrics is valid and records nothing, so services and tests can
// run without a registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ticketing"

type Metrics struct {
	reservations *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	orders       prometheus.Counter
	settlements  *prometheus.CounterVec
	sweepRecords *prometheus.CounterVec
	sweepSeconds prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the engine's collectors on a fresh registry that also
// carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers on reg and serves from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_requests_total",
			Help:      "Hold requests by result (created, insufficient_inventory, rejected).",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Reservations leaving ACTIVE, by terminal status.",
		}, []string{"status"}),
		orders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders created from converted reservations.",
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_settlements_total",
			Help:      "Order state changes applied by settlement, by resulting status.",
		}, []string{"status"}),
		sweepRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_records_total",
			Help:      "Records handled by the expiration sweeper.",
		}, []string{"kind", "result"}),
		sweepSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one sweeper pass.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		gatherer: g,
	}
	reg.MustRegister(m.reservations, m.transitions, m.orders, m.settlements, m.sweepRecords, m.sweepSeconds)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ReservationRequest(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reservations.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) ReservationTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.orders.Inc()
}

func (m *Metrics) OrderSettled(status string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(status).Inc()
}

func (m *Metrics) SweepRecord(kind, result string) {
	if m == nil {
		return
	}
	m.sweepRecords.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) SweepDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepSeconds.Observe(d.Seconds())
}
