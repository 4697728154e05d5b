package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SinkMetrics tracks outbox deliveries per order sink.
type SinkMetrics struct {
	delivered    *prometheus.CounterVec
	failed       *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// NewSinkMetrics registers the sink delivery metrics on reg.
func NewSinkMetrics(reg prometheus.Registerer) *SinkMetrics {
	if reg == nil {
		return &SinkMetrics{}
	}
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_sink_delivered_total",
		Help: "Outbox events delivered to an order sink.",
	}, []string{"sink"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_sink_failed_total",
		Help: "Failed order sink delivery attempts.",
	}, []string{"sink"})
	deadLettered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_sink_dead_lettered_total",
		Help: "Outbox events moved to the DLQ.",
	}, []string{"sink"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_sink_delivery_seconds",
		Help:    "Order sink delivery latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})
	reg.MustRegister(delivered, failed, deadLettered, latency)
	return &SinkMetrics{
		delivered:    delivered,
		failed:       failed,
		deadLettered: deadLettered,
		latency:      latency,
	}
}

func (m *SinkMetrics) IncDelivered(sink string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(sink)).Inc()
}

func (m *SinkMetrics) IncFailed(sink string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(sink)).Inc()
}

func (m *SinkMetrics) IncDeadLettered(sink string) {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.WithLabelValues(normalizeLabel(sink)).Inc()
}

func (m *SinkMetrics) ObserveDelivery(sink string, d time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.WithLabelValues(normalizeLabel(sink)).Observe(d.Seconds())
}
