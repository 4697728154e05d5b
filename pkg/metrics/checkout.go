package metrics

import "github.com/prometheus/client_golang/prometheus"

// CheckoutMetrics counts checkout progress and payment reconciliation outcomes.
type CheckoutMetrics struct {
	steps            *prometheus.CounterVec
	paymentIntents   *prometheus.CounterVec
	materializations *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on reg.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_step_transitions_total",
		Help: "Checkout sessions entering a step.",
	}, []string{"step"})
	intents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_payment_intents_total",
		Help: "Payment intent create/update calls by result.",
	}, []string{"operation", "result"})
	materializations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_materializations_total",
		Help: "Order materializations by trigger and outcome.",
	}, []string{"source", "result"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Gateway webhook events by type and outcome.",
	}, []string{"type", "result"})
	reg.MustRegister(steps, intents, materializations, webhooks)
	return &CheckoutMetrics{
		steps:            steps,
		paymentIntents:   intents,
		materializations: materializations,
		webhookEvents:    webhooks,
	}
}

func (m *CheckoutMetrics) IncStep(step string) {
	if m == nil || m.steps == nil {
		return
	}
	m.steps.WithLabelValues(normalizeLabel(step)).Inc()
}

func (m *CheckoutMetrics) IncPaymentIntent(operation, result string) {
	if m == nil || m.paymentIntents == nil {
		return
	}
	m.paymentIntents.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
}

func (m *CheckoutMetrics) IncMaterialization(source, result string) {
	if m == nil || m.materializations == nil {
		return
	}
	m.materializations.WithLabelValues(normalizeLabel(source), normalizeLabel(result)).Inc()
}

func (m *CheckoutMetrics) IncWebhookEvent(eventType, result string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
