package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		billingEventsTotal,
		billingEventDuration,
		webhookRejectedTotal,
	)
}

var (
	billingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_events_total",
			Help:      "Billing events reconciled, by kind and outcome.",
		},
		[]string{"kind", "outcome"}, // outcome: applied|no_change|duplicate|unresolved|ignored|error
	)

	billingEventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "billing_event_duration_seconds",
			Help:      "Time spent reconciling one billing event.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"kind"},
	)

	webhookRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_webhook_rejected_total",
			Help:      "Inbound webhooks rejected before reconciliation.",
		},
		[]string{"reason"}, // signature|payload|body|unresolved
	)
)

func ObserveBillingEvent(kind, outcome string, took time.Duration) {
	billingEventsTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
	billingEventDuration.WithLabelValues(norm(kind)).Observe(took.Seconds())
}

func IncWebhookRejected(reason string) {
	webhookRejectedTotal.WithLabelValues(norm(reason)).Inc()
}
