package metrics

import "github.com/prometheus/client_golang/prometheus"

// Billing-domain counters, registered on the default registry and exposed by
// the same /metrics listener as the HTTP middleware metrics.
var (
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Processor webhook events, partitioned by event type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	ReconcileRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "reconcile_runs_total",
			Help:      "Reconciliation job runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	ReconcileItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "reconcile_items_total",
			Help:      "Subscriptions visited by the reconciliation job, partitioned by result.",
		},
		[]string{"result"},
	)

	NotificationSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "notification_sends_total",
			Help:      "Transactional email attempts, partitioned by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(WebhookEventsTotal, ReconcileRunsTotal, ReconcileItemsTotal, NotificationSendsTotal)
}
