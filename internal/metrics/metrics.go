package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makeradmin_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "makeradmin_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makeradmin_transactions_total",
			Help: "Webshop transactions by final status",
		},
		[]string{"status"},
	)

	ActionsShippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makeradmin_actions_shipped_total",
			Help: "Fulfillment actions shipped into the span ledger",
		},
		[]string{"action_type"},
	)

	ActionsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "makeradmin_actions_skipped_total",
			Help: "Fulfillment actions left pending due to unmet member prerequisites",
		},
	)

	SpansExtendedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makeradmin_spans_extended_total",
			Help: "Span ledger extensions by access type",
		},
		[]string{"access_type", "source"},
	)

	SubscriptionsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makeradmin_subscriptions_started_total",
			Help: "Subscriptions started by access type",
		},
		[]string{"access_type"},
	)

	SubscriptionsCancelledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makeradmin_subscriptions_cancelled_total",
			Help: "Subscriptions cancelled by access type",
		},
		[]string{"access_type"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makeradmin_webhook_events_total",
			Help: "Billing processor webhook events by type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makeradmin_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "makeradmin_email_queue_length",
			Help: "Current length of email queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordTransaction(status string) {
	TransactionsTotal.WithLabelValues(status).Inc()
}

func RecordActionShipped(actionType string) {
	ActionsShippedTotal.WithLabelValues(actionType).Inc()
}

func RecordActionSkipped() {
	ActionsSkippedTotal.Inc()
}

func RecordSpanExtended(accessType, source string) {
	SpansExtendedTotal.WithLabelValues(accessType, source).Inc()
}

func RecordSubscriptionStarted(accessType string) {
	SubscriptionsStartedTotal.WithLabelValues(accessType).Inc()
}

func RecordSubscriptionCancelled(accessType string) {
	SubscriptionsCancelledTotal.WithLabelValues(accessType).Inc()
}

func RecordWebhookEvent(eventType, outcome string) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}
