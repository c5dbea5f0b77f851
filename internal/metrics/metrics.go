package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailspool_jobs_enqueued_total",
			Help: "Total jobs accepted into the spool",
		},
	)

	JobsDeduped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailspool_jobs_deduped_total",
			Help: "Total enqueue calls answered from the idempotency index",
		},
	)

	DeliveryAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailspool_delivery_attempts_total",
			Help: "Total delivery attempts made by the worker",
		},
	)

	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailspool_emails_sent_total",
			Help: "Total emails delivered",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailspool_email_failures_total",
			Help: "Total jobs moved to failed after exhausting retries",
		},
	)

	MailLogFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailspool_maillog_failures_total",
			Help: "Total audit records that could not be reported to the log sink",
		},
	)

	AlertsFired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailspool_alerts_fired_total",
			Help: "Total threshold alerts posted to the webhook",
		},
	)

	SSEClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailspool_sse_clients",
			Help: "Currently connected log stream clients",
		},
	)
)

func Init() {
	prometheus.MustRegister(
		JobsEnqueued,
		JobsDeduped,
		DeliveryAttempts,
		EmailsSent,
		EmailFailures,
		MailLogFailures,
		AlertsFired,
		SSEClients,
	)
}
