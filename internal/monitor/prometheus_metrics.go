package monitor

import "github.com/prometheus/client_golang/prometheus"

// SummaryVecMetrics hold the duration-style metrics.
var SummaryVecMetrics = map[MetricTag]*prometheus.SummaryVec{
	HttpRequestDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "opsplane", Subsystem: "http", Name: string(HttpRequestDurationTag),
		Help: "HTTP requests durations, sliding window = 10m",
	},
		[]string{"status", "route", "method"},
	),
	SuccessfulQueryDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "opsplane", Subsystem: "db", Name: string(SuccessfulQueryDurationTag),
		Help: "Successful DB query durations",
	},
		[]string{"query_type"},
	),
	FailureQueryDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "opsplane", Subsystem: "db", Name: string(FailureQueryDurationTag),
		Help: "Failed DB query durations",
	},
		[]string{"query_type"},
	),
	PayrollRunDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "opsplane", Subsystem: "finance", Name: string(PayrollRunDurationTag),
		Help: "Scheduled payroll run durations per tenant",
	},
		[]string{"tenant_id"},
	),
	WebhookDeliveryDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "opsplane", Subsystem: "webhook", Name: string(WebhookDeliveryDurationTag),
		Help: "Webhook delivery attempt durations",
	},
		[]string{"status"},
	),
}

// CounterVecMetrics hold the labelled counters.
var CounterVecMetrics = map[MetricTag]*prometheus.CounterVec{
	AuditWriteFailuresTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsplane", Subsystem: "audit", Name: string(AuditWriteFailuresTag),
		Help: "Audit write failures by tenant and stage",
	},
		[]string{"tenant_id", "stage"},
	),
	OutboxPublishFailuresTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsplane", Subsystem: "outbox", Name: string(OutboxPublishFailuresTag),
		Help: "Outbox publish failures by event type",
	},
		[]string{"event_type"},
	),
	OutboxTerminalFailuresTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsplane", Subsystem: "outbox", Name: string(OutboxTerminalFailuresTag),
		Help: "Outbox rows that exhausted their attempts",
	},
		[]string{"event_type"},
	),
	PayoutGatewayOutcomeTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsplane", Subsystem: "finance", Name: string(PayoutGatewayOutcomeTag),
		Help: "Payout gateway call outcomes",
	},
		[]string{"outcome"},
	),
	PayrollBatchFailuresTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsplane", Subsystem: "finance", Name: string(PayrollBatchFailuresTag),
		Help: "Payroll batches that rolled back and were skipped over",
	},
		[]string{"tenant"},
	),
	EmailDispatchedTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsplane", Subsystem: "message", Name: string(EmailDispatchedTag),
		Help: "Emails dispatched by template and outcome",
	},
		[]string{"template", "outcome"},
	),
	JobRetriesTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsplane", Subsystem: "jobs", Name: string(JobRetriesTag),
		Help: "Job attempts that ended in a retry, by queue",
	},
		[]string{"queue"},
	),
	RateLimitHitsTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsplane", Subsystem: "guard", Name: string(RateLimitHitsTag),
		Help: "Rate limit threshold hits by identity kind and level",
	},
		[]string{"identity_kind", "level"},
	),
}

// CounterMetrics hold the unlabelled counters.
var CounterMetrics = map[MetricTag]prometheus.Counter{
	OutboxPublishedTag: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "opsplane", Subsystem: "outbox", Name: string(OutboxPublishedTag),
		Help: "Outbox rows published successfully",
	}),
}

// HistogramVecMetrics hold value-style histograms.
var HistogramVecMetrics = map[MetricTag]*prometheus.HistogramVec{}
