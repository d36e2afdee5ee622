package monitor

type MetricTag string

const (
	SuccessfulQueryDurationTag MetricTag = "successful_queries_duration"
	FailureQueryDurationTag    MetricTag = "failure_queries_duration"
	HttpRequestDurationTag     MetricTag = "requests_duration_seconds"
	// Audit chain:
	AuditWriteFailuresTag MetricTag = "audit_write_failures_total"
	// Outbox relay:
	OutboxPublishedTag        MetricTag = "outbox_published_total"
	OutboxPublishFailuresTag  MetricTag = "outbox_publish_failures_total"
	OutboxTerminalFailuresTag MetricTag = "outbox_terminal_failures_total"
	// Financial core:
	PayoutGatewayOutcomeTag MetricTag = "payout_gateway_outcomes_total"
	PayrollRunDurationTag   MetricTag = "payroll_run_duration_seconds"
	PayrollBatchFailuresTag MetricTag = "payroll_batch_failures_total"
	// Pipelines:
	WebhookDeliveryDurationTag MetricTag = "webhook_delivery_duration_seconds"
	EmailDispatchedTag         MetricTag = "emails_dispatched_total"
	JobRetriesTag              MetricTag = "job_retries_total"
	// Guard:
	RateLimitHitsTag MetricTag = "rate_limit_hits_total"
)

func (m MetricTag) ListAll() []MetricTag {
	return []MetricTag{
		SuccessfulQueryDurationTag,
		FailureQueryDurationTag,
		HttpRequestDurationTag,
		AuditWriteFailuresTag,
		OutboxPublishedTag,
		OutboxPublishFailuresTag,
		OutboxTerminalFailuresTag,
		PayoutGatewayOutcomeTag,
		PayrollRunDurationTag,
		PayrollBatchFailuresTag,
		WebhookDeliveryDurationTag,
		EmailDispatchedTag,
		JobRetriesTag,
		RateLimitHitsTag,
	}
}
