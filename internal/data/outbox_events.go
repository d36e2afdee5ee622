package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
)

type OutboxEventStatus string

const (
	OutboxEventStatusPending   OutboxEventStatus = "PENDING"
	OutboxEventStatusPublished OutboxEventStatus = "PUBLISHED"
	OutboxEventStatusFailed    OutboxEventStatus = "FAILED"
)

// OutboxEvent is written in the same transaction as the state change it
// describes; the relay publishes it afterwards.
type OutboxEvent struct {
	ID            string            `db:"id"`
	TenantID      string            `db:"tenant_id"`
	AggregateType string            `db:"aggregate_type"`
	AggregateID   string            `db:"aggregate_id"`
	EventType     string            `db:"event_type"`
	Payload       json.RawMessage   `db:"payload"`
	Status        OutboxEventStatus `db:"status"`
	CreatedAt     time.Time         `db:"created_at"`
	PublishedAt   *time.Time        `db:"published_at"`
	Attempts      int               `db:"attempts"`
	NextAttemptAt *time.Time        `db:"next_attempt_at"`
	LastError     *string           `db:"last_error"`
}

type OutboxEventModel struct {
	dbConnectionPool db.DBConnectionPool
}

const outboxEventColumns = `
	id, tenant_id, aggregate_type, aggregate_id, event_type, payload,
	status, created_at, published_at, attempts, next_attempt_at, last_error
`

// Insert must run on the caller's transaction executer; writing an outbox row
// outside the business transaction defeats the point.
func (m *OutboxEventModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, aggregateType, aggregateID, eventType string, payload any) (*OutboxEvent, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if aggregateType == "" || eventType == "" {
		return nil, fmt.Errorf("%w: aggregateType and eventType", ErrMissingInput)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload of %s event: %w", eventType, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO outbox_events (tenant_id, aggregate_type, aggregate_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING %s
	`, outboxEventColumns)

	var event OutboxEvent
	err = sqlExec.GetContext(ctx, &event, query, tenantID, aggregateType, aggregateID, eventType, payloadJSON)
	if err != nil {
		return nil, fmt.Errorf("inserting outbox event %s: %w", eventType, err)
	}
	return &event, nil
}

// ClaimBatch locks a batch of publishable events across all tenants with
// SKIP LOCKED. The relay additionally holds a global advisory lock, so this
// is belt and suspenders against a second relay instance.
func (m *OutboxEventModel) ClaimBatch(ctx context.Context, sqlExec db.SQLExecuter, now time.Time, limit int) ([]OutboxEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM outbox_events
		WHERE status = $1 AND published_at IS NULL
			AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
		ORDER BY created_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, outboxEventColumns)

	events := []OutboxEvent{}
	if err := sqlExec.SelectContext(ctx, &events, query, OutboxEventStatusPending, now, limit); err != nil {
		return nil, fmt.Errorf("claiming outbox events: %w", err)
	}
	return events, nil
}

func (m *OutboxEventModel) MarkPublished(ctx context.Context, sqlExec db.SQLExecuter, eventID string) error {
	const query = `
		UPDATE outbox_events
		SET status = $1, published_at = now(), last_error = NULL
		WHERE id = $2 AND published_at IS NULL
	`
	res, err := sqlExec.ExecContext(ctx, query, OutboxEventStatusPublished, eventID)
	if err != nil {
		return fmt.Errorf("marking outbox event %s published: %w", eventID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkAttemptFailed records the failure and schedules the next attempt.
func (m *OutboxEventModel) MarkAttemptFailed(ctx context.Context, sqlExec db.SQLExecuter, eventID, lastError string, nextAttemptAt time.Time) error {
	const query = `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $1, next_attempt_at = $2
		WHERE id = $3 AND published_at IS NULL
	`
	res, err := sqlExec.ExecContext(ctx, query, TruncateError(lastError), nextAttemptAt, eventID)
	if err != nil {
		return fmt.Errorf("recording outbox event %s failure: %w", eventID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkTerminallyFailed parks the event; it will never be retried without
// manual intervention.
func (m *OutboxEventModel) MarkTerminallyFailed(ctx context.Context, sqlExec db.SQLExecuter, eventID, lastError string) error {
	const query = `
		UPDATE outbox_events
		SET status = $1, attempts = attempts + 1, last_error = $2, next_attempt_at = NULL
		WHERE id = $3 AND published_at IS NULL
	`
	res, err := sqlExec.ExecContext(ctx, query, OutboxEventStatusFailed, TruncateError(lastError), eventID)
	if err != nil {
		return fmt.Errorf("marking outbox event %s terminally failed: %w", eventID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// CountBacklog reports unpublished events; exported as a gauge-ish metric by
// the relay pass.
func (m *OutboxEventModel) CountBacklog(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM outbox_events WHERE status = $1 AND published_at IS NULL`
	var count int64
	if err := m.dbConnectionPool.GetContext(ctx, &count, query, OutboxEventStatusPending); err != nil {
		return 0, fmt.Errorf("counting outbox backlog: %w", err)
	}
	return count, nil
}
