package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
)

type WebhookDeliveryStatus string

const (
	WebhookDeliveryStatusPending   WebhookDeliveryStatus = "PENDING"
	WebhookDeliveryStatusRetrying  WebhookDeliveryStatus = "RETRYING"
	WebhookDeliveryStatusDelivered WebhookDeliveryStatus = "DELIVERED"
	WebhookDeliveryStatusFailed    WebhookDeliveryStatus = "FAILED"
)

type WebhookDelivery struct {
	ID             string                `db:"id"`
	TenantID       string                `db:"tenant_id"`
	WebhookID      string                `db:"webhook_id"`
	EventType      string                `db:"event_type"`
	RequestBody    string                `db:"request_body"`
	RequestHeaders json.RawMessage       `db:"request_headers"`
	Status         WebhookDeliveryStatus `db:"status"`
	ResponseStatus *int                  `db:"response_status"`
	AttemptNumber  int                   `db:"attempt_number"`
	MaxAttempts    int                   `db:"max_attempts"`
	NextRetryAt    *time.Time            `db:"next_retry_at"`
	DeliveredAt    *time.Time            `db:"delivered_at"`
	DurationMS     *int64                `db:"duration_ms"`
	CreatedAt      time.Time             `db:"created_at"`
	UpdatedAt      time.Time             `db:"updated_at"`
}

type WebhookDeliveryModel struct {
	dbConnectionPool db.DBConnectionPool
}

const webhookDeliveryColumns = `
	id, tenant_id, webhook_id, event_type, request_body, request_headers,
	status, response_status, attempt_number, max_attempts, next_retry_at,
	delivered_at, duration_ms, created_at, updated_at
`

func (m *WebhookDeliveryModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, webhookID, eventType, requestBody string, headers map[string]string, maxAttempts int) (*WebhookDelivery, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("marshaling delivery headers: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO webhook_deliveries (tenant_id, webhook_id, event_type, request_body, request_headers, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s
	`, webhookDeliveryColumns)

	var delivery WebhookDelivery
	err = sqlExec.GetContext(ctx, &delivery, query, tenantID, webhookID, eventType, requestBody, headersJSON, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("inserting webhook delivery for %s: %w", webhookID, err)
	}
	return &delivery, nil
}

func (m *WebhookDeliveryModel) Get(ctx context.Context, sqlExec db.SQLExecuter, deliveryID string, forUpdate bool) (*WebhookDelivery, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM webhook_deliveries
		WHERE tenant_id = $1 AND id = $2
	`, webhookDeliveryColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}

	var delivery WebhookDelivery
	err = sqlExec.GetContext(ctx, &delivery, query, tenantID, deliveryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying webhook delivery %s: %w", deliveryID, err)
	}
	return &delivery, nil
}

func (m *WebhookDeliveryModel) MarkDelivered(ctx context.Context, sqlExec db.SQLExecuter, deliveryID string, responseStatus int, durationMS int64) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	const query = `
		UPDATE webhook_deliveries
		SET status = $1, response_status = $2, duration_ms = $3,
			delivered_at = now(), next_retry_at = NULL, updated_at = now()
		WHERE tenant_id = $4 AND id = $5
	`
	res, err := sqlExec.ExecContext(ctx, query, WebhookDeliveryStatusDelivered, responseStatus, durationMS, tenantID, deliveryID)
	if err != nil {
		return fmt.Errorf("marking delivery %s delivered: %w", deliveryID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkRetrying bumps the attempt counter and schedules the next try; callers
// switch to MarkFailed once attempt_number reaches max_attempts.
func (m *WebhookDeliveryModel) MarkRetrying(ctx context.Context, sqlExec db.SQLExecuter, deliveryID string, responseStatus *int, nextRetryAt time.Time) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	const query = `
		UPDATE webhook_deliveries
		SET status = $1, response_status = $2, attempt_number = attempt_number + 1,
			next_retry_at = $3, updated_at = now()
		WHERE tenant_id = $4 AND id = $5
	`
	res, err := sqlExec.ExecContext(ctx, query, WebhookDeliveryStatusRetrying, responseStatus, nextRetryAt, tenantID, deliveryID)
	if err != nil {
		return fmt.Errorf("marking delivery %s retrying: %w", deliveryID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m *WebhookDeliveryModel) MarkFailed(ctx context.Context, sqlExec db.SQLExecuter, deliveryID string, responseStatus *int) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	const query = `
		UPDATE webhook_deliveries
		SET status = $1, response_status = $2, attempt_number = attempt_number + 1,
			next_retry_at = NULL, updated_at = now()
		WHERE tenant_id = $3 AND id = $4
	`
	res, err := sqlExec.ExecContext(ctx, query, WebhookDeliveryStatusFailed, responseStatus, tenantID, deliveryID)
	if err != nil {
		return fmt.Errorf("marking delivery %s failed: %w", deliveryID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m *WebhookDeliveryModel) GetAllForWebhook(ctx context.Context, webhookID string, page, pageLimit int) ([]WebhookDelivery, error) {
	qb, err := NewTenantScopedQueryBuilder(ctx, fmt.Sprintf("SELECT %s FROM webhook_deliveries d", prefixColumns(webhookDeliveryColumns, "d")), "d")
	if err != nil {
		return nil, err
	}
	qb.AddCondition("d.webhook_id = ?", webhookID)
	qb.AddSorting("created_at", SortOrderDESC, "d")
	qb.AddPagination(page, pageLimit)
	query, args := qb.BuildAndRebind(m.dbConnectionPool)

	deliveries := []WebhookDelivery{}
	if err := m.dbConnectionPool.SelectContext(ctx, &deliveries, query, args...); err != nil {
		return nil, fmt.Errorf("querying deliveries of webhook %s: %w", webhookID, err)
	}
	return deliveries, nil
}
