package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/opsplane/opsplane-backend/db"
)

type Webhook struct {
	ID         string         `db:"id"`
	TenantID   string         `db:"tenant_id"`
	URL        string         `db:"url"`
	Secret     string         `db:"secret"`
	EventTypes pq.StringArray `db:"event_types"`
	IsActive   bool           `db:"is_active"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

type WebhookModel struct {
	dbConnectionPool db.DBConnectionPool
}

const webhookColumns = `id, tenant_id, url, secret, event_types, is_active, created_at, updated_at`

func (m *WebhookModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, url, secret string, eventTypes []string) (*Webhook, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, fmt.Errorf("%w: url", ErrMissingInput)
	}
	if secret == "" {
		return nil, fmt.Errorf("%w: secret", ErrMissingInput)
	}

	query := fmt.Sprintf(`
		INSERT INTO webhooks (tenant_id, url, secret, event_types)
		VALUES ($1, $2, $3, $4)
		RETURNING %s
	`, webhookColumns)

	var webhook Webhook
	err = sqlExec.GetContext(ctx, &webhook, query, tenantID, url, secret, pq.StringArray(eventTypes))
	if err != nil {
		return nil, fmt.Errorf("inserting webhook: %w", err)
	}
	return &webhook, nil
}

func (m *WebhookModel) Get(ctx context.Context, webhookID string) (*Webhook, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM webhooks
		WHERE tenant_id = $1 AND id = $2
	`, webhookColumns)

	var webhook Webhook
	err = m.dbConnectionPool.GetContext(ctx, &webhook, query, tenantID, webhookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying webhook %s: %w", webhookID, err)
	}
	return &webhook, nil
}

// GetActiveByEventType returns the subscriptions to fan an event out to.
func (m *WebhookModel) GetActiveByEventType(ctx context.Context, sqlExec db.SQLExecuter, eventType string) ([]Webhook, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM webhooks
		WHERE tenant_id = $1 AND is_active = true AND $2 = ANY(event_types)
		ORDER BY created_at
	`, webhookColumns)

	webhooks := []Webhook{}
	if err := sqlExec.SelectContext(ctx, &webhooks, query, tenantID, eventType); err != nil {
		return nil, fmt.Errorf("querying webhooks for event %s: %w", eventType, err)
	}
	return webhooks, nil
}

func (m *WebhookModel) GetAll(ctx context.Context) ([]Webhook, error) {
	qb, err := NewTenantScopedQueryBuilder(ctx, fmt.Sprintf("SELECT %s FROM webhooks w", prefixColumns(webhookColumns, "w")), "w")
	if err != nil {
		return nil, err
	}
	qb.AddSorting("created_at", SortOrderASC, "w")
	query, args := qb.BuildAndRebind(m.dbConnectionPool)

	webhooks := []Webhook{}
	if err := m.dbConnectionPool.SelectContext(ctx, &webhooks, query, args...); err != nil {
		return nil, fmt.Errorf("querying webhooks: %w", err)
	}
	return webhooks, nil
}

func (m *WebhookModel) Update(ctx context.Context, webhookID string, url *string, eventTypes []string, isActive *bool) (*Webhook, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE webhooks
		SET url = COALESCE($1, url),
			event_types = COALESCE($2, event_types),
			is_active = COALESCE($3, is_active),
			updated_at = now()
		WHERE tenant_id = $4 AND id = $5
		RETURNING %s
	`, webhookColumns)

	var types interface{}
	if eventTypes != nil {
		types = pq.StringArray(eventTypes)
	}

	var webhook Webhook
	err = m.dbConnectionPool.GetContext(ctx, &webhook, query, url, types, isActive, tenantID, webhookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("updating webhook %s: %w", webhookID, err)
	}
	return &webhook, nil
}

func (m *WebhookModel) Delete(ctx context.Context, webhookID string) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	const query = `DELETE FROM webhooks WHERE tenant_id = $1 AND id = $2`
	res, err := m.dbConnectionPool.ExecContext(ctx, query, tenantID, webhookID)
	if err != nil {
		return fmt.Errorf("deleting webhook %s: %w", webhookID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// WebhookProviderMapping resolves inbound provider callbacks to a tenant.
type WebhookProviderMapping struct {
	Provider          string    `db:"provider"`
	ProviderAccountID string    `db:"provider_account_id"`
	TenantID          string    `db:"tenant_id"`
	CreatedAt         time.Time `db:"created_at"`
}

// ResolveProviderTenant is deliberately unscoped: it runs before any tenant
// context exists, keyed only on what the provider signs.
func (m *WebhookModel) ResolveProviderTenant(ctx context.Context, provider, providerAccountID string) (string, error) {
	const query = `
		SELECT tenant_id FROM webhook_provider_mappings
		WHERE provider = $1 AND provider_account_id = $2
	`
	var tenantID string
	err := m.dbConnectionPool.GetContext(ctx, &tenantID, query, provider, providerAccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRecordNotFound
		}
		return "", fmt.Errorf("resolving provider mapping %s/%s: %w", provider, providerAccountID, err)
	}
	return tenantID, nil
}

func (m *WebhookModel) UpsertProviderMapping(ctx context.Context, provider, providerAccountID string) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO webhook_provider_mappings (provider, provider_account_id, tenant_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, provider_account_id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id
	`
	if _, err := m.dbConnectionPool.ExecContext(ctx, query, provider, providerAccountID, tenantID); err != nil {
		return fmt.Errorf("upserting provider mapping %s/%s: %w", provider, providerAccountID, err)
	}
	return nil
}
