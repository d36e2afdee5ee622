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

// DLQSequenceNumber marks rows parked outside the hash chain after repeated
// write failures. The partial unique index ignores them.
const DLQSequenceNumber = -1

type AuditLog struct {
	ID             string          `db:"id"`
	TenantID       string          `db:"tenant_id"`
	SequenceNumber int64           `db:"sequence_number"`
	PreviousHash   sql.NullString  `db:"previous_hash"`
	Hash           string          `db:"hash"`
	Action         string          `db:"action"`
	EntityName     string          `db:"entity_name"`
	EntityID       string          `db:"entity_id"`
	OldValues      json.RawMessage `db:"old_values"`
	NewValues      json.RawMessage `db:"new_values"`
	UserID         sql.NullString  `db:"user_id"`
	IP             string          `db:"ip"`
	UserAgent      string          `db:"user_agent"`
	Method         string          `db:"method"`
	Path           string          `db:"path"`
	StatusCode     int             `db:"status_code"`
	DurationMS     int64           `db:"duration_ms"`
	CreatedAt      time.Time       `db:"created_at"`
}

type AuditLogModel struct {
	dbConnectionPool db.DBConnectionPool
}

const auditLogColumns = `
	id, tenant_id, sequence_number, previous_hash, hash, action,
	entity_name, entity_id, old_values, new_values, user_id, ip,
	user_agent, method, path, status_code, duration_ms, created_at
`

// GetChainTipForUpdate locks the newest chained row of the tenant, returning
// ErrRecordNotFound for an empty chain. The writer holds this lock while
// computing the next hash so concurrent appenders serialize per tenant.
func (m *AuditLogModel) GetChainTipForUpdate(ctx context.Context, sqlExec db.SQLExecuter, tenantID string) (*AuditLog, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_logs
		WHERE tenant_id = $1 AND sequence_number >= 0
		ORDER BY sequence_number DESC
		LIMIT 1
		FOR UPDATE
	`, auditLogColumns)

	var tip AuditLog
	err := sqlExec.GetContext(ctx, &tip, query, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("locking audit chain tip of tenant %s: %w", tenantID, err)
	}
	return &tip, nil
}

// Insert appends the row. A duplicate (tenant, sequence) surfaces as
// ErrRecordAlreadyExists so the worker can re-read the tip and retry.
func (m *AuditLogModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, entry AuditLog) (*AuditLog, error) {
	if entry.TenantID == "" {
		return nil, fmt.Errorf("%w: tenantID", ErrMissingInput)
	}
	if entry.Hash == "" {
		return nil, fmt.Errorf("%w: hash", ErrMissingInput)
	}
	if entry.Action == "" {
		return nil, fmt.Errorf("%w: action", ErrMissingInput)
	}

	query := fmt.Sprintf(`
		INSERT INTO audit_logs (
			tenant_id, sequence_number, previous_hash, hash, action,
			entity_name, entity_id, old_values, new_values, user_id, ip,
			user_agent, method, path, status_code, duration_ms, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING %s
	`, auditLogColumns)

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var inserted AuditLog
	err := sqlExec.GetContext(ctx, &inserted, query,
		entry.TenantID, entry.SequenceNumber, entry.PreviousHash, entry.Hash, entry.Action,
		entry.EntityName, entry.EntityID, entry.OldValues, entry.NewValues, entry.UserID, entry.IP,
		entry.UserAgent, entry.Method, entry.Path, entry.StatusCode, entry.DurationMS, entry.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err, "") {
			return nil, ErrRecordAlreadyExists
		}
		return nil, fmt.Errorf("inserting audit log %s: %w", entry.Action, err)
	}
	return &inserted, nil
}

// GetChain returns the chained rows of the tenant in sequence order, capped
// at limit (0 means everything). Verification walks this slice.
func (m *AuditLogModel) GetChain(ctx context.Context, tenantID string, limit int) ([]AuditLog, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_logs
		WHERE tenant_id = $1 AND sequence_number >= 0
		ORDER BY sequence_number ASC
	`, auditLogColumns)
	args := []interface{}{tenantID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	logs := []AuditLog{}
	if err := m.dbConnectionPool.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("querying audit chain of tenant %s: %w", tenantID, err)
	}
	return logs, nil
}

// GetDLQ lists parked rows, newest first.
func (m *AuditLogModel) GetDLQ(ctx context.Context, tenantID string, limit int) ([]AuditLog, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_logs
		WHERE tenant_id = $1 AND sequence_number = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, auditLogColumns)

	logs := []AuditLog{}
	if err := m.dbConnectionPool.SelectContext(ctx, &logs, query, tenantID, DLQSequenceNumber, limit); err != nil {
		return nil, fmt.Errorf("querying audit DLQ of tenant %s: %w", tenantID, err)
	}
	return logs, nil
}

type AuditLogQueryParams struct {
	Action     string
	EntityName string
	EntityID   string
	UserID     string
	Page       int
	PageLimit  int
}

// GetAll serves the tenant-facing audit listing; unlike GetChain it derives
// the tenant from the ambient context.
func (m *AuditLogModel) GetAll(ctx context.Context, params AuditLogQueryParams) ([]AuditLog, error) {
	qb, err := NewTenantScopedQueryBuilder(ctx, fmt.Sprintf("SELECT %s FROM audit_logs a", prefixColumns(auditLogColumns, "a")), "a")
	if err != nil {
		return nil, err
	}
	qb.AddCondition("a.sequence_number >= 0")
	if params.Action != "" {
		qb.AddCondition("a.action = ?", params.Action)
	}
	if params.EntityName != "" {
		qb.AddCondition("a.entity_name = ?", params.EntityName)
	}
	if params.EntityID != "" {
		qb.AddCondition("a.entity_id = ?", params.EntityID)
	}
	if params.UserID != "" {
		qb.AddCondition("a.user_id = ?", params.UserID)
	}
	qb.AddSorting("sequence_number", SortOrderDESC, "a")
	qb.AddPagination(params.Page, params.PageLimit)
	query, args := qb.BuildAndRebind(m.dbConnectionPool)

	logs := []AuditLog{}
	if err := m.dbConnectionPool.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	return logs, nil
}
