package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
)

func payoutStateMachine(current PayoutStatus) *StateMachine {
	return NewStateMachine(State(current), []StateTransition{
		{From: State(PayoutStatusPending), To: State(PayoutStatusProcessing)},
		{From: State(PayoutStatusPending), To: State(PayoutStatusFailed)},
		{From: State(PayoutStatusProcessing), To: State(PayoutStatusCompleted)},
		{From: State(PayoutStatusProcessing), To: State(PayoutStatusFailed)},
	})
}

func (s PayoutStatus) CanTransitionTo(target PayoutStatus) bool {
	return payoutStateMachine(s).CanTransitionTo(State(target))
}

type Payout struct {
	ID               string         `db:"id"`
	TenantID         string         `db:"tenant_id"`
	UserID           string         `db:"user_id"`
	Amount           Money          `db:"amount"`
	Status           PayoutStatus   `db:"status"`
	IdempotencyKey   string         `db:"idempotency_key"`
	GatewayReference sql.NullString `db:"gateway_reference"`
	Notes            string         `db:"notes"`
	PayoutDate       time.Time      `db:"payout_date"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

type PayoutModel struct {
	dbConnectionPool db.DBConnectionPool
}

const payoutColumns = `
	id, tenant_id, user_id, amount, status, idempotency_key,
	gateway_reference, notes, payout_date, created_at, updated_at
`

// Insert persists the payout. A repeated idempotency key surfaces as
// ErrRecordAlreadyExists so the caller can fetch and return the first row.
func (m *PayoutModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, userID string, amount Money, idempotencyKey, notes string) (*Payout, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payout amount must be positive, got %s", amount)
	}
	if idempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotencyKey", ErrMissingInput)
	}

	query := fmt.Sprintf(`
		INSERT INTO payouts (tenant_id, user_id, amount, idempotency_key, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING %s
	`, payoutColumns)

	var payout Payout
	err = sqlExec.GetContext(ctx, &payout, query, tenantID, userID, amount, idempotencyKey, notes)
	if err != nil {
		if IsUniqueViolation(err, "") {
			return nil, ErrRecordAlreadyExists
		}
		return nil, fmt.Errorf("inserting payout for user %s: %w", userID, err)
	}
	return &payout, nil
}

func (m *PayoutModel) Get(ctx context.Context, sqlExec db.SQLExecuter, payoutID string, forUpdate bool) (*Payout, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM payouts
		WHERE tenant_id = $1 AND id = $2
	`, payoutColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}

	var payout Payout
	err = sqlExec.GetContext(ctx, &payout, query, tenantID, payoutID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying payout %s: %w", payoutID, err)
	}
	return &payout, nil
}

func (m *PayoutModel) GetByIdempotencyKey(ctx context.Context, sqlExec db.SQLExecuter, idempotencyKey string) (*Payout, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM payouts
		WHERE tenant_id = $1 AND idempotency_key = $2
	`, payoutColumns)

	var payout Payout
	err = sqlExec.GetContext(ctx, &payout, query, tenantID, idempotencyKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying payout by idempotency key: %w", err)
	}
	return &payout, nil
}

// UpdateStatus guards on the expected current status, same pattern as
// bookings and tasks.
func (m *PayoutModel) UpdateStatus(ctx context.Context, sqlExec db.SQLExecuter, payoutID string, from, to PayoutStatus, gatewayReference string) (*Payout, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: payout %s -> %s", ErrInvalidStatusTransition, from, to)
	}

	query := fmt.Sprintf(`
		UPDATE payouts
		SET status = $1,
			gateway_reference = COALESCE(NULLIF($2, ''), gateway_reference),
			updated_at = now()
		WHERE tenant_id = $3 AND id = $4 AND status = $5
		RETURNING %s
	`, payoutColumns)

	var payout Payout
	err = sqlExec.GetContext(ctx, &payout, query, to, gatewayReference, tenantID, payoutID, from)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: payout %s is no longer %s", ErrInvalidStatusTransition, payoutID, from)
		}
		return nil, fmt.Errorf("updating payout %s status: %w", payoutID, err)
	}
	return &payout, nil
}

func (m *PayoutModel) GetAllForUser(ctx context.Context, userID string, page, pageLimit int) ([]Payout, error) {
	qb, err := NewTenantScopedQueryBuilder(ctx, fmt.Sprintf("SELECT %s FROM payouts p", prefixColumns(payoutColumns, "p")), "p")
	if err != nil {
		return nil, err
	}
	if userID != "" {
		qb.AddCondition("p.user_id = ?", userID)
	}
	qb.AddSorting("created_at", SortOrderDESC, "p")
	qb.AddPagination(page, pageLimit)
	query, args := qb.BuildAndRebind(m.dbConnectionPool)

	payouts := []Payout{}
	if err := m.dbConnectionPool.SelectContext(ctx, &payouts, query, args...); err != nil {
		return nil, fmt.Errorf("querying payouts: %w", err)
	}
	return payouts, nil
}
