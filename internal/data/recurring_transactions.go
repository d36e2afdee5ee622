package data

import (
	"context"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
)

type RecurringFrequency string

const (
	RecurringFrequencyDaily   RecurringFrequency = "DAILY"
	RecurringFrequencyWeekly  RecurringFrequency = "WEEKLY"
	RecurringFrequencyMonthly RecurringFrequency = "MONTHLY"
)

func (f RecurringFrequency) IsValid() bool {
	switch f {
	case RecurringFrequencyDaily, RecurringFrequencyWeekly, RecurringFrequencyMonthly:
		return true
	}
	return false
}

// Next returns the next run time after from.
func (f RecurringFrequency) Next(from time.Time) time.Time {
	switch f {
	case RecurringFrequencyDaily:
		return from.AddDate(0, 0, 1)
	case RecurringFrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case RecurringFrequencyMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from.AddDate(0, 0, 1)
	}
}

type RecurringTransaction struct {
	ID          string             `db:"id"`
	TenantID    string             `db:"tenant_id"`
	Type        TransactionType    `db:"type"`
	Amount      Money              `db:"amount"`
	Currency    string             `db:"currency"`
	Category    string             `db:"category"`
	Description string             `db:"description"`
	Frequency   RecurringFrequency `db:"frequency"`
	NextRunAt   time.Time          `db:"next_run_at"`
	IsActive    bool               `db:"is_active"`
	CreatedAt   time.Time          `db:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at"`
}

type RecurringTransactionModel struct {
	dbConnectionPool db.DBConnectionPool
}

const recurringTransactionColumns = `
	id, tenant_id, type, amount, currency, category, description,
	frequency, next_run_at, is_active, created_at, updated_at
`

func (m *RecurringTransactionModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, rt RecurringTransaction) (*RecurringTransaction, error) {
	tenantID, err := requireRowTenant(ctx, rt.TenantID)
	if err != nil {
		return nil, err
	}
	if rt.Type != TransactionTypeIncome && rt.Type != TransactionTypeExpense {
		return nil, fmt.Errorf("%w: recurring transactions support INCOME and EXPENSE, got %q", ErrMissingInput, rt.Type)
	}
	if !rt.Frequency.IsValid() {
		return nil, fmt.Errorf("%w: invalid frequency %q", ErrMissingInput, rt.Frequency)
	}
	if rt.Currency == "" {
		return nil, fmt.Errorf("%w: currency", ErrMissingInput)
	}
	if rt.NextRunAt.IsZero() {
		rt.NextRunAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO recurring_transactions (
			tenant_id, type, amount, currency, category, description, frequency, next_run_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING %s
	`, recurringTransactionColumns)

	var inserted RecurringTransaction
	err = sqlExec.GetContext(ctx, &inserted, query,
		tenantID, rt.Type, rt.Amount, rt.Currency, rt.Category, rt.Description, rt.Frequency, rt.NextRunAt)
	if err != nil {
		return nil, fmt.Errorf("inserting recurring transaction: %w", err)
	}
	return &inserted, nil
}

// ClaimDue locks due schedules with SKIP LOCKED so overlapping scheduler
// passes never materialize the same occurrence twice.
func (m *RecurringTransactionModel) ClaimDue(ctx context.Context, sqlExec db.SQLExecuter, now time.Time, limit int) ([]RecurringTransaction, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM recurring_transactions
		WHERE tenant_id = $1 AND is_active = true AND next_run_at <= $2
		ORDER BY next_run_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, recurringTransactionColumns)

	due := []RecurringTransaction{}
	if err := sqlExec.SelectContext(ctx, &due, query, tenantID, now, limit); err != nil {
		return nil, fmt.Errorf("claiming due recurring transactions: %w", err)
	}
	return due, nil
}

// Advance moves next_run_at past now, stepping by the frequency repeatedly so
// a schedule that lagged several periods does not fire in a burst.
func (m *RecurringTransactionModel) Advance(ctx context.Context, sqlExec db.SQLExecuter, rt *RecurringTransaction, now time.Time) error {
	tenantID, err := requireRowTenant(ctx, rt.TenantID)
	if err != nil {
		return err
	}

	next := rt.NextRunAt
	for !next.After(now) {
		next = rt.Frequency.Next(next)
	}

	const query = `
		UPDATE recurring_transactions
		SET next_run_at = $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3
	`
	res, err := sqlExec.ExecContext(ctx, query, next, tenantID, rt.ID)
	if err != nil {
		return fmt.Errorf("advancing recurring transaction %s: %w", rt.ID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	rt.NextRunAt = next
	return nil
}

func (m *RecurringTransactionModel) SetActive(ctx context.Context, recurringID string, active bool) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	const query = `
		UPDATE recurring_transactions
		SET is_active = $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3
	`
	res, err := m.dbConnectionPool.ExecContext(ctx, query, active, tenantID, recurringID)
	if err != nil {
		return fmt.Errorf("toggling recurring transaction %s: %w", recurringID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m *RecurringTransactionModel) GetAll(ctx context.Context, page, pageLimit int) ([]RecurringTransaction, error) {
	qb, err := NewTenantScopedQueryBuilder(ctx, fmt.Sprintf("SELECT %s FROM recurring_transactions r", prefixColumns(recurringTransactionColumns, "r")), "r")
	if err != nil {
		return nil, err
	}
	qb.AddSorting("next_run_at", SortOrderASC, "r")
	qb.AddPagination(page, pageLimit)
	query, args := qb.BuildAndRebind(m.dbConnectionPool)

	schedules := []RecurringTransaction{}
	if err := m.dbConnectionPool.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, fmt.Errorf("querying recurring transactions: %w", err)
	}
	return schedules, nil
}
