package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/opsplane/opsplane-backend/db"
)

var ErrInvalidTransactionSign = errors.New("negative amounts are only allowed for income reversals")

type TransactionType string

const (
	TransactionTypeIncome     TransactionType = "INCOME"
	TransactionTypeExpense    TransactionType = "EXPENSE"
	TransactionTypeCommission TransactionType = "COMMISSION"
	TransactionTypePayroll    TransactionType = "PAYROLL"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeIncome, TransactionTypeExpense, TransactionTypeCommission, TransactionTypePayroll:
		return true
	}
	return false
}

var reversalCategoryRegex = regexp.MustCompile(`(?i)refund|reversal`)

// Transaction rows are append-only; corrections are compensating entries.
type Transaction struct {
	ID              string          `db:"id"`
	TenantID        string          `db:"tenant_id"`
	Type            TransactionType `db:"type"`
	Amount          Money           `db:"amount"`
	Currency        string          `db:"currency"`
	ExchangeRate    Rate            `db:"exchange_rate"`
	Category        string          `db:"category"`
	BookingID       *string         `db:"booking_id"`
	TaskID          *string         `db:"task_id"`
	PayoutID        *string         `db:"payout_id"`
	Description     string          `db:"description"`
	TransactionDate time.Time       `db:"transaction_date"`
	CreatedAt       time.Time       `db:"created_at"`
}

// ValidateAmountSign enforces the ledger sign rule: a negative amount is only
// legal on an INCOME row that either references a booking or is categorized as
// a refund/reversal.
func (t *Transaction) ValidateAmountSign() error {
	if !t.Amount.IsNegative() {
		return nil
	}
	if t.Type != TransactionTypeIncome {
		return fmt.Errorf("%w: type %s", ErrInvalidTransactionSign, t.Type)
	}
	if t.BookingID == nil && !reversalCategoryRegex.MatchString(t.Category) {
		return fmt.Errorf("%w: category %q", ErrInvalidTransactionSign, t.Category)
	}
	return nil
}

type TransactionModel struct {
	dbConnectionPool db.DBConnectionPool
}

const transactionColumns = `
	id, tenant_id, type, amount, currency, exchange_rate, category,
	booking_id, task_id, payout_id, description, transaction_date, created_at
`

func (m *TransactionModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, tx Transaction) (*Transaction, error) {
	tenantID, err := requireRowTenant(ctx, tx.TenantID)
	if err != nil {
		return nil, err
	}
	if !tx.Type.IsValid() {
		return nil, fmt.Errorf("%w: invalid transaction type %q", ErrMissingInput, tx.Type)
	}
	if tx.Currency == "" {
		return nil, fmt.Errorf("%w: currency", ErrMissingInput)
	}
	if tx.Amount.IsZero() {
		return nil, fmt.Errorf("%w: amount", ErrMissingInput)
	}
	if err := tx.ValidateAmountSign(); err != nil {
		return nil, err
	}
	if tx.ExchangeRate.IsZero() {
		tx.ExchangeRate = NewRate(oneDecimal)
	}
	if tx.TransactionDate.IsZero() {
		tx.TransactionDate = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO transactions (
			tenant_id, type, amount, currency, exchange_rate, category,
			booking_id, task_id, payout_id, description, transaction_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING %s
	`, transactionColumns)

	var inserted Transaction
	err = sqlExec.GetContext(ctx, &inserted, query,
		tenantID, tx.Type, tx.Amount, tx.Currency, tx.ExchangeRate, tx.Category,
		tx.BookingID, tx.TaskID, tx.PayoutID, tx.Description, tx.TransactionDate)
	if err != nil {
		return nil, fmt.Errorf("inserting %s transaction: %w", tx.Type, err)
	}
	return &inserted, nil
}

func (m *TransactionModel) Get(ctx context.Context, sqlExec db.SQLExecuter, transactionID string) (*Transaction, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE tenant_id = $1 AND id = $2
	`, transactionColumns)

	var tx Transaction
	err = sqlExec.GetContext(ctx, &tx, query, tenantID, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying transaction %s: %w", transactionID, err)
	}
	return &tx, nil
}

type TransactionQueryParams struct {
	Types     []TransactionType
	Category  string
	BookingID string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageLimit int
}

func (m *TransactionModel) GetAll(ctx context.Context, params TransactionQueryParams) ([]Transaction, error) {
	qb, err := NewTenantScopedQueryBuilder(ctx, fmt.Sprintf("SELECT %s FROM transactions t", prefixColumns(transactionColumns, "t")), "t")
	if err != nil {
		return nil, err
	}
	if len(params.Types) > 0 {
		qb.AddGroupedConditions(func(g *GroupedConditions) {
			for _, txType := range params.Types {
				g.AddOrCondition("t.type = ?", txType)
			}
		})
	}
	if params.Category != "" {
		qb.AddCondition("t.category = ?", params.Category)
	}
	if params.BookingID != "" {
		qb.AddCondition("t.booking_id = ?", params.BookingID)
	}
	if params.DateFrom != nil {
		qb.AddCondition("t.transaction_date >= ?", *params.DateFrom)
	}
	if params.DateTo != nil {
		qb.AddCondition("t.transaction_date <= ?", *params.DateTo)
	}
	qb.AddSorting("transaction_date", SortOrderDESC, "t")
	qb.AddPagination(params.Page, params.PageLimit)
	query, args := qb.BuildAndRebind(m.dbConnectionPool)

	transactions := []Transaction{}
	if err := m.dbConnectionPool.SelectContext(ctx, &transactions, query, args...); err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	return transactions, nil
}

// SumByTypeInBaseCurrency aggregates amounts converted at the stored rate.
func (m *TransactionModel) SumByTypeInBaseCurrency(ctx context.Context, dateFrom, dateTo time.Time) (map[TransactionType]Money, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	const query = `
		SELECT type, COALESCE(SUM(amount * exchange_rate), 0) AS total
		FROM transactions
		WHERE tenant_id = $1 AND transaction_date >= $2 AND transaction_date <= $3
		GROUP BY type
	`
	rows := []struct {
		Type  TransactionType `db:"type"`
		Total Money           `db:"total"`
	}{}
	if err := m.dbConnectionPool.SelectContext(ctx, &rows, query, tenantID, dateFrom, dateTo); err != nil {
		return nil, fmt.Errorf("summing transactions: %w", err)
	}

	totals := make(map[TransactionType]Money, len(rows))
	for _, r := range rows {
		totals[r.Type] = r.Total
	}
	return totals, nil
}
