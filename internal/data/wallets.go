package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/opsplane/opsplane-backend/db"
)

// ErrInsufficientPayableBalance is returned when a debit would take the
// payable balance negative without the caller opting into an overdraft.
var ErrInsufficientPayableBalance = errors.New("insufficient payable balance")

// EmployeeWallet keeps two buckets: pending accrues commission until its
// booking settles, payable is what payouts can draw from.
type EmployeeWallet struct {
	ID             string    `db:"id"`
	TenantID       string    `db:"tenant_id"`
	UserID         string    `db:"user_id"`
	PendingBalance Money     `db:"pending_balance"`
	PayableBalance Money     `db:"payable_balance"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

type EmployeeWalletModel struct {
	dbConnectionPool db.DBConnectionPool
}

const employeeWalletColumns = `id, tenant_id, user_id, pending_balance, payable_balance, created_at, updated_at`

// GetOrCreate lazily provisions the wallet row on first use.
func (m *EmployeeWalletModel) GetOrCreate(ctx context.Context, sqlExec db.SQLExecuter, userID string) (*EmployeeWallet, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	insert := `
		INSERT INTO employee_wallets (tenant_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, user_id) DO NOTHING
	`
	if _, err := sqlExec.ExecContext(ctx, insert, tenantID, userID); err != nil {
		return nil, fmt.Errorf("provisioning wallet for user %s: %w", userID, err)
	}

	return m.GetByUserID(ctx, sqlExec, userID, false)
}

// GetByUserID fetches the wallet, optionally taking a row lock. Callers that
// need multiple wallets in one transaction must use GetForUpdateByUserIDs to
// keep lock acquisition ordered.
func (m *EmployeeWalletModel) GetByUserID(ctx context.Context, sqlExec db.SQLExecuter, userID string, forUpdate bool) (*EmployeeWallet, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM employee_wallets
		WHERE tenant_id = $1 AND user_id = $2
	`, employeeWalletColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}

	var wallet EmployeeWallet
	err = sqlExec.GetContext(ctx, &wallet, query, tenantID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying wallet for user %s: %w", userID, err)
	}
	return &wallet, nil
}

// GetForUpdateByUserIDs locks the wallets one by one in lexicographic user-id
// order. Every multi-wallet transaction goes through here so two concurrent
// transfers can never hold each other's locks in opposite order.
func (m *EmployeeWalletModel) GetForUpdateByUserIDs(ctx context.Context, sqlExec db.SQLExecuter, userIDs []string) (map[string]*EmployeeWallet, error) {
	ordered := make([]string, len(userIDs))
	copy(ordered, userIDs)
	sort.Strings(ordered)

	wallets := make(map[string]*EmployeeWallet, len(ordered))
	for _, userID := range ordered {
		if _, seen := wallets[userID]; seen {
			continue
		}
		wallet, err := m.GetByUserID(ctx, sqlExec, userID, true)
		if err != nil {
			return nil, fmt.Errorf("locking wallet for user %s: %w", userID, err)
		}
		wallets[userID] = wallet
	}
	return wallets, nil
}

// AddPending accrues commission into the pending bucket.
func (m *EmployeeWalletModel) AddPending(ctx context.Context, sqlExec db.SQLExecuter, walletID string, amount Money) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("pending credit must be positive, got %s", amount)
	}

	const query = `
		UPDATE employee_wallets
		SET pending_balance = pending_balance + $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3
	`
	res, err := sqlExec.ExecContext(ctx, query, amount, tenantID, walletID)
	if err != nil {
		return fmt.Errorf("adding pending balance to wallet %s: %w", walletID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MovePendingToPayable settles an accrued amount. The pending_balance CHECK
// constraint backstops the guard here.
func (m *EmployeeWalletModel) MovePendingToPayable(ctx context.Context, sqlExec db.SQLExecuter, walletID string, amount Money) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("settlement amount must be positive, got %s", amount)
	}

	const query = `
		UPDATE employee_wallets
		SET pending_balance = pending_balance - $1,
			payable_balance = payable_balance + $1,
			updated_at = now()
		WHERE tenant_id = $2 AND id = $3 AND pending_balance >= $1
	`
	res, err := sqlExec.ExecContext(ctx, query, amount, tenantID, walletID)
	if err != nil {
		return fmt.Errorf("settling pending balance of wallet %s: %w", walletID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("settling pending balance of wallet %s: %w", walletID, ErrInsufficientPayableBalance)
	}
	return nil
}

// DebitPayable withdraws from the payable bucket, refusing to overdraw.
func (m *EmployeeWalletModel) DebitPayable(ctx context.Context, sqlExec db.SQLExecuter, walletID string, amount Money) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("debit amount must be positive, got %s", amount)
	}

	const query = `
		UPDATE employee_wallets
		SET payable_balance = payable_balance - $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3 AND payable_balance >= $1
	`
	res, err := sqlExec.ExecContext(ctx, query, amount, tenantID, walletID)
	if err != nil {
		return fmt.Errorf("debiting wallet %s: %w", walletID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrInsufficientPayableBalance
	}
	return nil
}

// CreditPayable returns funds to the payable bucket, e.g. after a failed
// payout is refunded.
func (m *EmployeeWalletModel) CreditPayable(ctx context.Context, sqlExec db.SQLExecuter, walletID string, amount Money) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	const query = `
		UPDATE employee_wallets
		SET payable_balance = payable_balance + $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3
	`
	res, err := sqlExec.ExecContext(ctx, query, amount, tenantID, walletID)
	if err != nil {
		return fmt.Errorf("crediting wallet %s: %w", walletID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}
