package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
)

type EmployeeProfile struct {
	ID             string    `db:"id"`
	TenantID       string    `db:"tenant_id"`
	UserID         string    `db:"user_id"`
	BaseSalary     Money     `db:"base_salary"`
	CommissionRate Percent   `db:"commission_rate"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

type EmployeeProfileModel struct {
	dbConnectionPool db.DBConnectionPool
}

const employeeProfileColumns = `id, tenant_id, user_id, base_salary, commission_rate, created_at, updated_at`

func (m *EmployeeProfileModel) Upsert(ctx context.Context, sqlExec db.SQLExecuter, userID string, baseSalary Money, commissionRate Percent) (*EmployeeProfile, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: userID", ErrMissingInput)
	}
	if baseSalary.IsNegative() {
		return nil, fmt.Errorf("base salary cannot be negative")
	}

	query := fmt.Sprintf(`
		INSERT INTO employee_profiles (tenant_id, user_id, base_salary, commission_rate)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_id) DO UPDATE
		SET base_salary = EXCLUDED.base_salary,
			commission_rate = EXCLUDED.commission_rate,
			updated_at = now()
		RETURNING %s
	`, employeeProfileColumns)

	var profile EmployeeProfile
	err = sqlExec.GetContext(ctx, &profile, query, tenantID, userID, baseSalary, commissionRate)
	if err != nil {
		return nil, fmt.Errorf("upserting employee profile for user %s: %w", userID, err)
	}
	return &profile, nil
}

func (m *EmployeeProfileModel) GetByUserID(ctx context.Context, sqlExec db.SQLExecuter, userID string) (*EmployeeProfile, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM employee_profiles
		WHERE tenant_id = $1 AND user_id = $2
	`, employeeProfileColumns)

	var profile EmployeeProfile
	err = sqlExec.GetContext(ctx, &profile, query, tenantID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying employee profile for user %s: %w", userID, err)
	}
	return &profile, nil
}

// GetPayrollBatch walks payroll-eligible profiles in keyset order: anyone with
// a base salary or with commission sitting in the payable bucket. Payroll calls
// it repeatedly with the last seen user id until it returns fewer rows than
// limit.
func (m *EmployeeProfileModel) GetPayrollBatch(ctx context.Context, afterUserID string, limit int) ([]EmployeeProfile, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT p.id, p.tenant_id, p.user_id, p.base_salary, p.commission_rate, p.created_at, p.updated_at
		FROM employee_profiles p
		WHERE p.tenant_id = $1 AND p.user_id > $2
			AND (p.base_salary > 0 OR EXISTS (
				SELECT 1 FROM employee_wallets w
				WHERE w.tenant_id = p.tenant_id AND w.user_id = p.user_id AND w.payable_balance > 0
			))
		ORDER BY p.user_id
		LIMIT $3
	`

	profiles := []EmployeeProfile{}
	if err := m.dbConnectionPool.SelectContext(ctx, &profiles, query, tenantID, afterUserID, limit); err != nil {
		return nil, fmt.Errorf("querying payroll profiles: %w", err)
	}
	return profiles, nil
}
