package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/opsplane/opsplane-backend/db"
)

type UserRole string

const (
	UserRoleOwner  UserRole = "OWNER"
	UserRoleAdmin  UserRole = "ADMIN"
	UserRoleMember UserRole = "MEMBER"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleOwner, UserRoleAdmin, UserRoleMember:
		return true
	}
	return false
}

type User struct {
	ID                  string         `db:"id"`
	TenantID            string         `db:"tenant_id"`
	Email               string         `db:"email"`
	PasswordHash        string         `db:"password_hash"`
	Role                UserRole       `db:"role"`
	IsActive            bool           `db:"is_active"`
	MFAEnabled          bool           `db:"mfa_enabled"`
	MFASecretEncrypted  sql.NullString `db:"mfa_secret_encrypted"`
	MFARecoveryCodes    pq.StringArray `db:"mfa_recovery_codes"`
	FailedLoginAttempts int            `db:"failed_login_attempts"`
	LockedUntil         *time.Time     `db:"locked_until"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
	DeletedAt           *time.Time     `db:"deleted_at"`
}

// IsLocked reports whether the login lockout window is still in effect.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

type UserModel struct {
	dbConnectionPool db.DBConnectionPool
}

const userColumns = `
	id, tenant_id, email, password_hash, role, is_active, mfa_enabled,
	mfa_secret_encrypted, mfa_recovery_codes, failed_login_attempts,
	locked_until, created_at, updated_at, deleted_at
`

func (m *UserModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, email, passwordHash string, role UserRole) (*User, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email", ErrMissingInput)
	}
	if passwordHash == "" {
		return nil, fmt.Errorf("%w: passwordHash", ErrMissingInput)
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: invalid role %q", ErrMissingInput, role)
	}

	query := fmt.Sprintf(`
		INSERT INTO users (tenant_id, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING %s
	`, userColumns)

	var user User
	err = sqlExec.GetContext(ctx, &user, query, tenantID, email, passwordHash, role)
	if err != nil {
		if IsUniqueViolation(err, "") {
			return nil, ErrRecordAlreadyExists
		}
		return nil, fmt.Errorf("inserting user %s: %w", email, err)
	}
	return &user, nil
}

func (m *UserModel) GetByID(ctx context.Context, sqlExec db.SQLExecuter, userID string) (*User, error) {
	qb, err := NewTenantScopedQueryBuilder(ctx, fmt.Sprintf("SELECT %s FROM users u", prefixColumns(userColumns, "u")), "u")
	if err != nil {
		return nil, err
	}
	qb.AddCondition("u.id = ?", userID)
	qb.AddCondition("u.deleted_at IS NULL")
	query, params := qb.BuildAndRebind(sqlExec)

	var user User
	err = sqlExec.GetContext(ctx, &user, query, params...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying user ID %s: %w", userID, err)
	}
	return &user, nil
}

func (m *UserModel) GetByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	qb, err := NewTenantScopedQueryBuilder(ctx, fmt.Sprintf("SELECT %s FROM users u", prefixColumns(userColumns, "u")), "u")
	if err != nil {
		return nil, err
	}
	qb.AddCondition("u.email = ?", email)
	qb.AddCondition("u.deleted_at IS NULL")
	query, params := qb.BuildAndRebind(m.dbConnectionPool)

	var user User
	err = m.dbConnectionPool.GetContext(ctx, &user, query, params...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return &user, nil
}

func (m *UserModel) GetAll(ctx context.Context, page, pageLimit int) ([]User, error) {
	qb, err := NewTenantScopedQueryBuilder(ctx, fmt.Sprintf("SELECT %s FROM users u", prefixColumns(userColumns, "u")), "u")
	if err != nil {
		return nil, err
	}
	qb.AddCondition("u.deleted_at IS NULL")
	qb.AddSorting("created_at", SortOrderASC, "u")
	qb.AddPagination(page, pageLimit)
	query, params := qb.BuildAndRebind(m.dbConnectionPool)

	users := []User{}
	if err := m.dbConnectionPool.SelectContext(ctx, &users, query, params...); err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	return users, nil
}

// UpdatePasswordHash also resets the login throttle: a fresh credential starts
// from a clean slate.
func (m *UserModel) UpdatePasswordHash(ctx context.Context, sqlExec db.SQLExecuter, userID, passwordHash string) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	const query = `
		UPDATE users
		SET password_hash = $1, failed_login_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE tenant_id = $2 AND id = $3 AND deleted_at IS NULL
	`
	res, err := sqlExec.ExecContext(ctx, query, passwordHash, tenantID, userID)
	if err != nil {
		return fmt.Errorf("updating password hash for user %s: %w", userID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// RecordFailedLogin increments the failure counter and, when the counter
// reaches maxAttempts, arms the lockout window. Returns the new counter value.
func (m *UserModel) RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockFor time.Duration) (int, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return 0, err
	}

	const query = `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
			locked_until = CASE WHEN failed_login_attempts + 1 >= $1 THEN now() + $2::interval ELSE locked_until END,
			updated_at = now()
		WHERE tenant_id = $3 AND id = $4 AND deleted_at IS NULL
		RETURNING failed_login_attempts
	`
	var attempts int
	interval := fmt.Sprintf("%d seconds", int(lockFor.Seconds()))
	err = m.dbConnectionPool.GetContext(ctx, &attempts, query, maxAttempts, interval, tenantID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrRecordNotFound
		}
		return 0, fmt.Errorf("recording failed login for user %s: %w", userID, err)
	}
	return attempts, nil
}

func (m *UserModel) ResetLoginThrottle(ctx context.Context, sqlExec db.SQLExecuter, userID string) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	const query = `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`
	if _, err := sqlExec.ExecContext(ctx, query, tenantID, userID); err != nil {
		return fmt.Errorf("resetting login throttle for user %s: %w", userID, err)
	}
	return nil
}

// EnableMFA stores the encrypted TOTP secret and the bcrypt hashes of the
// freshly generated recovery codes.
func (m *UserModel) EnableMFA(ctx context.Context, sqlExec db.SQLExecuter, userID, secretEncrypted string, recoveryCodeHashes []string) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	const query = `
		UPDATE users
		SET mfa_enabled = true, mfa_secret_encrypted = $1, mfa_recovery_codes = $2, updated_at = now()
		WHERE tenant_id = $3 AND id = $4 AND deleted_at IS NULL
	`
	res, err := sqlExec.ExecContext(ctx, query, secretEncrypted, pq.StringArray(recoveryCodeHashes), tenantID, userID)
	if err != nil {
		return fmt.Errorf("enabling MFA for user %s: %w", userID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m *UserModel) DisableMFA(ctx context.Context, sqlExec db.SQLExecuter, userID string) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	const query = `
		UPDATE users
		SET mfa_enabled = false, mfa_secret_encrypted = NULL, mfa_recovery_codes = '{}', updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
	`
	res, err := sqlExec.ExecContext(ctx, query, tenantID, userID)
	if err != nil {
		return fmt.Errorf("disabling MFA for user %s: %w", userID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// UpdateRecoveryCodes replaces the stored set; callers pass the remaining
// hashes after one was consumed.
func (m *UserModel) UpdateRecoveryCodes(ctx context.Context, sqlExec db.SQLExecuter, userID string, recoveryCodeHashes []string) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	const query = `
		UPDATE users
		SET mfa_recovery_codes = $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3 AND deleted_at IS NULL
	`
	res, err := sqlExec.ExecContext(ctx, query, pq.StringArray(recoveryCodeHashes), tenantID, userID)
	if err != nil {
		return fmt.Errorf("updating recovery codes for user %s: %w", userID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m *UserModel) SoftDelete(ctx context.Context, sqlExec db.SQLExecuter, userID string) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	const query = `
		UPDATE users
		SET deleted_at = now(), is_active = false, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
	`
	res, err := sqlExec.ExecContext(ctx, query, tenantID, userID)
	if err != nil {
		return fmt.Errorf("soft deleting user %s: %w", userID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// prefixColumns rewrites a bare column list to alias-qualified form so scoped
// query builders can reuse the canonical list.
func prefixColumns(columns, alias string) string {
	parts := strings.Split(columns, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, alias+"."+p)
	}
	return strings.Join(out, ", ")
}
