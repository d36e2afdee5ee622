package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
)

// RefreshToken stores only the SHA-256 hex of the opaque token; the raw value
// never touches the database.
type RefreshToken struct {
	TokenHash string     `db:"token_hash"`
	TenantID  string     `db:"tenant_id"`
	UserID    string     `db:"user_id"`
	ExpiresAt time.Time  `db:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at"`
	CreatedAt time.Time  `db:"created_at"`
}

type RefreshTokenModel struct {
	dbConnectionPool db.DBConnectionPool
}

func (m *RefreshTokenModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, tokenHash, userID string, expiresAt time.Time) (*RefreshToken, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if tokenHash == "" {
		return nil, fmt.Errorf("%w: tokenHash", ErrMissingInput)
	}

	const query = `
		INSERT INTO refresh_tokens (token_hash, tenant_id, user_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING token_hash, tenant_id, user_id, expires_at, revoked_at, created_at
	`
	var rt RefreshToken
	err = sqlExec.GetContext(ctx, &rt, query, tokenHash, tenantID, userID, expiresAt)
	if err != nil {
		if IsUniqueViolation(err, "") {
			return nil, ErrRecordAlreadyExists
		}
		return nil, fmt.Errorf("inserting refresh token: %w", err)
	}
	return &rt, nil
}

// GetActive returns the token only while it is unexpired and unrevoked.
func (m *RefreshTokenModel) GetActive(ctx context.Context, sqlExec db.SQLExecuter, tokenHash string) (*RefreshToken, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	const query = `
		SELECT token_hash, tenant_id, user_id, expires_at, revoked_at, created_at
		FROM refresh_tokens
		WHERE tenant_id = $1 AND token_hash = $2 AND revoked_at IS NULL AND expires_at > now()
	`
	var rt RefreshToken
	err = sqlExec.GetContext(ctx, &rt, query, tenantID, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying refresh token: %w", err)
	}
	return &rt, nil
}

func (m *RefreshTokenModel) Revoke(ctx context.Context, sqlExec db.SQLExecuter, tokenHash string) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	const query = `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE tenant_id = $1 AND token_hash = $2 AND revoked_at IS NULL
	`
	res, err := sqlExec.ExecContext(ctx, query, tenantID, tokenHash)
	if err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// RevokeAllForUser kills every live session of the user; used on password
// change and on account lockout escalation.
func (m *RefreshTokenModel) RevokeAllForUser(ctx context.Context, sqlExec db.SQLExecuter, userID string) (int64, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return 0, err
	}

	const query = `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE tenant_id = $1 AND user_id = $2 AND revoked_at IS NULL
	`
	res, err := sqlExec.ExecContext(ctx, query, tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("revoking refresh tokens for user %s: %w", userID, err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

// DeleteExpired is housekeeping run by the scheduler; it is global on purpose.
func (m *RefreshTokenModel) DeleteExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < now() - $1::interval`
	interval := fmt.Sprintf("%d seconds", int(olderThan.Seconds()))
	res, err := m.dbConnectionPool.ExecContext(ctx, query, interval)
	if err != nil {
		return 0, fmt.Errorf("deleting expired refresh tokens: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}
