package db

import (
	"context"
	"fmt"
	"hash/fnv"
)

// AdvisoryLockKey derives a stable int64 lock key from a well-known string
// such as "outbox:relay" or "payroll:<tenant_id>".
func AdvisoryLockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64()) //nolint:gosec // two's-complement wraparound is fine for a lock key
}

// TryAdvisoryLock attempts to acquire a session-level advisory lock on the
// provided key. Returns true if acquired, false if another session holds it.
func TryAdvisoryLock(ctx context.Context, sqlExec SQLExecuter, lockKey int64) (bool, error) {
	acquired := false
	err := sqlExec.QueryRowxContext(ctx, "SELECT pg_try_advisory_lock($1)", lockKey).Scan(&acquired)
	if err != nil {
		return false, fmt.Errorf("querying pg_try_advisory_lock(%v): %w", lockKey, err)
	}
	return acquired, nil
}

// ReleaseAdvisoryLock releases a session-level advisory lock previously
// acquired with TryAdvisoryLock.
func ReleaseAdvisoryLock(ctx context.Context, sqlExec SQLExecuter, lockKey int64) error {
	released := false
	err := sqlExec.QueryRowxContext(ctx, "SELECT pg_advisory_unlock($1)", lockKey).Scan(&released)
	if err != nil {
		return fmt.Errorf("querying pg_advisory_unlock(%v): %w", lockKey, err)
	}
	if !released {
		return fmt.Errorf("pg_advisory_unlock(%v): lock was not held by this session", lockKey)
	}
	return nil
}

// WithAdvisoryLock runs fn only if the advisory lock for name can be
// acquired, releasing it afterwards. When the lock is held elsewhere it
// returns (false, nil) without running fn; singleton background work keys off
// that to skip the pass.
func WithAdvisoryLock(ctx context.Context, dbConnectionPool DBConnectionPool, name string, fn func(ctx context.Context) error) (bool, error) {
	lockKey := AdvisoryLockKey(name)

	// Advisory locks are session-scoped, so the acquire, the work and the
	// release must all happen on the same connection.
	sqlxDB, err := dbConnectionPool.SqlxDB(ctx)
	if err != nil {
		return false, fmt.Errorf("getting sqlx.DB for advisory lock %q: %w", name, err)
	}
	conn, err := sqlxDB.Connx(ctx)
	if err != nil {
		return false, fmt.Errorf("acquiring connection for advisory lock %q: %w", name, err)
	}
	defer conn.Close()

	acquired := false
	if err = conn.QueryRowxContext(ctx, "SELECT pg_try_advisory_lock($1)", lockKey).Scan(&acquired); err != nil {
		return false, fmt.Errorf("querying pg_try_advisory_lock for %q: %w", name, err)
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		released := false
		_ = conn.QueryRowxContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", lockKey).Scan(&released)
	}()

	return true, fn(ctx)
}
