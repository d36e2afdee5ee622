// Package jobqueue implements durable queues on top of the jobs table.
// Claims use FOR UPDATE SKIP LOCKED so any number of workers can poll the
// same queue without coordination.
package jobqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusRetrying   JobStatus = "RETRYING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

type Job struct {
	ID               string          `db:"id"`
	Queue            string          `db:"queue"`
	Name             string          `db:"name"`
	TenantID         sql.NullString  `db:"tenant_id"`
	Payload          json.RawMessage `db:"payload"`
	Status           JobStatus       `db:"status"`
	Attempts         int             `db:"attempts"`
	MaxAttempts      int             `db:"max_attempts"`
	NextRunAt        time.Time       `db:"next_run_at"`
	LockedBy         sql.NullString  `db:"locked_by"`
	LockedAt         *time.Time      `db:"locked_at"`
	LastError        *string         `db:"last_error"`
	RemoveOnComplete bool            `db:"remove_on_complete"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// EnqueueOptions tune one job; zero values fall back to sane defaults.
type EnqueueOptions struct {
	TenantID       string
	Delay          time.Duration
	MaxAttempts    int
	KeepOnComplete bool
}

type Store struct {
	dbConnectionPool db.DBConnectionPool
}

func NewStore(dbConnectionPool db.DBConnectionPool) (*Store, error) {
	if dbConnectionPool == nil {
		return nil, errors.New("dbConnectionPool is required for the job store")
	}
	return &Store{dbConnectionPool: dbConnectionPool}, nil
}

const jobColumns = `
	id, queue, name, tenant_id, payload, status, attempts, max_attempts,
	next_run_at, locked_by, locked_at, last_error, remove_on_complete,
	created_at, updated_at
`

// EnqueueTx inserts the job on the caller's executer, letting business
// transactions schedule follow-up work atomically with their own writes.
func (s *Store) EnqueueTx(ctx context.Context, sqlExec db.SQLExecuter, queue, name string, payload any, opts EnqueueOptions) (*Job, error) {
	if queue == "" || name == "" {
		return nil, errors.New("queue and name are required to enqueue a job")
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload of job %s: %w", name, err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	var tenantID sql.NullString
	if opts.TenantID != "" {
		tenantID = sql.NullString{String: opts.TenantID, Valid: true}
	}

	query := fmt.Sprintf(`
		INSERT INTO jobs (queue, name, tenant_id, payload, max_attempts, next_run_at, remove_on_complete)
		VALUES ($1, $2, $3, $4, $5, now() + $6::interval, $7)
		RETURNING %s
	`, jobColumns)

	delay := fmt.Sprintf("%d milliseconds", opts.Delay.Milliseconds())
	var job Job
	err = sqlExec.GetContext(ctx, &job, query, queue, name, tenantID, payloadJSON, maxAttempts, delay, !opts.KeepOnComplete)
	if err != nil {
		return nil, fmt.Errorf("enqueueing job %s on queue %s: %w", name, queue, err)
	}
	return &job, nil
}

func (s *Store) Enqueue(ctx context.Context, queue, name string, payload any, opts EnqueueOptions) (*Job, error) {
	return s.EnqueueTx(ctx, s.dbConnectionPool, queue, name, payload, opts)
}

// Claim atomically takes up to limit due jobs from the queue, stamping the
// worker id so stuck claims can be traced and reaped.
func (s *Store) Claim(ctx context.Context, queue, workerID string, limit int) ([]Job, error) {
	query := fmt.Sprintf(`
		UPDATE jobs
		SET status = $1, locked_by = $2, locked_at = now(), updated_at = now()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE queue = $3 AND status IN ($4, $5) AND next_run_at <= now()
			ORDER BY next_run_at
			LIMIT $6
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s
	`, jobColumns)

	jobs := []Job{}
	err := s.dbConnectionPool.SelectContext(ctx, &jobs, query,
		JobStatusProcessing, workerID, queue, JobStatusPending, JobStatusRetrying, limit)
	if err != nil {
		return nil, fmt.Errorf("claiming jobs from queue %s: %w", queue, err)
	}
	return jobs, nil
}

// Complete finishes the job, deleting it unless it was enqueued with
// KeepOnComplete.
func (s *Store) Complete(ctx context.Context, job *Job) error {
	if job.RemoveOnComplete {
		if _, err := s.dbConnectionPool.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, job.ID); err != nil {
			return fmt.Errorf("deleting completed job %s: %w", job.ID, err)
		}
		return nil
	}

	const query = `
		UPDATE jobs
		SET status = $1, locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE id = $2
	`
	if _, err := s.dbConnectionPool.ExecContext(ctx, query, JobStatusCompleted, job.ID); err != nil {
		return fmt.Errorf("marking job %s completed: %w", job.ID, err)
	}
	return nil
}

// Retry schedules the next attempt.
func (s *Store) Retry(ctx context.Context, job *Job, runErr error, nextRunAt time.Time) error {
	const query = `
		UPDATE jobs
		SET status = $1, attempts = $2, next_run_at = $3, last_error = $4,
			locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE id = $5
	`
	_, err := s.dbConnectionPool.ExecContext(ctx, query,
		JobStatusRetrying, job.Attempts+1, nextRunAt, truncateErr(runErr), job.ID)
	if err != nil {
		return fmt.Errorf("scheduling retry of job %s: %w", job.ID, err)
	}
	return nil
}

// Fail parks the job permanently.
func (s *Store) Fail(ctx context.Context, job *Job, runErr error) error {
	const query = `
		UPDATE jobs
		SET status = $1, attempts = $2, last_error = $3,
			locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE id = $4
	`
	_, err := s.dbConnectionPool.ExecContext(ctx, query, JobStatusFailed, job.Attempts+1, truncateErr(runErr), job.ID)
	if err != nil {
		return fmt.Errorf("marking job %s failed: %w", job.ID, err)
	}
	return nil
}

// Release puts an in-flight job back on the queue untouched; called during
// graceful shutdown for claims that never started.
func (s *Store) Release(ctx context.Context, job *Job) error {
	const query = `
		UPDATE jobs
		SET status = $1, locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE id = $2 AND status = $3
	`
	if _, err := s.dbConnectionPool.ExecContext(ctx, query, JobStatusPending, job.ID, JobStatusProcessing); err != nil {
		return fmt.Errorf("releasing job %s: %w", job.ID, err)
	}
	return nil
}

// ReapStuck requeues jobs whose workers disappeared mid-run.
func (s *Store) ReapStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	const query = `
		UPDATE jobs
		SET status = $1, locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE status = $2 AND locked_at < now() - $3::interval
	`
	interval := fmt.Sprintf("%d seconds", int(olderThan.Seconds()))
	res, err := s.dbConnectionPool.ExecContext(ctx, query, JobStatusPending, JobStatusProcessing, interval)
	if err != nil {
		return 0, fmt.Errorf("reaping stuck jobs: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

func truncateErr(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	return msg
}
