package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

func taskStateMachine(current TaskStatus) *StateMachine {
	return NewStateMachine(State(current), []StateTransition{
		{From: State(TaskStatusPending), To: State(TaskStatusInProgress)},
		{From: State(TaskStatusPending), To: State(TaskStatusCancelled)},
		{From: State(TaskStatusInProgress), To: State(TaskStatusCompleted)},
		{From: State(TaskStatusInProgress), To: State(TaskStatusCancelled)},
	})
}

func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	return taskStateMachine(s).CanTransitionTo(State(target))
}

type Task struct {
	ID              string     `db:"id"`
	TenantID        string     `db:"tenant_id"`
	BookingID       *string    `db:"booking_id"`
	Status          TaskStatus `db:"status"`
	CommissionTotal Money      `db:"commission_total"`
	CompletedAt     *time.Time `db:"completed_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// TaskAssignee carries the share of the task's commission pool, in percent.
type TaskAssignee struct {
	TenantID        string  `db:"tenant_id"`
	TaskID          string  `db:"task_id"`
	UserID          string  `db:"user_id"`
	CommissionShare Percent `db:"commission_share"`
}

type TaskModel struct {
	dbConnectionPool db.DBConnectionPool
}

const taskColumns = `id, tenant_id, booking_id, status, commission_total, completed_at, created_at, updated_at`

func (m *TaskModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, bookingID *string, commissionTotal Money) (*Task, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if commissionTotal.IsNegative() {
		return nil, fmt.Errorf("commission total cannot be negative")
	}

	query := fmt.Sprintf(`
		INSERT INTO tasks (tenant_id, booking_id, commission_total)
		VALUES ($1, $2, $3)
		RETURNING %s
	`, taskColumns)

	var task Task
	err = sqlExec.GetContext(ctx, &task, query, tenantID, bookingID, commissionTotal)
	if err != nil {
		return nil, fmt.Errorf("inserting task: %w", err)
	}
	return &task, nil
}

func (m *TaskModel) Get(ctx context.Context, sqlExec db.SQLExecuter, taskID string, forUpdate bool) (*Task, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE tenant_id = $1 AND id = $2
	`, taskColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}

	var task Task
	err = sqlExec.GetContext(ctx, &task, query, tenantID, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying task %s: %w", taskID, err)
	}
	return &task, nil
}

// UpdateStatus works like BookingModel.UpdateStatus: the expected current
// status guards the row so double completions cannot accrue commission twice.
func (m *TaskModel) UpdateStatus(ctx context.Context, sqlExec db.SQLExecuter, taskID string, from, to TaskStatus) (*Task, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: task %s -> %s", ErrInvalidStatusTransition, from, to)
	}

	query := fmt.Sprintf(`
		UPDATE tasks
		SET status = $1,
			completed_at = CASE WHEN $1 = 'COMPLETED' THEN now() ELSE completed_at END,
			updated_at = now()
		WHERE tenant_id = $2 AND id = $3 AND status = $4
		RETURNING %s
	`, taskColumns)

	var task Task
	err = sqlExec.GetContext(ctx, &task, query, to, tenantID, taskID, from)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: task %s is no longer %s", ErrInvalidStatusTransition, taskID, from)
		}
		return nil, fmt.Errorf("updating task %s status: %w", taskID, err)
	}
	return &task, nil
}

// ReplaceAssignees swaps the full assignee set in one statement pair.
func (m *TaskModel) ReplaceAssignees(ctx context.Context, sqlExec db.SQLExecuter, taskID string, assignees []TaskAssignee) error {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return err
	}

	if _, err := sqlExec.ExecContext(ctx, `DELETE FROM task_assignees WHERE tenant_id = $1 AND task_id = $2`, tenantID, taskID); err != nil {
		return fmt.Errorf("clearing assignees of task %s: %w", taskID, err)
	}

	const insert = `
		INSERT INTO task_assignees (tenant_id, task_id, user_id, commission_share)
		VALUES ($1, $2, $3, $4)
	`
	for _, a := range assignees {
		if _, err := requireRowTenant(ctx, a.TenantID); err != nil {
			return err
		}
		if _, err := sqlExec.ExecContext(ctx, insert, tenantID, taskID, a.UserID, a.CommissionShare); err != nil {
			return fmt.Errorf("inserting assignee %s on task %s: %w", a.UserID, taskID, err)
		}
	}
	return nil
}

func (m *TaskModel) GetAssignees(ctx context.Context, sqlExec db.SQLExecuter, taskID string) ([]TaskAssignee, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	const query = `
		SELECT tenant_id, task_id, user_id, commission_share
		FROM task_assignees
		WHERE tenant_id = $1 AND task_id = $2
		ORDER BY user_id
	`
	assignees := []TaskAssignee{}
	if err := sqlExec.SelectContext(ctx, &assignees, query, tenantID, taskID); err != nil {
		return nil, fmt.Errorf("querying assignees of task %s: %w", taskID, err)
	}
	return assignees, nil
}

func (m *TaskModel) GetByBookingID(ctx context.Context, sqlExec db.SQLExecuter, bookingID string) ([]Task, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE tenant_id = $1 AND booking_id = $2
		ORDER BY created_at
	`, taskColumns)

	tasks := []Task{}
	if err := sqlExec.SelectContext(ctx, &tasks, query, tenantID, bookingID); err != nil {
		return nil, fmt.Errorf("querying tasks of booking %s: %w", bookingID, err)
	}
	return tasks, nil
}
