package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
)

var ErrInvalidStatusTransition = errors.New("invalid status transition")

type BookingStatus string

const (
	BookingStatusDraft     BookingStatus = "DRAFT"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// BookingStatuses returns every booking status, for filter validation.
func BookingStatuses() []BookingStatus {
	return []BookingStatus{BookingStatusDraft, BookingStatusConfirmed, BookingStatusCompleted, BookingStatusCancelled}
}

// bookingStateMachine returns the machine positioned at the given status.
// Completion and cancellation are terminal.
func bookingStateMachine(current BookingStatus) *StateMachine {
	return NewStateMachine(State(current), []StateTransition{
		{From: State(BookingStatusDraft), To: State(BookingStatusConfirmed)},
		{From: State(BookingStatusDraft), To: State(BookingStatusCancelled)},
		{From: State(BookingStatusConfirmed), To: State(BookingStatusCompleted)},
		{From: State(BookingStatusConfirmed), To: State(BookingStatusCancelled)},
	})
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	return bookingStateMachine(s).CanTransitionTo(State(target))
}

type Booking struct {
	ID          string        `db:"id"`
	TenantID    string        `db:"tenant_id"`
	Status      BookingStatus `db:"status"`
	TotalAmount Money         `db:"total_amount"`
	Currency    string        `db:"currency"`
	SettledAt   *time.Time    `db:"settled_at"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

type BookingModel struct {
	dbConnectionPool db.DBConnectionPool
}

const bookingColumns = `id, tenant_id, status, total_amount, currency, settled_at, created_at, updated_at`

func (m *BookingModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, totalAmount Money, currency string) (*Booking, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if currency == "" {
		return nil, fmt.Errorf("%w: currency", ErrMissingInput)
	}

	query := fmt.Sprintf(`
		INSERT INTO bookings (tenant_id, total_amount, currency)
		VALUES ($1, $2, $3)
		RETURNING %s
	`, bookingColumns)

	var booking Booking
	err = sqlExec.GetContext(ctx, &booking, query, tenantID, totalAmount, currency)
	if err != nil {
		return nil, fmt.Errorf("inserting booking: %w", err)
	}
	return &booking, nil
}

func (m *BookingModel) Get(ctx context.Context, sqlExec db.SQLExecuter, bookingID string, forUpdate bool) (*Booking, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM bookings
		WHERE tenant_id = $1 AND id = $2
	`, bookingColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}

	var booking Booking
	err = sqlExec.GetContext(ctx, &booking, query, tenantID, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying booking %s: %w", bookingID, err)
	}
	return &booking, nil
}

// UpdateStatus enforces the booking state machine atomically: the current
// status is part of the WHERE clause so a concurrent transition loses cleanly.
func (m *BookingModel) UpdateStatus(ctx context.Context, sqlExec db.SQLExecuter, bookingID string, from, to BookingStatus) (*Booking, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: booking %s -> %s", ErrInvalidStatusTransition, from, to)
	}

	query := fmt.Sprintf(`
		UPDATE bookings
		SET status = $1,
			settled_at = CASE WHEN $1 = 'COMPLETED' THEN now() ELSE settled_at END,
			updated_at = now()
		WHERE tenant_id = $2 AND id = $3 AND status = $4
		RETURNING %s
	`, bookingColumns)

	var booking Booking
	err = sqlExec.GetContext(ctx, &booking, query, to, tenantID, bookingID, from)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: booking %s is no longer %s", ErrInvalidStatusTransition, bookingID, from)
		}
		return nil, fmt.Errorf("updating booking %s status: %w", bookingID, err)
	}
	return &booking, nil
}

type BookingQueryParams struct {
	Statuses  []BookingStatus
	Page      int
	PageLimit int
}

func (m *BookingModel) GetAll(ctx context.Context, params BookingQueryParams) ([]Booking, error) {
	qb, err := NewTenantScopedQueryBuilder(ctx, fmt.Sprintf("SELECT %s FROM bookings b", prefixColumns(bookingColumns, "b")), "b")
	if err != nil {
		return nil, err
	}
	if len(params.Statuses) > 0 {
		qb.AddGroupedConditions(func(g *GroupedConditions) {
			for _, status := range params.Statuses {
				g.AddOrCondition("b.status = ?", status)
			}
		})
	}
	qb.AddSorting("created_at", SortOrderDESC, "b")
	qb.AddPagination(params.Page, params.PageLimit)
	query, args := qb.BuildAndRebind(m.dbConnectionPool)

	bookings := []Booking{}
	if err := m.dbConnectionPool.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	return bookings, nil
}
