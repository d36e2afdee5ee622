package finance

import (
	"context"
	"fmt"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/audit"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/outbox"
)

// SettleBooking completes the booking and moves every accrued commission tied
// to its completed tasks from pending to payable. Wallets are locked in
// lexicographic user-id order; the whole settlement is a single transaction so
// a mid-way failure leaves all balances untouched.
func (s *Service) SettleBooking(ctx context.Context, bookingID string) (*data.Booking, error) {
	booking, err := db.RunInTransactionWithResult(ctx, s.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) (*data.Booking, error) {
		booking, err := s.models.Bookings.Get(ctx, dbTx, bookingID, true)
		if err != nil {
			return nil, err
		}

		booking, err = s.models.Bookings.UpdateStatus(ctx, dbTx, bookingID, booking.Status, data.BookingStatusCompleted)
		if err != nil {
			return nil, err
		}

		amounts, err := s.accruedByUser(ctx, dbTx, bookingID)
		if err != nil {
			return nil, err
		}

		if len(amounts) > 0 {
			userIDs := make([]string, 0, len(amounts))
			for userID := range amounts {
				userIDs = append(userIDs, userID)
			}
			wallets, err := s.models.EmployeeWallets.GetForUpdateByUserIDs(ctx, dbTx, userIDs)
			if err != nil {
				return nil, err
			}
			for userID, amount := range amounts {
				if !amount.IsPositive() {
					continue
				}
				if err := s.models.EmployeeWallets.MovePendingToPayable(ctx, dbTx, wallets[userID].ID, amount); err != nil {
					return nil, fmt.Errorf("settling user %s: %w", userID, err)
				}
			}
		}

		err = outbox.EmitTx(ctx, dbTx, s.models, "booking", booking.ID, "booking.settled", map[string]any{
			"bookingId":    booking.ID,
			"totalAmount":  booking.TotalAmount.String(),
			"settledUsers": len(amounts),
		})
		if err != nil {
			return nil, err
		}
		return booking, nil
	})
	if err != nil {
		return nil, fmt.Errorf("settling booking %s: %w", bookingID, err)
	}

	s.auditLog(ctx, audit.Entry{
		Action:     "booking.settled",
		EntityName: "bookings",
		EntityID:   booking.ID,
		NewValues:  map[string]any{"status": booking.Status},
	})
	return booking, nil
}

// accruedByUser sums each assignee's commission over the booking's completed
// tasks, mirroring the amounts accrueShares credited.
func (s *Service) accruedByUser(ctx context.Context, dbTx db.DBTransaction, bookingID string) (map[string]data.Money, error) {
	tasks, err := s.models.Tasks.GetByBookingID(ctx, dbTx, bookingID)
	if err != nil {
		return nil, err
	}

	amounts := make(map[string]data.Money)
	for i := range tasks {
		task := &tasks[i]
		if task.Status != data.TaskStatusCompleted || !task.CommissionTotal.IsPositive() {
			continue
		}
		assignees, err := s.models.Tasks.GetAssignees(ctx, dbTx, task.ID)
		if err != nil {
			return nil, err
		}
		for _, assignee := range assignees {
			amount := shareAmount(task.CommissionTotal, assignee.CommissionShare)
			if !amount.IsPositive() {
				continue
			}
			current, ok := amounts[assignee.UserID]
			if !ok {
				current = data.NewMoney(decimalZero())
			}
			amounts[assignee.UserID] = data.NewMoney(current.Add(amount.Decimal))
		}
	}
	return amounts, nil
}
