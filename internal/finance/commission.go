package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/audit"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/outbox"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
)

// CompleteTask transitions the task to COMPLETED and accrues each assignee's
// commission share into the pending bucket of their wallet, all in one
// transaction. The task row lock plus the status guard make double completion
// impossible, so commission can never accrue twice.
func (s *Service) CompleteTask(ctx context.Context, taskID string) (*data.Task, error) {
	tenant, err := s.loadTenant(ctx)
	if err != nil {
		return nil, err
	}

	task, err := db.RunInTransactionWithResult(ctx, s.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) (*data.Task, error) {
		task, err := s.models.Tasks.Get(ctx, dbTx, taskID, true)
		if err != nil {
			return nil, err
		}

		task, err = s.models.Tasks.UpdateStatus(ctx, dbTx, taskID, task.Status, data.TaskStatusCompleted)
		if err != nil {
			return nil, err
		}

		assignees, err := s.models.Tasks.GetAssignees(ctx, dbTx, taskID)
		if err != nil {
			return nil, err
		}

		if task.CommissionTotal.IsPositive() && len(assignees) > 0 {
			if err := s.accrueShares(ctx, dbTx, tenant, task, assignees); err != nil {
				return nil, err
			}
		} else {
			// No commission to split: one completion event for the task itself.
			err = outbox.EmitTx(ctx, dbTx, s.models, "task", task.ID, "task.completed", map[string]any{
				"taskId":          task.ID,
				"bookingId":       task.BookingID,
				"commissionTotal": task.CommissionTotal.String(),
			})
			if err != nil {
				return nil, err
			}
		}
		return task, nil
	})
	if err != nil {
		return nil, fmt.Errorf("completing task %s: %w", taskID, err)
	}

	s.auditLog(ctx, audit.Entry{
		Action:     "task.completed",
		EntityName: "tasks",
		EntityID:   task.ID,
		NewValues:  map[string]any{"status": task.Status, "commissionTotal": task.CommissionTotal.String()},
	})
	return task, nil
}

func (s *Service) accrueShares(ctx context.Context, dbTx db.DBTransaction, tenant tenantInfo, task *data.Task, assignees []data.TaskAssignee) error {
	userIDs := make([]string, 0, len(assignees))
	for _, a := range assignees {
		userIDs = append(userIDs, a.UserID)
	}

	// Wallets are provisioned first, then locked in lexicographic order.
	for _, userID := range userIDs {
		if _, err := s.models.EmployeeWallets.GetOrCreate(ctx, dbTx, userID); err != nil {
			return err
		}
	}
	wallets, err := s.models.EmployeeWallets.GetForUpdateByUserIDs(ctx, dbTx, userIDs)
	if err != nil {
		return err
	}

	for _, assignee := range assignees {
		amount := shareAmount(task.CommissionTotal, assignee.CommissionShare)

		// Each assignee gets their own completion event carrying their share,
		// so downstream consumers never have to re-derive the split.
		err := outbox.EmitTx(ctx, dbTx, s.models, "task", task.ID, "task.completed",
			taskCompletedPayload(task, assignee.UserID, amount))
		if err != nil {
			return err
		}
		if !amount.IsPositive() {
			continue
		}

		wallet := wallets[assignee.UserID]
		if err := s.models.EmployeeWallets.AddPending(ctx, dbTx, wallet.ID, amount); err != nil {
			return err
		}

		_, err = s.models.Transactions.Insert(ctx, dbTx, data.Transaction{
			Type:            data.TransactionTypeCommission,
			Amount:          amount,
			Currency:        tenant.baseCurrency,
			Category:        "commission",
			TaskID:          &task.ID,
			BookingID:       task.BookingID,
			Description:     fmt.Sprintf("commission for task %s", task.ID),
			TransactionDate: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// taskCompletedPayload is the body of one per-assignee completion event.
func taskCompletedPayload(task *data.Task, userID string, share data.Money) map[string]any {
	return map[string]any{
		"taskId":    task.ID,
		"bookingId": task.BookingID,
		"userId":    userID,
		"share":     share.String(),
	}
}

type tenantInfo struct {
	id           string
	baseCurrency string
}

func (s *Service) loadTenant(ctx context.Context) (tenantInfo, error) {
	tenantID, err := tenantctx.Require(ctx)
	if err != nil {
		return tenantInfo{}, err
	}
	tenant, err := s.models.Tenants.GetByID(ctx, tenantID)
	if err != nil {
		return tenantInfo{}, fmt.Errorf("loading tenant %s: %w", tenantID, err)
	}
	return tenantInfo{id: tenant.ID, baseCurrency: tenant.BaseCurrency}, nil
}
