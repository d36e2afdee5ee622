package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/audit"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/jobqueue"
	"github.com/opsplane/opsplane-backend/internal/monitor"
	"github.com/opsplane/opsplane-backend/internal/outbox"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const payrollBatchSize = 100

// PayrollIdempotencyKey is stable per tenant, user and calendar month, so
// overlapping runs of the same month are no-ops user by user.
func PayrollIdempotencyKey(tenantID, userID string, month time.Time) string {
	return fmt.Sprintf("payroll:%s:%s:%s", tenantID, userID, month.Format("2006-01"))
}

type PayrollRunResult struct {
	TenantID string
	Month    string
	Created  int
	Skipped  int
	Failed   int
}

// RunPayrollForTenant creates one payout per eligible employee for the given
// month: base salary plus whatever commission has settled into the payable
// bucket, which is drained in the same transaction. The advisory lock keeps
// concurrent runs of the same tenant out; each batch commits separately and a
// failed batch is counted and skipped over, so one bad row never starves the
// users after it. The idempotency keys make a rerun pick up exactly the users
// that were missed.
func (s *Service) RunPayrollForTenant(ctx context.Context, month time.Time) (*PayrollRunResult, error) {
	tenant, err := s.loadTenant(ctx)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result := &PayrollRunResult{TenantID: tenant.id, Month: month.Format("2006-01")}

	lockName := "payroll:" + tenant.id
	acquired, err := db.WithAdvisoryLock(ctx, s.models.DBConnectionPool, lockName, func(ctx context.Context) error {
		afterUserID := ""
		for {
			batch, err := s.models.EmployeeProfiles.GetPayrollBatch(ctx, afterUserID, payrollBatchSize)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				return nil
			}

			created, skipped, err := s.runPayrollBatch(ctx, tenant, month, batch)
			recordBatchOutcome(result, created, skipped, len(batch), err)
			if err != nil {
				log.Ctx(ctx).WithError(err).Errorf("payroll batch for tenant %s after user %q failed, continuing with the next batch", tenant.id, afterUserID)
				if s.monitorService != nil {
					labels := map[string]string{"tenant": tenant.id}
					if merr := s.monitorService.MonitorCounters(monitor.PayrollBatchFailuresTag, labels); merr != nil {
						log.Errorf("recording payroll batch failure metric: %v", merr)
					}
				}
			}

			afterUserID = batch[len(batch)-1].UserID
			if len(batch) < payrollBatchSize {
				return nil
			}
		}
	})
	if err != nil {
		return result, fmt.Errorf("running payroll for tenant %s: %w", tenant.id, err)
	}
	if !acquired {
		log.Ctx(ctx).Infof("payroll for tenant %s already running elsewhere, skipping", tenant.id)
		return result, nil
	}

	if s.monitorService != nil {
		labels := map[string]string{"tenant": tenant.id}
		if err := s.monitorService.MonitorDuration(time.Since(started), monitor.PayrollRunDurationTag, labels); err != nil {
			log.Errorf("recording payroll duration metric: %v", err)
		}
	}
	s.auditLog(ctx, audit.Entry{
		Action:     "PAYROLL_RUN",
		EntityName: "payouts",
		NewValues: map[string]any{
			"month":   result.Month,
			"created": result.Created,
			"skipped": result.Skipped,
			"failed":  result.Failed,
		},
	})
	return result, nil
}

// recordBatchOutcome folds one batch into the run totals. A batch error rolls
// the whole batch back, so its rows count as failed rather than created.
func recordBatchOutcome(result *PayrollRunResult, created, skipped, batchSize int, err error) {
	if err != nil {
		result.Failed += batchSize
		return
	}
	result.Created += created
	result.Skipped += skipped
}

func (s *Service) runPayrollBatch(ctx context.Context, tenant tenantInfo, month time.Time, batch []data.EmployeeProfile) (created, skipped int, err error) {
	err = db.RunInTransaction(ctx, s.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) error {
		created, skipped = 0, 0
		for i := range batch {
			profile := &batch[i]
			paid, err := s.createPayrollPayout(ctx, dbTx, tenant, profile, month)
			if err != nil {
				return fmt.Errorf("payroll payout for user %s: %w", profile.UserID, err)
			}
			if paid {
				created++
			} else {
				skipped++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, skipped, nil
}

// payrollAmount is what one run pays a user: base salary plus the commission
// that has settled into the payable bucket since the last run.
func payrollAmount(baseSalary, payableBalance data.Money) data.Money {
	return data.NewMoney(baseSalary.Decimal.Add(payableBalance.Decimal))
}

func (s *Service) createPayrollPayout(ctx context.Context, dbTx db.DBTransaction, tenant tenantInfo, profile *data.EmployeeProfile, month time.Time) (bool, error) {
	key := PayrollIdempotencyKey(tenant.id, profile.UserID, month)

	if _, err := s.models.EmployeeWallets.GetOrCreate(ctx, dbTx, profile.UserID); err != nil {
		return false, err
	}
	wallet, err := s.models.EmployeeWallets.GetByUserID(ctx, dbTx, profile.UserID, true)
	if err != nil {
		return false, err
	}

	amount := payrollAmount(profile.BaseSalary, wallet.PayableBalance)
	if !amount.IsPositive() {
		return false, nil
	}

	payout, err := s.models.Payouts.Insert(ctx, dbTx, profile.UserID, amount, key,
		fmt.Sprintf("salary and commission %s", month.Format("2006-01")))
	if err != nil {
		if errors.Is(err, data.ErrRecordAlreadyExists) {
			// Rerun of an already-paid month: the first run drained the wallet,
			// whatever accrued since stays payable for the next cycle.
			return false, nil
		}
		return false, err
	}

	if wallet.PayableBalance.IsPositive() {
		if err := s.models.EmployeeWallets.DebitPayable(ctx, dbTx, wallet.ID, wallet.PayableBalance); err != nil {
			return false, err
		}
	}

	_, err = s.models.Transactions.Insert(ctx, dbTx, data.Transaction{
		Type:            data.TransactionTypePayroll,
		Amount:          amount,
		Currency:        tenant.baseCurrency,
		Category:        "payroll",
		PayoutID:        &payout.ID,
		Description:     fmt.Sprintf("salary and commission %s for user %s", month.Format("2006-01"), profile.UserID),
		TransactionDate: time.Now().UTC(),
	})
	if err != nil {
		return false, err
	}

	_, err = s.jobStore.EnqueueTx(ctx, dbTx, PayoutQueue, ProcessPayoutJob,
		payoutJobPayload{PayoutID: payout.ID},
		jobqueue.EnqueueOptions{TenantID: tenant.id, MaxAttempts: 5})
	if err != nil {
		return false, err
	}

	err = outbox.EmitTx(ctx, dbTx, s.models, "payout", payout.ID, "payout.created", map[string]any{
		"payoutId": payout.ID,
		"userId":   profile.UserID,
		"amount":   amount.String(),
		"kind":     "payroll",
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
