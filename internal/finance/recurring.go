package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/outbox"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const recurringClaimBatch = 50

// MaterializeRecurringTransactions turns due schedules of the ambient tenant
// into concrete ledger rows. Claim and materialization share one transaction
// per batch; SKIP LOCKED on the claim keeps overlapping passes disjoint.
func (s *Service) MaterializeRecurringTransactions(ctx context.Context, now time.Time) (int, error) {
	tenant, err := s.loadTenant(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for {
		materialized, err := db.RunInTransactionWithResult(ctx, s.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) (int, error) {
			due, err := s.models.RecurringTransactions.ClaimDue(ctx, dbTx, now, recurringClaimBatch)
			if err != nil {
				return 0, err
			}

			for i := range due {
				schedule := &due[i]
				if err := s.materializeSchedule(ctx, dbTx, tenant, schedule, now); err != nil {
					return 0, fmt.Errorf("materializing schedule %s: %w", schedule.ID, err)
				}
			}
			return len(due), nil
		})
		if err != nil {
			return total, fmt.Errorf("materializing recurring transactions: %w", err)
		}
		total += materialized
		if materialized < recurringClaimBatch {
			break
		}
	}

	if total > 0 {
		log.Ctx(ctx).Infof("materialized %d recurring transactions for tenant %s", total, tenant.id)
	}
	return total, nil
}

func (s *Service) materializeSchedule(ctx context.Context, dbTx db.DBTransaction, tenant tenantInfo, schedule *data.RecurringTransaction, now time.Time) error {
	rate := data.NewRate(oneDecimal())
	if schedule.Currency != tenant.baseCurrency {
		var err error
		rate, err = s.rates.Resolve(ctx, schedule.Currency, tenant.baseCurrency, now)
		if err != nil {
			return err
		}
	}

	tx, err := s.models.Transactions.Insert(ctx, dbTx, data.Transaction{
		Type:            schedule.Type,
		Amount:          schedule.Amount,
		Currency:        schedule.Currency,
		ExchangeRate:    rate,
		Category:        schedule.Category,
		Description:     schedule.Description,
		TransactionDate: now,
	})
	if err != nil {
		return err
	}

	if err := s.models.RecurringTransactions.Advance(ctx, dbTx, schedule, now); err != nil {
		return err
	}

	return outbox.EmitTx(ctx, dbTx, s.models, "transaction", tx.ID, "transaction.created", map[string]any{
		"transactionId": tx.ID,
		"recurringId":   schedule.ID,
		"type":          tx.Type,
		"amount":        tx.Amount.String(),
		"currency":      tx.Currency,
	})
}
