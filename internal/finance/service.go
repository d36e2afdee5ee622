// Package finance is the transactional core: the append-only ledger,
// commission accrual, settlement, payouts and payroll. Every operation runs in
// a single database transaction with explicit row locks, and every state
// change that matters downstream leaves through the outbox.
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
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const (
	// PayoutQueue is the durable queue the gateway worker polls.
	PayoutQueue = "payouts"
	// ProcessPayoutJob is the job name for one gateway submission.
	ProcessPayoutJob = "process_payout"
)

type ServiceOptions struct {
	Models         *data.Models
	AuditService   audit.ServiceInterface
	MonitorService monitor.MonitorServiceInterface
	JobStore       *jobqueue.Store
	RateResolver   *RateResolver
}

type Service struct {
	models         *data.Models
	auditService   audit.ServiceInterface
	monitorService monitor.MonitorServiceInterface
	jobStore       *jobqueue.Store
	rates          *RateResolver
}

func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Models == nil {
		return nil, errors.New("models are required for the finance service")
	}
	if opts.RateResolver == nil {
		return nil, errors.New("a rate resolver is required for the finance service")
	}
	if opts.JobStore == nil {
		return nil, errors.New("a job store is required for the finance service")
	}
	return &Service{
		models:         opts.Models,
		auditService:   opts.AuditService,
		monitorService: opts.MonitorService,
		jobStore:       opts.JobStore,
		rates:          opts.RateResolver,
	}, nil
}

type CreateTransactionInput struct {
	Type            data.TransactionType
	Amount          data.Money
	Currency        string
	Category        string
	BookingID       *string
	TaskID          *string
	Description     string
	TransactionDate time.Time
}

// CreateTransaction records a ledger row. The exchange rate against the
// tenant's base currency is resolved at write time and frozen on the row, so
// later rate changes never rewrite history.
func (s *Service) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*data.Transaction, error) {
	tenantID, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}

	tenant, err := s.models.Tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("loading tenant %s: %w", tenantID, err)
	}

	if input.TransactionDate.IsZero() {
		input.TransactionDate = time.Now().UTC()
	}

	rate := data.NewRate(oneDecimal())
	if input.Currency != tenant.BaseCurrency {
		rate, err = s.rates.Resolve(ctx, input.Currency, tenant.BaseCurrency, input.TransactionDate)
		if err != nil {
			return nil, fmt.Errorf("resolving %s/%s rate: %w", input.Currency, tenant.BaseCurrency, err)
		}
	}

	tx, err := db.RunInTransactionWithResult(ctx, s.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) (*data.Transaction, error) {
		inserted, err := s.models.Transactions.Insert(ctx, dbTx, data.Transaction{
			Type:            input.Type,
			Amount:          input.Amount,
			Currency:        input.Currency,
			ExchangeRate:    rate,
			Category:        input.Category,
			BookingID:       input.BookingID,
			TaskID:          input.TaskID,
			Description:     input.Description,
			TransactionDate: input.TransactionDate,
		})
		if err != nil {
			return nil, err
		}

		err = outbox.EmitTx(ctx, dbTx, s.models, "transaction", inserted.ID, "transaction.created", map[string]any{
			"transactionId": inserted.ID,
			"type":          inserted.Type,
			"amount":        inserted.Amount.String(),
			"currency":      inserted.Currency,
			"category":      inserted.Category,
		})
		if err != nil {
			return nil, err
		}
		return inserted, nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating transaction: %w", err)
	}

	s.auditLog(ctx, audit.Entry{
		Action:     "transaction.created",
		EntityName: "transactions",
		EntityID:   tx.ID,
		NewValues: map[string]any{
			"type":     tx.Type,
			"amount":   tx.Amount.String(),
			"currency": tx.Currency,
			"category": tx.Category,
		},
	})
	return tx, nil
}

func (s *Service) auditLog(ctx context.Context, entry audit.Entry) {
	if s.auditService == nil {
		return
	}
	if err := s.auditService.Log(ctx, entry); err != nil {
		log.Ctx(ctx).WithError(err).Errorf("enqueueing audit entry %s", entry.Action)
	}
}

func (s *Service) count(tag monitor.MetricTag, labels map[string]string) {
	if s.monitorService == nil {
		return
	}
	if err := s.monitorService.MonitorCounters(tag, labels); err != nil {
		log.Errorf("recording finance metric %s: %v", tag, err)
	}
}
