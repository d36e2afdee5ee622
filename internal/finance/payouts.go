package finance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/audit"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/jobqueue"
	"github.com/opsplane/opsplane-backend/internal/monitor"
	"github.com/opsplane/opsplane-backend/internal/outbox"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

// ErrInsufficientPayableBalance re-exports the wallet error so HTTP handlers
// can map it without importing data.
var ErrInsufficientPayableBalance = data.ErrInsufficientPayableBalance

// PayoutGateway submits one payout to the external money-movement provider.
type PayoutGateway interface {
	Submit(ctx context.Context, payout *data.Payout) (reference string, err error)
}

// DryRunGateway approves everything; wired in development and tests.
type DryRunGateway struct{}

func (DryRunGateway) Submit(ctx context.Context, payout *data.Payout) (string, error) {
	log.Ctx(ctx).Infof("dry-run gateway approving payout %s (%s)", payout.ID, payout.Amount)
	return "dryrun-" + payout.ID, nil
}

// CreatePayout debits the user's payable balance and creates a PENDING payout
// in one transaction, then hands the gateway submission to the payout queue.
// The idempotency key makes retried requests return the original payout
// instead of debiting twice.
func (s *Service) CreatePayout(ctx context.Context, userID string, amount data.Money, idempotencyKey, notes string) (*data.Payout, error) {
	tenant, err := s.loadTenant(ctx)
	if err != nil {
		return nil, err
	}

	payout, err := db.RunInTransactionWithResult(ctx, s.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) (*data.Payout, error) {
		wallet, err := s.models.EmployeeWallets.GetByUserID(ctx, dbTx, userID, true)
		if err != nil {
			return nil, err
		}

		payout, err := s.models.Payouts.Insert(ctx, dbTx, userID, amount, idempotencyKey, notes)
		if err != nil {
			return nil, err
		}

		if err := s.models.EmployeeWallets.DebitPayable(ctx, dbTx, wallet.ID, amount); err != nil {
			return nil, err
		}

		_, err = s.models.Transactions.Insert(ctx, dbTx, data.Transaction{
			Type:            data.TransactionTypePayroll,
			Amount:          amount,
			Currency:        tenant.baseCurrency,
			Category:        "payout",
			PayoutID:        &payout.ID,
			Description:     fmt.Sprintf("payout to user %s", userID),
			TransactionDate: time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}

		_, err = s.jobStore.EnqueueTx(ctx, dbTx, PayoutQueue, ProcessPayoutJob,
			payoutJobPayload{PayoutID: payout.ID},
			jobqueue.EnqueueOptions{TenantID: tenant.id, MaxAttempts: 5})
		if err != nil {
			return nil, err
		}

		err = outbox.EmitTx(ctx, dbTx, s.models, "payout", payout.ID, "payout.created", map[string]any{
			"payoutId": payout.ID,
			"userId":   userID,
			"amount":   amount.String(),
		})
		if err != nil {
			return nil, err
		}
		return payout, nil
	})
	if err != nil {
		// A replayed idempotency key is not a failure: return the first payout.
		if errors.Is(err, data.ErrRecordAlreadyExists) {
			return s.models.Payouts.GetByIdempotencyKey(ctx, s.models.DBConnectionPool, idempotencyKey)
		}
		return nil, fmt.Errorf("creating payout for user %s: %w", userID, err)
	}

	s.auditLog(ctx, audit.Entry{
		Action:     "payout.created",
		EntityName: "payouts",
		EntityID:   payout.ID,
		NewValues:  map[string]any{"userId": userID, "amount": amount.String(), "status": payout.Status},
	})
	return payout, nil
}

type payoutJobPayload struct {
	PayoutID string `json:"payoutId"`
}

// PayoutGatewayHandler is the payout-queue job: submit to the gateway and
// settle the outcome. A failed submission after all job retries refunds the
// wallet through OnFinalFailure.
type PayoutGatewayHandler struct {
	Service *Service
	Gateway PayoutGateway
}

var _ jobqueue.Handler = (*PayoutGatewayHandler)(nil)
var _ jobqueue.FailureHook = (*PayoutGatewayHandler)(nil)

func (h *PayoutGatewayHandler) Name() string { return ProcessPayoutJob }

func (h *PayoutGatewayHandler) Execute(ctx context.Context, job *jobqueue.Job) error {
	var payload payoutJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decoding payout job payload: %w", err)
	}
	return h.Service.processPayout(ctx, payload.PayoutID, h.Gateway)
}

// OnFinalFailure refunds the debited amount once retries are exhausted.
func (h *PayoutGatewayHandler) OnFinalFailure(ctx context.Context, job *jobqueue.Job, runErr error) {
	var payload payoutJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		log.Ctx(ctx).WithError(err).Errorf("decoding payload of failed payout job %s", job.ID)
		return
	}
	if err := h.Service.failPayout(ctx, payload.PayoutID, runErr); err != nil {
		log.Ctx(ctx).WithError(err).Errorf("refunding failed payout %s", payload.PayoutID)
	}
}

func (s *Service) processPayout(ctx context.Context, payoutID string, gateway PayoutGateway) error {
	payout, err := s.models.Payouts.Get(ctx, s.models.DBConnectionPool, payoutID, false)
	if err != nil {
		return fmt.Errorf("loading payout %s: %w", payoutID, err)
	}

	switch payout.Status {
	case data.PayoutStatusCompleted, data.PayoutStatusFailed:
		// Retried job after a settled outcome: nothing to do.
		return nil
	case data.PayoutStatusPending:
		payout, err = s.models.Payouts.UpdateStatus(ctx, s.models.DBConnectionPool, payoutID,
			data.PayoutStatusPending, data.PayoutStatusProcessing, "")
		if err != nil {
			return err
		}
	}

	reference, err := retry.DoWithData(func() (string, error) {
		return gateway.Submit(ctx, payout)
	}, retry.Context(ctx), retry.Attempts(3), retry.Delay(500*time.Millisecond), retry.DelayType(retry.BackOffDelay))
	if err != nil {
		return fmt.Errorf("submitting payout %s to gateway: %w", payoutID, err)
	}

	return db.RunInTransaction(ctx, s.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) error {
		if _, err := s.models.Payouts.UpdateStatus(ctx, dbTx, payoutID,
			data.PayoutStatusProcessing, data.PayoutStatusCompleted, reference); err != nil {
			return err
		}
		err := outbox.EmitTx(ctx, dbTx, s.models, "payout", payoutID, "payout.completed", map[string]any{
			"payoutId":  payoutID,
			"reference": reference,
		})
		if err != nil {
			return err
		}
		s.count(monitor.PayoutGatewayOutcomeTag, map[string]string{"outcome": "completed"})
		return nil
	})
}

// failPayout marks the payout FAILED, refunds the payable balance and records
// the compensating ledger row.
func (s *Service) failPayout(ctx context.Context, payoutID string, cause error) error {
	tenant, err := s.loadTenant(ctx)
	if err != nil {
		return err
	}

	err = db.RunInTransaction(ctx, s.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) error {
		payout, err := s.models.Payouts.Get(ctx, dbTx, payoutID, true)
		if err != nil {
			return err
		}
		if payout.Status == data.PayoutStatusCompleted || payout.Status == data.PayoutStatusFailed {
			return nil
		}

		if _, err := s.models.Payouts.UpdateStatus(ctx, dbTx, payoutID, payout.Status, data.PayoutStatusFailed, ""); err != nil {
			return err
		}

		wallet, err := s.models.EmployeeWallets.GetByUserID(ctx, dbTx, payout.UserID, true)
		if err != nil {
			return err
		}
		if err := s.models.EmployeeWallets.CreditPayable(ctx, dbTx, wallet.ID, payout.Amount); err != nil {
			return err
		}

		_, err = s.models.Transactions.Insert(ctx, dbTx, data.Transaction{
			Type:            data.TransactionTypeIncome,
			Amount:          payout.Amount,
			Currency:        tenant.baseCurrency,
			Category:        "payout reversal",
			PayoutID:        &payout.ID,
			Description:     fmt.Sprintf("refund of failed payout %s", payout.ID),
			TransactionDate: time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		return outbox.EmitTx(ctx, dbTx, s.models, "payout", payout.ID, "payout.failed", map[string]any{
			"payoutId": payout.ID,
			"reason":   fmt.Sprint(cause),
		})
	})
	if err != nil {
		return fmt.Errorf("failing payout %s: %w", payoutID, err)
	}

	s.count(monitor.PayoutGatewayOutcomeTag, map[string]string{"outcome": "failed"})
	s.auditLog(ctx, audit.Entry{
		Action:     "payout.failed",
		EntityName: "payouts",
		EntityID:   payoutID,
		NewValues:  map[string]any{"status": data.PayoutStatusFailed, "reason": fmt.Sprint(cause)},
	})
	return nil
}
