package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/jobqueue"
	"github.com/opsplane/opsplane-backend/internal/outbox"
)

// PayoutEmailDispatcher turns settled payout events into an email for the
// payout's owner. It writes on the relay transaction, so the email job commits
// atomically with the event's published mark.
type PayoutEmailDispatcher struct {
	models   *data.Models
	jobStore *jobqueue.Store
}

var _ outbox.TxDispatcher = (*PayoutEmailDispatcher)(nil)

func NewPayoutEmailDispatcher(models *data.Models, jobStore *jobqueue.Store) (*PayoutEmailDispatcher, error) {
	if models == nil {
		return nil, errors.New("models are required for the payout email dispatcher")
	}
	if jobStore == nil {
		return nil, errors.New("a job store is required for the payout email dispatcher")
	}
	return &PayoutEmailDispatcher{models: models, jobStore: jobStore}, nil
}

func (d *PayoutEmailDispatcher) Dispatch(ctx context.Context, event data.OutboxEvent) error {
	return errors.New("payout emails must be enqueued on the relay transaction")
}

func (d *PayoutEmailDispatcher) DispatchTx(ctx context.Context, dbTx db.DBTransaction, event data.OutboxEvent) error {
	template, subject := payoutEmailTemplate(event.EventType)
	if template == "" {
		return nil
	}

	payout, err := d.models.Payouts.Get(ctx, dbTx, event.AggregateID, false)
	if err != nil {
		return fmt.Errorf("loading payout %s for %s email: %w", event.AggregateID, event.EventType, err)
	}
	user, err := d.models.Users.GetByID(ctx, dbTx, payout.UserID)
	if err != nil {
		return fmt.Errorf("loading user %s for %s email: %w", payout.UserID, event.EventType, err)
	}
	tenant, err := d.models.Tenants.GetByID(ctx, payout.TenantID)
	if err != nil {
		return fmt.Errorf("loading tenant of payout %s: %w", payout.ID, err)
	}

	templateData := map[string]any{
		"Amount":    payout.Amount.String(),
		"Currency":  tenant.BaseCurrency,
		"Date":      payout.UpdatedAt.Format("2006-01-02"),
		"Reference": payout.GatewayReference.String,
	}
	return EnqueueEmail(ctx, dbTx, d.jobStore, user.Email, user.Email, subject, template, "en", templateData)
}

// payoutEmailTemplate maps a payout event to its template and subject; other
// event types get no mail.
func payoutEmailTemplate(eventType string) (template, subject string) {
	switch eventType {
	case "payout.completed":
		return "payout_completed", "Your payout is on its way"
	case "payout.failed":
		return "payout_failed", "Your payout could not be processed"
	}
	return "", ""
}
