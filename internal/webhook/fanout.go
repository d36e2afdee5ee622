package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/jobqueue"
	"github.com/opsplane/opsplane-backend/internal/outbox"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
)

const (
	// DeliveryQueue is the durable queue webhook deliveries live on.
	DeliveryQueue = "webhooks"
	// DeliverWebhookJob is the job name of one delivery attempt series.
	DeliverWebhookJob = "deliver_webhook"

	deliveryMaxAttempts = 5
)

// Fanout is the outbox dispatcher: one outbox event becomes one delivery row
// plus one queue job per subscribed webhook, written on the relay's
// transaction so the fan-out commits atomically with the published mark.
type Fanout struct {
	models   *data.Models
	jobStore *jobqueue.Store
}

var _ outbox.TxDispatcher = (*Fanout)(nil)

func NewFanout(models *data.Models, jobStore *jobqueue.Store) (*Fanout, error) {
	if models == nil {
		return nil, errors.New("models are required for the webhook fanout")
	}
	if jobStore == nil {
		return nil, errors.New("a job store is required for the webhook fanout")
	}
	return &Fanout{models: models, jobStore: jobStore}, nil
}

func (f *Fanout) Dispatch(ctx context.Context, event data.OutboxEvent) error {
	return errors.New("webhook fanout must run on the relay transaction")
}

func (f *Fanout) DispatchTx(ctx context.Context, dbTx db.DBTransaction, event data.OutboxEvent) error {
	tenantID, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}

	webhooks, err := f.models.Webhooks.GetActiveByEventType(ctx, dbTx, event.EventType)
	if err != nil {
		return err
	}

	for i := range webhooks {
		wh := &webhooks[i]
		delivery, err := f.models.WebhookDeliveries.Insert(ctx, dbTx, wh.ID, event.EventType, string(event.Payload), nil, deliveryMaxAttempts)
		if err != nil {
			return fmt.Errorf("creating delivery for webhook %s: %w", wh.ID, err)
		}

		_, err = f.jobStore.EnqueueTx(ctx, dbTx, DeliveryQueue, DeliverWebhookJob,
			deliveryJobPayload{DeliveryID: delivery.ID},
			jobqueue.EnqueueOptions{TenantID: tenantID, MaxAttempts: deliveryMaxAttempts})
		if err != nil {
			return fmt.Errorf("enqueueing delivery %s: %w", delivery.ID, err)
		}
	}
	return nil
}

type deliveryJobPayload struct {
	DeliveryID string `json:"deliveryId"`
}
