package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/jobqueue"
	"github.com/opsplane/opsplane-backend/internal/monitor"
	"github.com/opsplane/opsplane-backend/internal/utils"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const (
	deliveryTimeout     = 15 * time.Second
	secretCacheSize     = 256
	retryBackoffBase    = 30 * time.Second
	retryBackoffCeiling = time.Hour
)

// Deliverer executes delivery jobs: sign, POST, settle the delivery row.
type Deliverer struct {
	models         *data.Models
	httpClient     *http.Client
	monitorService monitor.MonitorServiceInterface

	// webhooks caches endpoint rows (URL + signing secret) between attempts;
	// the short TTL bounds how long a rotated secret keeps being used.
	webhooks *expirable.LRU[string, data.Webhook]
}

var _ jobqueue.Handler = (*Deliverer)(nil)
var _ jobqueue.FailureHook = (*Deliverer)(nil)

func NewDeliverer(models *data.Models, monitorService monitor.MonitorServiceInterface) (*Deliverer, error) {
	if models == nil {
		return nil, errors.New("models are required for the webhook deliverer")
	}
	return &Deliverer{
		models:         models,
		httpClient:     &http.Client{Timeout: deliveryTimeout},
		monitorService: monitorService,
		webhooks:       expirable.NewLRU[string, data.Webhook](secretCacheSize, nil, 5*time.Minute),
	}, nil
}

func (d *Deliverer) Name() string { return DeliverWebhookJob }

func (d *Deliverer) AttemptTimeout() time.Duration { return deliveryTimeout + 5*time.Second }

func (d *Deliverer) Execute(ctx context.Context, job *jobqueue.Job) error {
	var payload deliveryJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decoding delivery job payload: %w", err)
	}

	delivery, err := d.models.WebhookDeliveries.Get(ctx, d.models.DBConnectionPool, payload.DeliveryID, false)
	if err != nil {
		return fmt.Errorf("loading delivery %s: %w", payload.DeliveryID, err)
	}
	if delivery.Status == data.WebhookDeliveryStatusDelivered || delivery.Status == data.WebhookDeliveryStatusFailed {
		return nil
	}

	webhook, err := d.loadWebhook(ctx, delivery.WebhookID)
	if err != nil {
		return err
	}

	started := time.Now()
	responseStatus, postErr := d.post(ctx, webhook, delivery)
	durationMS := time.Since(started).Milliseconds()

	if postErr == nil {
		if err := d.models.WebhookDeliveries.MarkDelivered(ctx, d.models.DBConnectionPool, delivery.ID, responseStatus, durationMS); err != nil {
			return err
		}
		d.observeDuration(delivery, time.Since(started))
		return nil
	}

	// Record the failed attempt, then return the error so the queue applies
	// its own retry schedule; next_retry_at here is informational.
	var statusPtr *int
	if responseStatus != 0 {
		statusPtr = &responseStatus
	}
	nextRetryAt := time.Now().UTC().Add(utils.JitteredBackoff(retryBackoffBase, delivery.AttemptNumber, retryBackoffCeiling))
	if err := d.models.WebhookDeliveries.MarkRetrying(ctx, d.models.DBConnectionPool, delivery.ID, statusPtr, nextRetryAt); err != nil {
		log.Ctx(ctx).WithError(err).Errorf("recording failed attempt of delivery %s", delivery.ID)
	}
	return postErr
}

// OnFinalFailure parks the delivery once the queue exhausts its attempts.
func (d *Deliverer) OnFinalFailure(ctx context.Context, job *jobqueue.Job, runErr error) {
	var payload deliveryJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		log.Ctx(ctx).WithError(err).Errorf("decoding payload of failed delivery job %s", job.ID)
		return
	}
	if err := d.models.WebhookDeliveries.MarkFailed(ctx, d.models.DBConnectionPool, payload.DeliveryID, nil); err != nil {
		log.Ctx(ctx).WithError(err).Errorf("marking delivery %s failed", payload.DeliveryID)
	}
}

func (d *Deliverer) post(ctx context.Context, webhook *data.Webhook, delivery *data.WebhookDelivery) (int, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := Sign(webhook.Secret, timestamp, delivery.RequestBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, strings.NewReader(delivery.RequestBody))
	if err != nil {
		return 0, fmt.Errorf("building delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set(TimestampHeader, timestamp)
	req.Header.Set("X-Event-Type", delivery.EventType)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("posting delivery to %s: %w", webhook.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("delivery to %s returned status %d", webhook.URL, resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *Deliverer) loadWebhook(ctx context.Context, webhookID string) (*data.Webhook, error) {
	if cached, ok := d.webhooks.Get(webhookID); ok {
		return &cached, nil
	}
	webhook, err := d.models.Webhooks.Get(ctx, webhookID)
	if err != nil {
		return nil, fmt.Errorf("loading webhook %s: %w", webhookID, err)
	}
	d.webhooks.Add(webhookID, *webhook)
	return webhook, nil
}

func (d *Deliverer) observeDuration(delivery *data.WebhookDelivery, duration time.Duration) {
	if d.monitorService == nil {
		return
	}
	labels := map[string]string{"tenant": delivery.TenantID, "event_type": delivery.EventType}
	if err := d.monitorService.MonitorDuration(duration, monitor.WebhookDeliveryDurationTag, labels); err != nil {
		log.Errorf("recording webhook delivery metric: %v", err)
	}
}
