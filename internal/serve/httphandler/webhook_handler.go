package httphandler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
	"github.com/opsplane/opsplane-backend/internal/serve/httpresponse"
)

const webhookSecretBytes = 32

// WebhookHandler is the admin CRUD surface for outbound webhook endpoints.
type WebhookHandler struct {
	Models *data.Models
}

type createWebhookRequest struct {
	URL        string   `json:"url"`
	EventTypes []string `json:"eventTypes"`
}

type webhookResponse struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	EventTypes []string  `json:"eventTypes"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	// Secret is only populated on creation; it is never readable afterwards.
	Secret string `json:"secret,omitempty"`
}

func toWebhookResponse(w *data.Webhook, secret string) webhookResponse {
	return webhookResponse{
		ID:         w.ID,
		URL:        w.URL,
		EventTypes: w.EventTypes,
		IsActive:   w.IsActive,
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
		Secret:     secret,
	}
}

func validateWebhookURL(raw string) *httperror.HTTPError {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme != "https" || parsed.Host == "" {
		return httperror.BadRequest("url must be an absolute https URL", err)
	}
	return nil
}

// Create registers an endpoint and returns its signing secret exactly once.
func (h WebhookHandler) Create(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body createWebhookRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}
	if httpErr := validateWebhookURL(body.URL); httpErr != nil {
		httpErr.Render(rw, req)
		return
	}
	if len(body.EventTypes) == 0 {
		httperror.BadRequest("at least one event type is required", nil).Render(rw, req)
		return
	}

	secretBytes := make([]byte, webhookSecretBytes)
	if _, err := rand.Read(secretBytes); err != nil {
		httperror.InternalError(ctx, "Cannot generate webhook secret", err).Render(rw, req)
		return
	}
	secret := hex.EncodeToString(secretBytes)

	webhook, err := h.Models.Webhooks.Insert(ctx, h.Models.DBConnectionPool, body.URL, secret, body.EventTypes)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusCreated, toWebhookResponse(webhook, secret))
}

func (h WebhookHandler) List(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	webhooks, err := h.Models.Webhooks.GetAll(ctx)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	out := make([]webhookResponse, 0, len(webhooks))
	for i := range webhooks {
		out = append(out, toWebhookResponse(&webhooks[i], ""))
	}
	httpresponse.Render(rw, http.StatusOK, out)
}

type updateWebhookRequest struct {
	URL        *string  `json:"url,omitempty"`
	EventTypes []string `json:"eventTypes,omitempty"`
	IsActive   *bool    `json:"isActive,omitempty"`
}

func (h WebhookHandler) Update(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	webhookID := chi.URLParam(req, "id")

	var body updateWebhookRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}
	if body.URL != nil {
		if httpErr := validateWebhookURL(*body.URL); httpErr != nil {
			httpErr.Render(rw, req)
			return
		}
	}

	webhook, err := h.Models.Webhooks.Update(ctx, webhookID, body.URL, body.EventTypes, body.IsActive)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, toWebhookResponse(webhook, ""))
}

func (h WebhookHandler) Delete(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	webhookID := chi.URLParam(req, "id")

	if err := h.Models.Webhooks.Delete(ctx, webhookID); err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

type webhookDeliveryResponse struct {
	ID             string     `json:"id"`
	EventType      string     `json:"eventType"`
	Status         string     `json:"status"`
	ResponseStatus *int       `json:"responseStatus,omitempty"`
	AttemptNumber  int        `json:"attemptNumber"`
	MaxAttempts    int        `json:"maxAttempts"`
	NextRetryAt    *time.Time `json:"nextRetryAt,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
	DurationMS     *int64     `json:"durationMs,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ListDeliveries shows the delivery history of one endpoint.
func (h WebhookHandler) ListDeliveries(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	webhookID := chi.URLParam(req, "id")
	page, pageLimit := parsePagination(req)

	deliveries, err := h.Models.WebhookDeliveries.GetAllForWebhook(ctx, webhookID, page, pageLimit)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	out := make([]webhookDeliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		d := &deliveries[i]
		out = append(out, webhookDeliveryResponse{
			ID:             d.ID,
			EventType:      d.EventType,
			Status:         string(d.Status),
			ResponseStatus: d.ResponseStatus,
			AttemptNumber:  d.AttemptNumber,
			MaxAttempts:    d.MaxAttempts,
			NextRetryAt:    d.NextRetryAt,
			DeliveredAt:    d.DeliveredAt,
			DurationMS:     d.DurationMS,
			CreatedAt:      d.CreatedAt,
		})
	}
	httpresponse.RenderWithMeta(rw, http.StatusOK, out, &httpresponse.Meta{Page: page, PageSize: pageLimit})
}
