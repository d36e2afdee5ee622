package httphandler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
	"github.com/opsplane/opsplane-backend/internal/serve/httpresponse"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
	"github.com/opsplane/opsplane-backend/internal/webhook"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const maxGatewayPayloadBytes = 1 << 20

// GatewayWebhookHandler receives payout status callbacks from the payment
// gateway. The HMAC check runs before anything else touches the payload, and
// the tenant comes from the provider account mapping, never from the body's
// own claims about who it is.
type GatewayWebhookHandler struct {
	Models *data.Models

	// ProviderSecrets maps the provider URL segment to its shared HMAC secret.
	ProviderSecrets map[string]string
}

type gatewayEventRequest struct {
	ProviderAccountID string `json:"providerAccountId"`
	PayoutID          string `json:"payoutId"`
	Status            string `json:"status"`
	GatewayReference  string `json:"gatewayReference,omitempty"`
}

func (h GatewayWebhookHandler) Receive(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	provider := chi.URLParam(req, "provider")

	secret, ok := h.ProviderSecrets[provider]
	if !ok {
		httperror.NotFound("", nil).Render(rw, req)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxGatewayPayloadBytes))
	if err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}

	timestamp := req.Header.Get(webhook.TimestampHeader)
	signature := req.Header.Get(webhook.SignatureHeader)
	if err = webhook.VerifySignature(secret, timestamp, string(body), signature, time.Now()); err != nil {
		log.Ctx(ctx).WithError(err).Warnf("rejecting gateway webhook from provider %s", provider)
		httperror.Unauthorized("invalid webhook signature", err).Render(rw, req)
		return
	}

	var event gatewayEventRequest
	if err = json.Unmarshal(body, &event); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}
	if event.ProviderAccountID == "" || event.PayoutID == "" {
		httperror.BadRequest("providerAccountId and payoutId are required", nil).Render(rw, req)
		return
	}

	tenantID, err := h.Models.Webhooks.ResolveProviderTenant(ctx, provider, event.ProviderAccountID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("unknown provider account", err).Render(rw, req)
			return
		}
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	tenantCtx := tenantctx.WithTenant(ctx, tenantID)

	var target data.PayoutStatus
	switch event.Status {
	case "completed":
		target = data.PayoutStatusCompleted
	case "failed":
		target = data.PayoutStatusFailed
	default:
		httperror.BadRequest("status must be completed or failed", nil).Render(rw, req)
		return
	}

	_, err = h.Models.Payouts.UpdateStatus(tenantCtx, h.Models.DBConnectionPool, event.PayoutID, data.PayoutStatusProcessing, target, event.GatewayReference)
	if err != nil {
		// A redelivered event lands after the payout already reached a terminal
		// state; acknowledge it so the gateway stops retrying.
		if errors.Is(err, data.ErrInvalidStatusTransition) {
			httpresponse.Render(rw, http.StatusOK, map[string]string{"status": "acknowledged"})
			return
		}
		httperror.FromError(tenantCtx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, map[string]string{"status": "processed"})
}
