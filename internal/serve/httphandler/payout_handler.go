package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/finance"
	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
	"github.com/opsplane/opsplane-backend/internal/serve/httpresponse"
	"github.com/opsplane/opsplane-backend/internal/serve/middleware"
)

// IdempotencyKeyHeader carries the caller's dedup key for payout creation.
// Retrying with the same key returns the original payout instead of paying
// twice.
const IdempotencyKeyHeader = "Idempotency-Key"

type PayoutHandler struct {
	Models         *data.Models
	FinanceService *finance.Service
}

type createPayoutRequest struct {
	UserID string `json:"userId,omitempty"`
	Amount string `json:"amount"`
	Notes  string `json:"notes,omitempty"`
}

type payoutResponse struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	Amount           string    `json:"amount"`
	Status           string    `json:"status"`
	GatewayReference string    `json:"gatewayReference,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	PayoutDate       time.Time `json:"payoutDate"`
	CreatedAt        time.Time `json:"createdAt"`
}

func toPayoutResponse(p *data.Payout) payoutResponse {
	return payoutResponse{
		ID:               p.ID,
		UserID:           p.UserID,
		Amount:           p.Amount.StringFixed(2),
		Status:           string(p.Status),
		GatewayReference: p.GatewayReference.String,
		Notes:            p.Notes,
		PayoutDate:       p.PayoutDate,
		CreatedAt:        p.CreatedAt,
	}
}

// Create requests a payout against the caller's payable balance. Admins may
// pay out on behalf of another user by setting userId.
func (h PayoutHandler) Create(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	claims := middleware.ClaimsFromContext(ctx)

	idempotencyKey := req.Header.Get(IdempotencyKeyHeader)
	if idempotencyKey == "" {
		httperror.BadRequest("an Idempotency-Key header is required", nil).Render(rw, req)
		return
	}

	var body createPayoutRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}
	amount, err := data.MoneyFromString(body.Amount)
	if err != nil {
		httperror.BadRequest("amount must be a decimal number", err).Render(rw, req)
		return
	}

	targetUserID := claims.Subject
	if body.UserID != "" && body.UserID != claims.Subject {
		if claims.Role != string(data.UserRoleOwner) && claims.Role != string(data.UserRoleAdmin) {
			httperror.Forbidden("only owners and admins can pay out other users", nil).Render(rw, req)
			return
		}
		targetUserID = body.UserID
	}

	payout, err := h.FinanceService.CreatePayout(ctx, targetUserID, amount, idempotencyKey, body.Notes)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusCreated, toPayoutResponse(payout))
}

func (h PayoutHandler) List(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	claims := middleware.ClaimsFromContext(ctx)
	page, pageLimit := parsePagination(req)

	targetUserID := claims.Subject
	if requested := req.URL.Query().Get("user_id"); requested != "" && requested != claims.Subject {
		if claims.Role != string(data.UserRoleOwner) && claims.Role != string(data.UserRoleAdmin) {
			httperror.Forbidden("only owners and admins can view other users' payouts", nil).Render(rw, req)
			return
		}
		targetUserID = requested
	}

	payouts, err := h.Models.Payouts.GetAllForUser(ctx, targetUserID, page, pageLimit)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	out := make([]payoutResponse, 0, len(payouts))
	for i := range payouts {
		out = append(out, toPayoutResponse(&payouts[i]))
	}
	httpresponse.RenderWithMeta(rw, http.StatusOK, out, &httpresponse.Meta{Page: page, PageSize: pageLimit})
}
