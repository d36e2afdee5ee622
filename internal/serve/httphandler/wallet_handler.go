package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
	"github.com/opsplane/opsplane-backend/internal/serve/httpresponse"
	"github.com/opsplane/opsplane-backend/internal/serve/middleware"
)

type WalletHandler struct {
	Models *data.Models
}

type walletResponse struct {
	UserID         string `json:"userId"`
	PendingBalance string `json:"pendingBalance"`
	PayableBalance string `json:"payableBalance"`
}

// GetMine returns the caller's wallet, creating it on first access.
func (h WalletHandler) GetMine(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	claims := middleware.ClaimsFromContext(ctx)
	h.renderWallet(rw, req, claims.Subject)
}

// GetForUser is the owner/admin view of any employee's wallet.
func (h WalletHandler) GetForUser(rw http.ResponseWriter, req *http.Request) {
	h.renderWallet(rw, req, chi.URLParam(req, "userID"))
}

func (h WalletHandler) renderWallet(rw http.ResponseWriter, req *http.Request, userID string) {
	ctx := req.Context()

	wallet, err := h.Models.EmployeeWallets.GetOrCreate(ctx, h.Models.DBConnectionPool, userID)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, walletResponse{
		UserID:         wallet.UserID,
		PendingBalance: wallet.PendingBalance.StringFixed(2),
		PayableBalance: wallet.PayableBalance.StringFixed(2),
	})
}

type upsertProfileRequest struct {
	BaseSalary     string `json:"baseSalary"`
	CommissionRate string `json:"commissionRate"`
}

type profileResponse struct {
	UserID         string `json:"userId"`
	BaseSalary     string `json:"baseSalary"`
	CommissionRate string `json:"commissionRate"`
}

// UpsertProfile sets an employee's salary and default commission rate; the
// payroll run reads these.
func (h WalletHandler) UpsertProfile(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	userID := chi.URLParam(req, "userID")

	var body upsertProfileRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}
	baseSalary, err := data.MoneyFromString(body.BaseSalary)
	if err != nil {
		httperror.BadRequest("baseSalary must be a decimal number", err).Render(rw, req)
		return
	}
	if baseSalary.IsNegative() {
		httperror.BadRequest("baseSalary cannot be negative", nil).Render(rw, req)
		return
	}
	rate, err := decimal.NewFromString(body.CommissionRate)
	if err != nil {
		httperror.BadRequest("commissionRate must be a decimal percentage", err).Render(rw, req)
		return
	}

	profile, err := h.Models.EmployeeProfiles.Upsert(ctx, h.Models.DBConnectionPool, userID, baseSalary, data.NewPercent(rate))
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, profileResponse{
		UserID:         profile.UserID,
		BaseSalary:     profile.BaseSalary.StringFixed(2),
		CommissionRate: profile.CommissionRate.StringFixed(2),
	})
}

func (h WalletHandler) GetProfile(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	userID := chi.URLParam(req, "userID")

	profile, err := h.Models.EmployeeProfiles.GetByUserID(ctx, h.Models.DBConnectionPool, userID)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, profileResponse{
		UserID:         profile.UserID,
		BaseSalary:     profile.BaseSalary.StringFixed(2),
		CommissionRate: profile.CommissionRate.StringFixed(2),
	})
}
