package httphandler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slices"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/finance"
	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
	"github.com/opsplane/opsplane-backend/internal/serve/httpresponse"
)

type BookingHandler struct {
	Models         *data.Models
	FinanceService *finance.Service
}

type createBookingRequest struct {
	TotalAmount string `json:"totalAmount"`
	Currency    string `json:"currency"`
}

type updateBookingStatusRequest struct {
	Status string `json:"status"`
}

type bookingResponse struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	TotalAmount string     `json:"totalAmount"`
	Currency    string     `json:"currency"`
	SettledAt   *time.Time `json:"settledAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func toBookingResponse(b *data.Booking) bookingResponse {
	return bookingResponse{
		ID:          b.ID,
		Status:      string(b.Status),
		TotalAmount: b.TotalAmount.StringFixed(2),
		Currency:    b.Currency,
		SettledAt:   b.SettledAt,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func (h BookingHandler) Create(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body createBookingRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}
	amount, err := data.MoneyFromString(body.TotalAmount)
	if err != nil {
		httperror.BadRequest("totalAmount must be a decimal number", err).Render(rw, req)
		return
	}
	if amount.IsNegative() {
		httperror.BadRequest("totalAmount cannot be negative", nil).Render(rw, req)
		return
	}

	booking, err := h.Models.Bookings.Insert(ctx, h.Models.DBConnectionPool, amount, body.Currency)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusCreated, toBookingResponse(booking))
}

func (h BookingHandler) Get(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	bookingID := chi.URLParam(req, "id")

	booking, err := h.Models.Bookings.Get(ctx, h.Models.DBConnectionPool, bookingID, false)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, toBookingResponse(booking))
}

func (h BookingHandler) List(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	page, pageLimit := parsePagination(req)

	params := data.BookingQueryParams{Page: page, PageLimit: pageLimit}
	for _, raw := range req.URL.Query()["status"] {
		status := data.BookingStatus(strings.ToUpper(raw))
		if !slices.Contains(data.BookingStatuses(), status) {
			httperror.BadRequest(fmt.Sprintf("invalid status %q", raw), nil).Render(rw, req)
			return
		}
		params.Statuses = append(params.Statuses, status)
	}

	bookings, err := h.Models.Bookings.GetAll(ctx, params)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	out := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, toBookingResponse(&bookings[i]))
	}
	httpresponse.RenderWithMeta(rw, http.StatusOK, out, &httpresponse.Meta{Page: page, PageSize: pageLimit})
}

// UpdateStatus drives the booking state machine. A transition to COMPLETED is
// the settlement path: it runs through the finance service so income rows and
// commission releases happen atomically with the status change.
func (h BookingHandler) UpdateStatus(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	bookingID := chi.URLParam(req, "id")

	var body updateBookingStatusRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}

	target := data.BookingStatus(body.Status)
	switch target {
	case data.BookingStatusCompleted:
		booking, err := h.FinanceService.SettleBooking(ctx, bookingID)
		if err != nil {
			httperror.FromError(ctx, err).Render(rw, req)
			return
		}
		httpresponse.Render(rw, http.StatusOK, toBookingResponse(booking))
		return
	case data.BookingStatusConfirmed, data.BookingStatusCancelled:
		booking, err := h.Models.Bookings.Get(ctx, h.Models.DBConnectionPool, bookingID, false)
		if err != nil {
			httperror.FromError(ctx, err).Render(rw, req)
			return
		}
		updated, err := h.Models.Bookings.UpdateStatus(ctx, h.Models.DBConnectionPool, bookingID, booking.Status, target)
		if err != nil {
			httperror.FromError(ctx, err).Render(rw, req)
			return
		}
		httpresponse.Render(rw, http.StatusOK, toBookingResponse(updated))
		return
	default:
		httperror.BadRequest("status must be one of CONFIRMED, COMPLETED, CANCELLED", nil).Render(rw, req)
	}
}
