package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/finance"
	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
	"github.com/opsplane/opsplane-backend/internal/serve/httpresponse"
)

type TransactionHandler struct {
	Models         *data.Models
	FinanceService *finance.Service
}

type createTransactionRequest struct {
	Type            string  `json:"type"`
	Amount          string  `json:"amount"`
	Currency        string  `json:"currency"`
	Category        string  `json:"category"`
	BookingID       *string `json:"bookingId,omitempty"`
	TaskID          *string `json:"taskId,omitempty"`
	Description     string  `json:"description,omitempty"`
	TransactionDate string  `json:"transactionDate,omitempty"`
}

type transactionResponse struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	ExchangeRate    string    `json:"exchangeRate"`
	Category        string    `json:"category"`
	BookingID       *string   `json:"bookingId,omitempty"`
	TaskID          *string   `json:"taskId,omitempty"`
	PayoutID        *string   `json:"payoutId,omitempty"`
	Description     string    `json:"description,omitempty"`
	TransactionDate time.Time `json:"transactionDate"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toTransactionResponse(t *data.Transaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		Type:            string(t.Type),
		Amount:          t.Amount.StringFixed(2),
		Currency:        t.Currency,
		ExchangeRate:    t.ExchangeRate.String(),
		Category:        t.Category,
		BookingID:       t.BookingID,
		TaskID:          t.TaskID,
		PayoutID:        t.PayoutID,
		Description:     t.Description,
		TransactionDate: t.TransactionDate,
		CreatedAt:       t.CreatedAt,
	}
}

func (h TransactionHandler) Create(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body createTransactionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}

	txType := data.TransactionType(body.Type)
	if !txType.IsValid() {
		httperror.BadRequest("type must be one of INCOME, EXPENSE, COMMISSION, PAYROLL", nil).Render(rw, req)
		return
	}
	amount, err := data.MoneyFromString(body.Amount)
	if err != nil {
		httperror.BadRequest("amount must be a decimal number", err).Render(rw, req)
		return
	}

	input := finance.CreateTransactionInput{
		Type:        txType,
		Amount:      amount,
		Currency:    body.Currency,
		Category:    body.Category,
		BookingID:   body.BookingID,
		TaskID:      body.TaskID,
		Description: body.Description,
	}
	if body.TransactionDate != "" {
		txDate, dateErr := time.Parse("2006-01-02", body.TransactionDate)
		if dateErr != nil {
			httperror.BadRequest("transactionDate must be formatted as YYYY-MM-DD", dateErr).Render(rw, req)
			return
		}
		input.TransactionDate = txDate
	}

	transaction, err := h.FinanceService.CreateTransaction(ctx, input)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusCreated, toTransactionResponse(transaction))
}

func (h TransactionHandler) List(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	page, pageLimit := parsePagination(req)

	params := data.TransactionQueryParams{
		Category:  req.URL.Query().Get("category"),
		BookingID: req.URL.Query().Get("booking_id"),
		Page:      page,
		PageLimit: pageLimit,
	}
	for _, raw := range req.URL.Query()["type"] {
		params.Types = append(params.Types, data.TransactionType(raw))
	}

	var err error
	if params.DateFrom, err = parseDateParam(req, "date_from"); err != nil {
		httperror.BadRequest("date_from must be formatted as YYYY-MM-DD", err).Render(rw, req)
		return
	}
	if params.DateTo, err = parseDateParam(req, "date_to"); err != nil {
		httperror.BadRequest("date_to must be formatted as YYYY-MM-DD", err).Render(rw, req)
		return
	}

	transactions, err := h.Models.Transactions.GetAll(ctx, params)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	out := make([]transactionResponse, 0, len(transactions))
	for i := range transactions {
		out = append(out, toTransactionResponse(&transactions[i]))
	}
	httpresponse.RenderWithMeta(rw, http.StatusOK, out, &httpresponse.Meta{Page: page, PageSize: pageLimit})
}
