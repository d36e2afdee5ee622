package httphandler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/opsplane/opsplane-backend/internal/cache"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
	"github.com/opsplane/opsplane-backend/internal/serve/httpresponse"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const dashboardCacheTTL = 5 * time.Minute

// DashboardHandler serves the financial summary. Results are cached per
// tenant and date range; the outbox invalidator clears the namespace whenever
// a financial event lands.
type DashboardHandler struct {
	Models *data.Models
	Cache  cache.Cache
}

type dashboardSummaryResponse struct {
	DateFrom   string            `json:"dateFrom"`
	DateTo     string            `json:"dateTo"`
	Totals     map[string]string `json:"totals"`
	NetRevenue string            `json:"netRevenue"`
}

// Summary aggregates the ledger by transaction type, converted to the
// tenant's base currency at each row's frozen exchange rate.
func (h DashboardHandler) Summary(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	now := time.Now().UTC()
	dateFrom := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	dateTo := now
	if from, err := parseDateParam(req, "date_from"); err != nil {
		httperror.BadRequest("date_from must be formatted as YYYY-MM-DD", err).Render(rw, req)
		return
	} else if from != nil {
		dateFrom = *from
	}
	if to, err := parseDateParam(req, "date_to"); err != nil {
		httperror.BadRequest("date_to must be formatted as YYYY-MM-DD", err).Render(rw, req)
		return
	} else if to != nil {
		dateTo = *to
	}

	cacheKey := fmt.Sprintf("summary:%s:%s", dateFrom.Format("2006-01-02"), dateTo.Format("2006-01-02"))
	var cached dashboardSummaryResponse
	if found, err := h.Cache.Get(ctx, cache.DashboardNamespace, cacheKey, &cached); err != nil {
		log.Ctx(ctx).WithError(err).Warnf("reading dashboard cache")
	} else if found {
		httpresponse.Render(rw, http.StatusOK, cached)
		return
	}

	sums, err := h.Models.Transactions.SumByTypeInBaseCurrency(ctx, dateFrom, dateTo)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	income := sums[data.TransactionTypeIncome]
	net := income.Decimal
	totals := make(map[string]string, len(sums))
	for txType, sum := range sums {
		totals[string(txType)] = sum.StringFixed(2)
		if txType != data.TransactionTypeIncome {
			net = net.Sub(sum.Decimal)
		}
	}

	resp := dashboardSummaryResponse{
		DateFrom:   dateFrom.Format("2006-01-02"),
		DateTo:     dateTo.Format("2006-01-02"),
		Totals:     totals,
		NetRevenue: net.StringFixed(2),
	}
	if err = h.Cache.Set(ctx, cache.DashboardNamespace, cacheKey, resp, dashboardCacheTTL); err != nil {
		log.Ctx(ctx).WithError(err).Warnf("writing dashboard cache")
	}
	httpresponse.Render(rw, http.StatusOK, resp)
}
