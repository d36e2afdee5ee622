package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
)

const rateCacheTTL = 10 * time.Minute

// RateResolver answers "what was the X/Y rate on date D" with a small
// in-process cache in front of the exchange_rates table. Rates for a given
// day are immutable once loaded, so a short TTL is only needed to pick up
// late backfills.
type RateResolver struct {
	models *data.Models
	cache  *ristretto.Cache
}

func NewRateResolver(models *data.Models) (*RateResolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating exchange rate cache: %w", err)
	}
	return &RateResolver{models: models, cache: cache}, nil
}

// Resolve returns the effective rate for the pair as of the given date,
// falling through to the most recent earlier rate.
func (r *RateResolver) Resolve(ctx context.Context, fromCurrency, toCurrency string, asOf time.Time) (data.Rate, error) {
	tenantID, err := tenantctx.Require(ctx)
	if err != nil {
		return data.Rate{}, err
	}

	key := fmt.Sprintf("%s:%s:%s:%s", tenantID, fromCurrency, toCurrency, asOf.Format("2006-01-02"))
	if cached, found := r.cache.Get(key); found {
		return cached.(data.Rate), nil
	}

	er, err := r.models.ExchangeRates.GetEffective(ctx, fromCurrency, toCurrency, asOf)
	if err != nil {
		return data.Rate{}, err
	}

	r.cache.SetWithTTL(key, er.Rate, 1, rateCacheTTL)
	return er.Rate, nil
}
