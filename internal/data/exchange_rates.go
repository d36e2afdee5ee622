package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
)

var ErrExchangeRateNotFound = errors.New("no exchange rate available for currency pair")

type ExchangeRate struct {
	ID           string    `db:"id"`
	TenantID     string    `db:"tenant_id"`
	FromCurrency string    `db:"from_currency"`
	ToCurrency   string    `db:"to_currency"`
	Rate         Rate      `db:"rate"`
	RateDate     time.Time `db:"rate_date"`
	CreatedAt    time.Time `db:"created_at"`
}

type ExchangeRateModel struct {
	dbConnectionPool db.DBConnectionPool
}

const exchangeRateColumns = `id, tenant_id, from_currency, to_currency, rate, rate_date, created_at`

func (m *ExchangeRateModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, fromCurrency, toCurrency string, rate Rate, rateDate time.Time) (*ExchangeRate, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if fromCurrency == "" || toCurrency == "" {
		return nil, fmt.Errorf("%w: currency pair", ErrMissingInput)
	}

	query := fmt.Sprintf(`
		INSERT INTO exchange_rates (tenant_id, from_currency, to_currency, rate, rate_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING %s
	`, exchangeRateColumns)

	var er ExchangeRate
	err = sqlExec.GetContext(ctx, &er, query, tenantID, fromCurrency, toCurrency, rate, rateDate)
	if err != nil {
		if IsUniqueViolation(err, "") {
			return nil, ErrRecordAlreadyExists
		}
		return nil, fmt.Errorf("inserting exchange rate %s/%s: %w", fromCurrency, toCurrency, err)
	}
	return &er, nil
}

// GetEffective returns the newest rate dated on or before asOf. Same-currency
// pairs short-circuit to 1 without touching the table.
func (m *ExchangeRateModel) GetEffective(ctx context.Context, fromCurrency, toCurrency string, asOf time.Time) (*ExchangeRate, error) {
	tenantID, err := requireRowTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	if fromCurrency == toCurrency {
		return &ExchangeRate{
			TenantID:     tenantID,
			FromCurrency: fromCurrency,
			ToCurrency:   toCurrency,
			Rate:         NewRate(oneDecimal),
			RateDate:     asOf,
		}, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM exchange_rates
		WHERE tenant_id = $1 AND from_currency = $2 AND to_currency = $3 AND rate_date <= $4
		ORDER BY rate_date DESC
		LIMIT 1
	`, exchangeRateColumns)

	var er ExchangeRate
	err = m.dbConnectionPool.GetContext(ctx, &er, query, tenantID, fromCurrency, toCurrency, asOf)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s as of %s", ErrExchangeRateNotFound, fromCurrency, toCurrency, asOf.Format("2006-01-02"))
		}
		return nil, fmt.Errorf("querying exchange rate %s/%s: %w", fromCurrency, toCurrency, err)
	}
	return &er, nil
}
