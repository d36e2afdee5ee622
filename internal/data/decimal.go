package data

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Monetary columns are numeric(12,2), percentages numeric(5,2) and exchange
// rates numeric(12,6). The database speaks strings; these transformers parse,
// bound-check and reject anything non-finite on both directions so native
// floating point never touches money.

var oneDecimal = decimal.NewFromInt(1)

var (
	moneyLowerBound   = decimal.RequireFromString("-1000000000000")
	moneyUpperBound   = decimal.RequireFromString("1000000000000")
	percentLowerBound = decimal.RequireFromString("-1000")
	percentUpperBound = decimal.RequireFromString("1000")
	rateLowerBound    = decimal.Zero
	rateUpperBound    = decimal.RequireFromString("1000000")
)

// Money is a numeric(12,2) column bounded to [-1e12, 1e12].
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

func MoneyFromString(s string) (Money, error) {
	d, err := parseBoundedDecimal(s, moneyLowerBound, moneyUpperBound, "money")
	if err != nil {
		return Money{}, err
	}
	return Money{Decimal: d}, nil
}

func (m *Money) Scan(src any) error {
	d, err := scanBoundedDecimal(src, moneyLowerBound, moneyUpperBound, "money")
	if err != nil {
		return err
	}
	m.Decimal = d
	return nil
}

func (m Money) Value() (driver.Value, error) {
	if err := checkBounds(m.Decimal, moneyLowerBound, moneyUpperBound, "money"); err != nil {
		return nil, err
	}
	return m.StringFixed(2), nil
}

// Percent is a numeric(5,2) column bounded to [-1000, 1000].
type Percent struct {
	decimal.Decimal
}

func NewPercent(d decimal.Decimal) Percent {
	return Percent{Decimal: d}
}

func (p *Percent) Scan(src any) error {
	d, err := scanBoundedDecimal(src, percentLowerBound, percentUpperBound, "percent")
	if err != nil {
		return err
	}
	p.Decimal = d
	return nil
}

func (p Percent) Value() (driver.Value, error) {
	if err := checkBounds(p.Decimal, percentLowerBound, percentUpperBound, "percent"); err != nil {
		return nil, err
	}
	return p.StringFixed(2), nil
}

// Rate is a numeric(12,6) exchange-rate column bounded to [0, 1e6].
type Rate struct {
	decimal.Decimal
}

func NewRate(d decimal.Decimal) Rate {
	return Rate{Decimal: d}
}

func (r *Rate) Scan(src any) error {
	d, err := scanBoundedDecimal(src, rateLowerBound, rateUpperBound, "rate")
	if err != nil {
		return err
	}
	r.Decimal = d
	return nil
}

func (r Rate) Value() (driver.Value, error) {
	if err := checkBounds(r.Decimal, rateLowerBound, rateUpperBound, "rate"); err != nil {
		return nil, err
	}
	return r.StringFixed(6), nil
}

func scanBoundedDecimal(src any, lower, upper decimal.Decimal, kind string) (decimal.Decimal, error) {
	var raw string
	switch v := src.(type) {
	case nil:
		return decimal.Zero, nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		// lib/pq delivers numeric as string; a float here means a schema drift.
		return decimal.Zero, fmt.Errorf("refusing to scan %s column from float64", kind)
	default:
		return decimal.Zero, fmt.Errorf("cannot scan %T into %s column", src, kind)
	}

	return parseBoundedDecimal(raw, lower, upper, kind)
}

func parseBoundedDecimal(raw string, lower, upper decimal.Decimal, kind string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s value %q: %w", kind, raw, err)
	}
	if err := checkBounds(d, lower, upper, kind); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func checkBounds(d, lower, upper decimal.Decimal, kind string) error {
	if d.LessThan(lower) || d.GreaterThan(upper) {
		return fmt.Errorf("%s value %s out of bounds [%s, %s]", kind, d, lower, upper)
	}
	return nil
}
