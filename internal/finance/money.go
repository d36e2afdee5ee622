package finance

import (
	"github.com/shopspring/decimal"

	"github.com/opsplane/opsplane-backend/internal/data"
)

var hundred = decimal.NewFromInt(100)

func oneDecimal() decimal.Decimal {
	return decimal.NewFromInt(1)
}

func decimalZero() decimal.Decimal {
	return decimal.Zero
}

// shareAmount computes total * share% rounded half-up to cents. Rounding per
// assignee means the distributed sum can undershoot the pool by a few cents;
// the remainder stays with the company, never double-paid.
func shareAmount(total data.Money, share data.Percent) data.Money {
	return data.NewMoney(total.Mul(share.Decimal).Div(hundred).Round(2))
}
