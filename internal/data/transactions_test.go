package data

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/opsplane/opsplane-backend/internal/utils"
)

func Test_Transaction_ValidateAmountSign(t *testing.T) {
	bookingID := utils.StringPtr("5c7f2c3e-5b1f-4f3a-9d3e-000000000001")

	testCases := []struct {
		name    string
		tx      Transaction
		wantErr bool
	}{
		{
			name: "positive amounts always pass",
			tx:   Transaction{Type: TransactionTypeExpense, Amount: mustMoney(t, "10")},
		},
		{
			name: "negative expense rejected",
			tx:      Transaction{Type: TransactionTypeExpense, Amount: mustMoney(t, "-10")},
			wantErr: true,
		},
		{
			name: "negative payroll rejected",
			tx:      Transaction{Type: TransactionTypePayroll, Amount: mustMoney(t, "-10")},
			wantErr: true,
		},
		{
			name: "negative income with booking passes",
			tx:   Transaction{Type: TransactionTypeIncome, Amount: mustMoney(t, "-10"), BookingID: bookingID},
		},
		{
			name: "negative income with refund category passes",
			tx:   Transaction{Type: TransactionTypeIncome, Amount: mustMoney(t, "-10"), Category: "Client Refund"},
		},
		{
			name: "negative income with reversal category passes",
			tx:   Transaction{Type: TransactionTypeIncome, Amount: mustMoney(t, "-10"), Category: "chargeback REVERSAL"},
		},
		{
			name: "negative income with unrelated category rejected",
			tx:      Transaction{Type: TransactionTypeIncome, Amount: mustMoney(t, "-10"), Category: "consulting"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tx.ValidateAmountSign()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransactionSign)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func mustMoney(t *testing.T, s string) Money {
	t.Helper()
	return NewMoney(decimal.RequireFromString(s))
}
