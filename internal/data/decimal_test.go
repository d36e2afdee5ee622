package data

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Money_Scan(t *testing.T) {
	testCases := []struct {
		name    string
		src     any
		want    string
		wantErr string
	}{
		{name: "string", src: "1234.56", want: "1234.56"},
		{name: "bytes", src: []byte("-10.00"), want: "-10"},
		{name: "int64", src: int64(42), want: "42"},
		{name: "nil is zero", src: nil, want: "0"},
		{name: "upper bound ok", src: "1000000000000", want: "1000000000000"},
		{name: "over upper bound", src: "1000000000000.01", wantErr: "out of bounds"},
		{name: "under lower bound", src: "-1000000000000.01", wantErr: "out of bounds"},
		{name: "NaN rejected", src: "NaN", wantErr: "parsing money"},
		{name: "Inf rejected", src: "Infinity", wantErr: "parsing money"},
		{name: "float64 rejected", src: float64(1.23), wantErr: "refusing to scan"},
		{name: "garbage rejected", src: "12,34", wantErr: "parsing money"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var m Money
			err := m.Scan(tc.src)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.want, m.String())
			}
		})
	}
}

func Test_Money_Value_normalizes_to_two_decimal_places(t *testing.T) {
	m := NewMoney(decimal.RequireFromString("10.5"))
	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, "10.50", v)

	m = NewMoney(decimal.RequireFromString("10.555"))
	v, err = m.Value()
	require.NoError(t, err)
	assert.Equal(t, "10.56", v)
}

func Test_Money_Value_rejects_out_of_bounds(t *testing.T) {
	m := NewMoney(decimal.RequireFromString("1000000000001"))
	_, err := m.Value()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of bounds")
}

func Test_Percent_bounds(t *testing.T) {
	var p Percent
	require.NoError(t, p.Scan("50.00"))
	assert.Equal(t, "50", p.String())

	require.Error(t, p.Scan("1000.01"))
	require.Error(t, p.Scan("-1000.01"))
	require.NoError(t, p.Scan("-1000"))
}

func Test_Rate_bounds_and_precision(t *testing.T) {
	var r Rate
	require.NoError(t, r.Scan("1.234567"))

	v, err := r.Value()
	require.NoError(t, err)
	assert.Equal(t, "1.234567", v)

	require.Error(t, r.Scan("-0.000001"), "rates are non-negative")
	require.Error(t, r.Scan("1000000.000001"))
}
