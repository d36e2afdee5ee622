package finance

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/jobqueue"
)

func Test_NewService_validates_options(t *testing.T) {
	_, err := NewService(ServiceOptions{})
	assert.EqualError(t, err, "models are required for the finance service")

	_, err = NewService(ServiceOptions{Models: &data.Models{}})
	assert.EqualError(t, err, "a rate resolver is required for the finance service")

	resolver, err := NewRateResolver(&data.Models{})
	require.NoError(t, err)

	_, err = NewService(ServiceOptions{Models: &data.Models{}, RateResolver: resolver})
	assert.EqualError(t, err, "a job store is required for the finance service")

	store := &jobqueue.Store{}
	svc, err := NewService(ServiceOptions{Models: &data.Models{}, RateResolver: resolver, JobStore: store})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func Test_shareAmount(t *testing.T) {
	total := data.NewMoney(decimal.RequireFromString("1000"))

	testCases := []struct {
		share string
		want  string
	}{
		{share: "10", want: "100"},
		{share: "33.33", want: "333.3"},
		{share: "0", want: "0"},
		{share: "100", want: "1000"},
		// 1000 * 0.155% = 1.55
		{share: "0.155", want: "1.55"},
	}
	for _, tc := range testCases {
		t.Run(tc.share, func(t *testing.T) {
			share := data.NewPercent(decimal.RequireFromString(tc.share))
			assert.Equal(t, tc.want, shareAmount(total, share).String())
		})
	}
}

func Test_shareAmount_rounds_to_cents(t *testing.T) {
	total := data.NewMoney(decimal.RequireFromString("100"))
	share := data.NewPercent(decimal.RequireFromString("33.333"))

	// 33.333 rounds to 33.33, never up past the pool share.
	assert.Equal(t, "33.33", shareAmount(total, share).String())
}

func Test_PayrollIdempotencyKey(t *testing.T) {
	month := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)

	key := PayrollIdempotencyKey("t-1", "u-9", month)
	assert.Equal(t, "payroll:t-1:u-9:2026-07", key)

	// Stable within the month regardless of day.
	assert.Equal(t, key, PayrollIdempotencyKey("t-1", "u-9", month.AddDate(0, 0, 10)))
	assert.NotEqual(t, key, PayrollIdempotencyKey("t-1", "u-9", month.AddDate(0, 1, 0)))
}

func Test_DryRunGateway(t *testing.T) {
	ref, err := DryRunGateway{}.Submit(context.Background(), &data.Payout{ID: "p-1"})
	require.NoError(t, err)
	assert.Equal(t, "dryrun-p-1", ref)
}

func Test_payrollAmount(t *testing.T) {
	testCases := []struct {
		name    string
		salary  string
		payable string
		want    string
	}{
		{name: "🟢 salary plus accrued commission", salary: "2000", payable: "150", want: "2150"},
		{name: "🟢 salary only", salary: "2000", payable: "0", want: "2000"},
		{name: "🟢 commission only", salary: "0", payable: "150", want: "150"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			salary := data.NewMoney(decimal.RequireFromString(tc.salary))
			payable := data.NewMoney(decimal.RequireFromString(tc.payable))

			got := payrollAmount(salary, payable)
			assert.Equal(t, tc.want, got.String())
			assert.True(t, got.IsPositive())
		})
	}

	t.Run("🟢 nothing due means no payout", func(t *testing.T) {
		got := payrollAmount(data.NewMoney(decimal.Zero), data.NewMoney(decimal.Zero))
		assert.False(t, got.IsPositive())
	})
}

func Test_recordBatchOutcome(t *testing.T) {
	result := &PayrollRunResult{}

	recordBatchOutcome(result, 80, 20, 100, nil)
	assert.Equal(t, 80, result.Created)
	assert.Equal(t, 20, result.Skipped)
	assert.Equal(t, 0, result.Failed)

	// A rolled back batch contributes nothing but its failure count, and the
	// totals from earlier batches survive.
	recordBatchOutcome(result, 99, 1, 100, assert.AnError)
	assert.Equal(t, 80, result.Created)
	assert.Equal(t, 20, result.Skipped)
	assert.Equal(t, 100, result.Failed)

	recordBatchOutcome(result, 5, 0, 5, nil)
	assert.Equal(t, 85, result.Created)
	assert.Equal(t, 100, result.Failed)
}

func Test_taskCompletedPayload_per_assignee(t *testing.T) {
	bookingID := "b-1"
	task := &data.Task{ID: "task-1", BookingID: &bookingID,
		CommissionTotal: data.NewMoney(decimal.RequireFromString("1000"))}

	first := taskCompletedPayload(task, "u-1", shareAmount(task.CommissionTotal, data.NewPercent(decimal.RequireFromString("60"))))
	second := taskCompletedPayload(task, "u-2", shareAmount(task.CommissionTotal, data.NewPercent(decimal.RequireFromString("40"))))

	assert.Equal(t, "u-1", first["userId"])
	assert.Equal(t, "600", first["share"])
	assert.Equal(t, "u-2", second["userId"])
	assert.Equal(t, "400", second["share"])
	assert.Equal(t, "task-1", first["taskId"])
	assert.Equal(t, &bookingID, first["bookingId"])
}
