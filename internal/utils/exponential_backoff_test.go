package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CalculateExponentialBackoffDuration(t *testing.T) {
	testCases := []struct {
		retry        int
		wantDuration time.Duration
		wantErr      error
	}{
		{retry: 0, wantDuration: 1},
		{retry: 1, wantDuration: 2},
		{retry: 3, wantDuration: 8},
		{retry: 8, wantDuration: 256},
		{retry: -1, wantErr: ErrInvalidBackoffRetryValue},
		{retry: 33, wantErr: ErrMaxRetryValueOverflow},
	}

	for _, tc := range testCases {
		got, err := CalculateExponentialBackoffDuration(tc.retry)
		if tc.wantErr != nil {
			assert.ErrorIs(t, err, tc.wantErr)
		} else {
			require.NoError(t, err)
			assert.Equal(t, tc.wantDuration, got)
		}
	}
}

func Test_JitteredBackoff_within_bounds(t *testing.T) {
	base := time.Second
	capDuration := 10 * time.Minute

	for attempt := 0; attempt <= 12; attempt++ {
		expected := base << attempt
		if expected > capDuration {
			expected = capDuration
		}

		for i := 0; i < 50; i++ {
			got := JitteredBackoff(base, attempt, capDuration)
			assert.GreaterOrEqual(t, got, time.Duration(float64(expected)*0.5), "attempt %d", attempt)
			assert.Less(t, got, time.Duration(float64(expected)*1.5)+time.Millisecond, "attempt %d", attempt)
		}
	}
}

func Test_JitteredBackoff_huge_attempt_is_capped(t *testing.T) {
	got := JitteredBackoff(time.Second, 64, 10*time.Minute)
	assert.LessOrEqual(t, got, 15*time.Minute)
	assert.Greater(t, got, time.Duration(0))
}
