package webhook

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Sign_is_deterministic(t *testing.T) {
	sig1 := Sign("secret", "1700000000", `{"event":"payout.completed"}`)
	sig2 := Sign("secret", "1700000000", `{"event":"payout.completed"}`)
	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 64)

	// Any signed component changes the signature.
	assert.NotEqual(t, sig1, Sign("other-secret", "1700000000", `{"event":"payout.completed"}`))
	assert.NotEqual(t, sig1, Sign("secret", "1700000001", `{"event":"payout.completed"}`))
	assert.NotEqual(t, sig1, Sign("secret", "1700000000", `{"event":"payout.failed"}`))
}

func Test_VerifySignature(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	body := `{"reference":"prov-123"}`
	timestamp := strconv.FormatInt(now.Unix(), 10)
	signature := Sign("secret", timestamp, body)

	testCases := []struct {
		name            string
		secret          string
		timestamp       string
		body            string
		signature       string
		wantErrContains string
	}{
		{
			name:      "🎉 valid signature",
			secret:    "secret",
			timestamp: timestamp,
			body:      body,
			signature: signature,
		},
		{
			name:            "tampered body is rejected",
			secret:          "secret",
			timestamp:       timestamp,
			body:            `{"reference":"prov-999"}`,
			signature:       signature,
			wantErrContains: "signature mismatch",
		},
		{
			name:            "wrong secret is rejected",
			secret:          "other-secret",
			timestamp:       timestamp,
			body:            body,
			signature:       signature,
			wantErrContains: "signature mismatch",
		},
		{
			name:            "non-numeric timestamp is rejected",
			secret:          "secret",
			timestamp:       "not-a-unix-time",
			body:            body,
			signature:       signature,
			wantErrContains: "invalid webhook timestamp",
		},
		{
			name:            "stale timestamp is rejected",
			secret:          "secret",
			timestamp:       strconv.FormatInt(now.Add(-6*time.Minute).Unix(), 10),
			body:            body,
			signature:       signature,
			wantErrContains: "outside the accepted window",
		},
		{
			name:            "future timestamp is rejected",
			secret:          "secret",
			timestamp:       strconv.FormatInt(now.Add(6*time.Minute).Unix(), 10),
			body:            body,
			signature:       signature,
			wantErrContains: "outside the accepted window",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Stale/future cases carry a signature that no longer matches the
			// timestamp, but the window check fires first.
			sig := tc.signature
			if tc.wantErrContains == "outside the accepted window" {
				sig = Sign(tc.secret, tc.timestamp, tc.body)
			}
			err := VerifySignature(tc.secret, tc.timestamp, tc.body, sig, now)
			if tc.wantErrContains == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tc.wantErrContains)
			}
		})
	}
}

func Test_VerifySignature_accepts_skew_within_window(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	body := `{}`

	for _, offset := range []time.Duration{-4 * time.Minute, 4 * time.Minute} {
		timestamp := strconv.FormatInt(now.Add(offset).Unix(), 10)
		err := VerifySignature("secret", timestamp, body, Sign("secret", timestamp, body), now)
		assert.NoError(t, err)
	}
}
