package utils

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// MaxRetryValue caps the exponent to avoid overflow.
const MaxRetryValue = 32

var (
	ErrInvalidBackoffRetryValue = errors.New("invalid backoff retry value")
	ErrMaxRetryValueOverflow    = errors.New("max retry value overflow")
)

// CalculateExponentialBackoffDuration returns exponential value based on the retries in time.Duration.
//
//	CalculateExponentialBackoffDuration(1) -> time.Duration(2)
//	CalculateExponentialBackoffDuration(2) -> time.Duration(4)
//	CalculateExponentialBackoffDuration(3) -> time.Duration(8)
func CalculateExponentialBackoffDuration(retry int) (time.Duration, error) {
	if retry < 0 {
		return 0, ErrInvalidBackoffRetryValue
	}

	if retry > MaxRetryValue {
		return 0, ErrMaxRetryValueOverflow
	}

	return time.Duration(1 << retry), nil
}

// ExponentialBackoffInSeconds returns the duration in seconds based on the number of retries.
func ExponentialBackoffInSeconds(retry int) (time.Duration, error) {
	backoff, err := CalculateExponentialBackoffDuration(retry)
	if err != nil {
		return 0, fmt.Errorf("calculating exponential backoff duration: %w", err)
	}

	return time.Second * backoff, nil
}

// JitteredBackoff returns min(base*2^attempt, cap) scaled by a random factor
// in [0.5, 1.5). Delivery pipelines (outbox, webhooks) use it so retries from
// concurrent failures do not synchronize.
func JitteredBackoff(base time.Duration, attempt int, capDuration time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > MaxRetryValue {
		attempt = MaxRetryValue
	}

	backoff := base << attempt
	if backoff > capDuration || backoff <= 0 {
		backoff = capDuration
	}

	factor := 0.5 + rand.Float64()
	return time.Duration(float64(backoff) * factor)
}
