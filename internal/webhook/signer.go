// Package webhook delivers outbound events to tenant-registered endpoints and
// verifies inbound provider callbacks.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const (
	// SignatureHeader carries hex(hmac-sha256(timestamp + "." + body, secret)).
	SignatureHeader = "X-Signature"
	// TimestampHeader is the unix-seconds timestamp bound into the signature.
	TimestampHeader = "X-Timestamp"

	// maxTimestampSkew bounds replay of captured inbound payloads.
	maxTimestampSkew = 5 * time.Minute
)

// Sign computes the delivery signature. The timestamp is part of the signed
// content so a captured request cannot be replayed later with a fresh clock.
func Sign(secret, timestamp, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound callback in constant time and rejects
// stale timestamps.
func VerifySignature(secret, timestamp, body, signature string, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid webhook timestamp %q", timestamp)
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > maxTimestampSkew || age < -maxTimestampSkew {
		return fmt.Errorf("webhook timestamp outside the accepted window")
	}

	expected := Sign(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("webhook signature mismatch")
	}
	return nil
}
