package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	totpPeriod = 30 * time.Second
	totpDigits = 6
	// totpSkewSteps tolerates one step of clock drift in either direction.
	totpSkewSteps = 1

	totpSecretBytes = 20
)

var base32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateTOTPSecret returns a fresh base32-encoded shared secret.
func GenerateTOTPSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating TOTP secret: %w", err)
	}
	return base32NoPadding.EncodeToString(raw), nil
}

// TOTPProvisioningURI builds the otpauth:// URI that authenticator apps scan.
func TOTPProvisioningURI(secret, issuer, accountName string) string {
	label := url.PathEscape(issuer + ":" + accountName)
	query := url.Values{}
	query.Set("secret", secret)
	query.Set("issuer", issuer)
	query.Set("algorithm", "SHA1")
	query.Set("digits", fmt.Sprintf("%d", totpDigits))
	query.Set("period", fmt.Sprintf("%.0f", totpPeriod.Seconds()))
	return fmt.Sprintf("otpauth://totp/%s?%s", label, query.Encode())
}

// ValidateTOTPCode checks a 6-digit code against the secret at the given
// instant, accepting the adjacent time steps.
func ValidateTOTPCode(secret, code string, now time.Time) (bool, error) {
	key, err := base32NoPadding.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return false, fmt.Errorf("decoding TOTP secret: %w", err)
	}
	code = strings.TrimSpace(code)
	if len(code) != totpDigits {
		return false, nil
	}

	counter := uint64(now.Unix()) / uint64(totpPeriod.Seconds())
	for offset := -totpSkewSteps; offset <= totpSkewSteps; offset++ {
		candidate := totpCode(key, counter+uint64(int64(offset)))
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// totpCode implements RFC 4226 dynamic truncation over an HMAC-SHA1 of the
// big-endian counter.
func totpCode(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", truncated%1_000_000)
}
