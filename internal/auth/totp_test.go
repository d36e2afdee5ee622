package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rfc6238Secret is the ASCII secret "12345678901234567890" from the RFC test
// vectors, base32-encoded.
const rfc6238Secret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func Test_ValidateTOTPCode_rfc6238_vectors(t *testing.T) {
	testCases := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}

	for _, tc := range testCases {
		matched, err := ValidateTOTPCode(rfc6238Secret, tc.code, time.Unix(tc.unix, 0))
		require.NoError(t, err)
		assert.True(t, matched, "code %s at t=%d", tc.code, tc.unix)
	}
}

func Test_ValidateTOTPCode_accepts_adjacent_steps(t *testing.T) {
	// The t=59 code belongs to the first step; it is still accepted one step
	// later, but not two.
	matched, err := ValidateTOTPCode(rfc6238Secret, "287082", time.Unix(89, 0))
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = ValidateTOTPCode(rfc6238Secret, "287082", time.Unix(119, 0))
	require.NoError(t, err)
	assert.False(t, matched)
}

func Test_ValidateTOTPCode_rejects_bad_input(t *testing.T) {
	matched, err := ValidateTOTPCode(rfc6238Secret, "000000", time.Unix(59, 0))
	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = ValidateTOTPCode(rfc6238Secret, "28708", time.Unix(59, 0))
	require.NoError(t, err)
	assert.False(t, matched, "wrong length never matches")

	_, err = ValidateTOTPCode("not!base32", "287082", time.Unix(59, 0))
	assert.Error(t, err)
}

func Test_GenerateTOTPSecret(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	require.NoError(t, err)
	assert.Len(t, secret, 32) // 20 bytes, base32 without padding
	assert.NotContains(t, secret, "=")

	other, err := GenerateTOTPSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func Test_TOTPProvisioningURI(t *testing.T) {
	uri := TOTPProvisioningURI("ABC234", "OpsPlane", "ana@acme.co")
	assert.Contains(t, uri, "otpauth://totp/OpsPlane:ana@acme.co?")
	assert.Contains(t, uri, "secret=ABC234")
	assert.Contains(t, uri, "issuer=OpsPlane")
	assert.Contains(t, uri, "period=30")
	assert.Contains(t, uri, "digits=6")
}
