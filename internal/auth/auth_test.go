package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsplane/opsplane-backend/internal/data"
)

func Test_NewAuthenticator_validation(t *testing.T) {
	_, err := NewAuthenticator(AuthenticatorOptions{})
	assert.EqualError(t, err, "models are required for the authenticator")

	_, err = NewAuthenticator(AuthenticatorOptions{Models: &data.Models{}})
	assert.EqualError(t, err, "an MFA secret key is required for the authenticator")

	_, err = NewAuthenticator(AuthenticatorOptions{
		Models:       &data.Models{},
		MFASecretKey: "mfa-key",
		JWTSecret:    "short",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating JWT manager")

	authenticator, err := NewAuthenticator(AuthenticatorOptions{
		Models:       &data.Models{},
		MFASecretKey: "mfa-key",
		JWTSecret:    testJWTSecret,
	})
	require.NoError(t, err)
	assert.NotNil(t, authenticator.JWTManager())
}

func Test_HashRefreshToken(t *testing.T) {
	hash := HashRefreshToken("some-opaque-token")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashRefreshToken("some-opaque-token"))
	assert.NotEqual(t, hash, HashRefreshToken("some-other-token"))
}

func Test_newOpaqueToken_shape(t *testing.T) {
	token, err := newOpaqueToken()
	require.NoError(t, err)
	assert.Len(t, token, 43) // 32 bytes base64url, no padding

	other, err := newOpaqueToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func Test_GenerateRecoveryCodes_and_ConsumeRecoveryCode(t *testing.T) {
	plaintexts, hashes, err := GenerateRecoveryCodes()
	require.NoError(t, err)
	require.Len(t, plaintexts, recoveryCodeCount)
	require.Len(t, hashes, recoveryCodeCount)

	remaining, matched := ConsumeRecoveryCode(hashes, plaintexts[3])
	assert.True(t, matched)
	assert.Len(t, remaining, recoveryCodeCount-1)

	// The consumed code no longer matches against the remaining hashes.
	_, matched = ConsumeRecoveryCode(remaining, plaintexts[3])
	assert.False(t, matched)

	_, matched = ConsumeRecoveryCode(hashes, "not-a-code")
	assert.False(t, matched)
}

func Test_SecretBox_round_trip(t *testing.T) {
	box, err := NewSecretBox("a passphrase")
	require.NoError(t, err)

	sealed, err := box.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "JBSWY3DPEHPK3PXP")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", opened)

	// A box with a different passphrase cannot open it.
	otherBox, err := NewSecretBox("another passphrase")
	require.NoError(t, err)
	_, err = otherBox.Open(sealed)
	assert.Error(t, err)

	_, err = box.Open("@@not-base64@@")
	assert.Error(t, err)

	_, err = NewSecretBox("")
	assert.EqualError(t, err, "a passphrase is required for the secret box")
}

func Test_Claims_IsStepUp(t *testing.T) {
	assert.True(t, (&Claims{Scope: ScopeMFAPending}).IsStepUp())
	assert.False(t, (&Claims{}).IsStepUp())
}

func Test_User_lockout_window(t *testing.T) {
	until := time.Now().Add(10 * time.Minute)
	locked := &data.User{LockedUntil: &until}
	assert.True(t, locked.IsLocked(time.Now()))
	assert.False(t, locked.IsLocked(until.Add(time.Second)))
}
