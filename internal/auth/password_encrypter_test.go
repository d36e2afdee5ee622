package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func Test_Argon2idEncrypter_Encrypt(t *testing.T) {
	ctx := context.Background()
	encrypter := NewArgon2idEncrypter()

	_, err := encrypter.Encrypt(ctx, "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := encrypter.Encrypt(ctx, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=4$"))

	// Fresh salt every time.
	hash2, err := encrypter.Encrypt(ctx, "correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func Test_Argon2idEncrypter_Verify_argon2id(t *testing.T) {
	ctx := context.Background()
	encrypter := NewArgon2idEncrypter()

	hash, err := encrypter.Encrypt(ctx, "correct horse battery staple")
	require.NoError(t, err)

	result, err := encrypter.Verify(ctx, hash, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.UpgradedHash, "a modern hash needs no upgrade")

	result, err = encrypter.Verify(ctx, hash, "wrong password")
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func Test_Argon2idEncrypter_Verify_upgrades_legacy_bcrypt(t *testing.T) {
	ctx := context.Background()
	encrypter := NewArgon2idEncrypter()

	legacy, err := bcrypt.GenerateFromPassword([]byte("correct horse battery staple"), bcrypt.MinCost)
	require.NoError(t, err)

	result, err := encrypter.Verify(ctx, string(legacy), "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	require.True(t, strings.HasPrefix(result.UpgradedHash, "$argon2id$"))

	// The upgraded hash verifies the same password.
	upgraded, err := encrypter.Verify(ctx, result.UpgradedHash, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, upgraded.Valid)

	result, err = encrypter.Verify(ctx, string(legacy), "wrong password")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Empty(t, result.UpgradedHash)
}

func Test_Argon2idEncrypter_Verify_legacy_short_password_still_logs_in(t *testing.T) {
	ctx := context.Background()
	encrypter := NewArgon2idEncrypter()

	legacy, err := bcrypt.GenerateFromPassword([]byte("tiny"), bcrypt.MinCost)
	require.NoError(t, err)

	result, err := encrypter.Verify(ctx, string(legacy), "tiny")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.UpgradedHash, "too short to rehash under the current policy")
}

func Test_Argon2idEncrypter_Verify_unknown_hash_kind(t *testing.T) {
	_, err := NewArgon2idEncrypter().Verify(context.Background(), "plaintext-oops", "whatever")
	assert.ErrorIs(t, err, ErrUnknownHashKind)
}
