package auth

import (
	"context"
	"testing"
	"time"

	jwtgo "github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsplane/opsplane-backend/internal/data"
)

const testJWTSecret = "an-hs256-secret-with-enough-length!"

func newTestJWTManager(t *testing.T) *defaultJWTManager {
	t.Helper()
	m, err := newDefaultJWTManager(jwtManagerOptions{Secret: testJWTSecret})
	require.NoError(t, err)
	return m
}

func testUser() *data.User {
	return &data.User{
		ID:       "user-1",
		TenantID: "tenant-1",
		Email:    "ana@acme.co",
		Role:     data.UserRoleAdmin,
	}
}

func Test_newDefaultJWTManager_rejects_short_secrets(t *testing.T) {
	_, err := newDefaultJWTManager(jwtManagerOptions{Secret: "too-short"})
	assert.EqualError(t, err, "the JWT secret must have at least 32 characters")
}

func Test_JWTManager_access_token_round_trip(t *testing.T) {
	ctx := context.Background()
	m := newTestJWTManager(t)

	tokenString, err := m.GenerateAccessToken(ctx, testUser(), true)
	require.NoError(t, err)

	claims, err := m.ParseToken(ctx, tokenString)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, "ADMIN", claims.Role)
	assert.True(t, claims.MFAPassed)
	assert.False(t, claims.IsStepUp())
}

func Test_JWTManager_step_up_token(t *testing.T) {
	ctx := context.Background()
	m := newTestJWTManager(t)

	tokenString, err := m.GenerateStepUpToken(ctx, testUser())
	require.NoError(t, err)

	claims, err := m.ParseToken(ctx, tokenString)
	require.NoError(t, err)
	assert.True(t, claims.IsStepUp())
	assert.False(t, claims.MFAPassed)
	assert.WithinDuration(t, time.Now().Add(defaultStepUpTokenTTL), claims.ExpiresAt.Time, time.Minute)
}

func Test_JWTManager_rejects_tampered_and_foreign_tokens(t *testing.T) {
	ctx := context.Background()
	m := newTestJWTManager(t)

	tokenString, err := m.GenerateAccessToken(ctx, testUser(), true)
	require.NoError(t, err)

	_, err = m.ParseToken(ctx, tokenString+"x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// A token signed with a different secret is rejected.
	other, err := newDefaultJWTManager(jwtManagerOptions{Secret: "a-completely-different-hs256-secret!!"})
	require.NoError(t, err)
	foreign, err := other.GenerateAccessToken(ctx, testUser(), true)
	require.NoError(t, err)
	_, err = m.ParseToken(ctx, foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func Test_JWTManager_rejects_non_HS256_algorithms(t *testing.T) {
	ctx := context.Background()
	m := newTestJWTManager(t)

	c := &Claims{
		TenantID: "tenant-1",
		RegisteredClaims: jwtgo.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwtgo.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	// alg=none is rejected even with the library's explicit opt-in signature.
	noneToken, err := jwtgo.NewWithClaims(jwtgo.SigningMethodNone, c).SignedString(jwtgo.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.ParseToken(ctx, noneToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// HS512 is signed with the right secret but still refused.
	hs512Token, err := jwtgo.NewWithClaims(jwtgo.SigningMethodHS512, c).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	_, err = m.ParseToken(ctx, hs512Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func Test_JWTManager_rejects_expired_tokens(t *testing.T) {
	ctx := context.Background()
	m := newTestJWTManager(t)

	c := &Claims{
		TenantID: "tenant-1",
		RegisteredClaims: jwtgo.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwtgo.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	expired, err := jwtgo.NewWithClaims(jwtgo.SigningMethodHS256, c).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	_, err = m.ParseToken(ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
