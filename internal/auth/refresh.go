package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/data"
)

const (
	defaultRefreshTokenTTL = 30 * 24 * time.Hour

	// refreshTokenBytes yields a 43-character base64url token.
	refreshTokenBytes = 32
)

var ErrRefreshTokenInvalid = errors.New("refresh token is invalid or expired")

// RefreshTokenService issues and rotates opaque refresh tokens. Only the
// SHA-256 of a token is stored, so a database leak does not leak usable
// tokens.
type RefreshTokenService struct {
	models *data.Models
	ttl    time.Duration
}

func NewRefreshTokenService(models *data.Models, ttl time.Duration) (*RefreshTokenService, error) {
	if models == nil {
		return nil, errors.New("models are required for the refresh token service")
	}
	if ttl <= 0 {
		ttl = defaultRefreshTokenTTL
	}
	return &RefreshTokenService{models: models, ttl: ttl}, nil
}

// HashRefreshToken is the storage form of an opaque token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newOpaqueToken() (string, error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Issue mints a new refresh token for the user and returns the plaintext.
func (s *RefreshTokenService) Issue(ctx context.Context, sqlExec db.SQLExecuter, userID string) (string, error) {
	token, err := newOpaqueToken()
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().UTC().Add(s.ttl)
	if _, err = s.models.RefreshTokens.Insert(ctx, sqlExec, HashRefreshToken(token), userID, expiresAt); err != nil {
		return "", fmt.Errorf("storing refresh token: %w", err)
	}
	return token, nil
}

// Rotate exchanges a live token for a fresh one, revoking the old token in the
// same transaction. A replayed token fails the GetActive lookup.
func (s *RefreshTokenService) Rotate(ctx context.Context, token string) (newToken, userID string, err error) {
	type rotation struct {
		token  string
		userID string
	}

	result, err := db.RunInTransactionWithResult(ctx, s.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) (rotation, error) {
		stored, txErr := s.models.RefreshTokens.GetActive(ctx, dbTx, HashRefreshToken(token))
		if errors.Is(txErr, data.ErrRecordNotFound) {
			return rotation{}, ErrRefreshTokenInvalid
		}
		if txErr != nil {
			return rotation{}, fmt.Errorf("loading refresh token: %w", txErr)
		}

		if txErr = s.models.RefreshTokens.Revoke(ctx, dbTx, stored.TokenHash); txErr != nil {
			return rotation{}, fmt.Errorf("revoking rotated refresh token: %w", txErr)
		}

		fresh, txErr := s.issueTx(ctx, dbTx, stored.UserID)
		if txErr != nil {
			return rotation{}, txErr
		}
		return rotation{token: fresh, userID: stored.UserID}, nil
	})
	if err != nil {
		return "", "", err
	}
	return result.token, result.userID, nil
}

func (s *RefreshTokenService) issueTx(ctx context.Context, dbTx db.DBTransaction, userID string) (string, error) {
	token, err := newOpaqueToken()
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().UTC().Add(s.ttl)
	if _, err = s.models.RefreshTokens.Insert(ctx, dbTx, HashRefreshToken(token), userID, expiresAt); err != nil {
		return "", fmt.Errorf("storing refresh token: %w", err)
	}
	return token, nil
}

// Revoke invalidates one token; a miss is not an error.
func (s *RefreshTokenService) Revoke(ctx context.Context, token string) error {
	err := s.models.RefreshTokens.Revoke(ctx, s.models.DBConnectionPool, HashRefreshToken(token))
	if err != nil && !errors.Is(err, data.ErrRecordNotFound) {
		return err
	}
	return nil
}

// RevokeAllForUser logs the user out everywhere.
func (s *RefreshTokenService) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	return s.models.RefreshTokens.RevokeAllForUser(ctx, s.models.DBConnectionPool, userID)
}
