package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwtgo "github.com/golang-jwt/jwt/v4"

	"github.com/opsplane/opsplane-backend/internal/data"
)

const (
	defaultAccessTokenTTL = 15 * time.Minute
	defaultStepUpTokenTTL = 5 * time.Minute

	// ScopeMFAPending marks a step-up token: the password was accepted but the
	// second factor has not been presented yet.
	ScopeMFAPending = "mfa_pending"

	minJWTSecretLength = 32
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the access-token payload. Tenant identity is carried here and
// nowhere else; handlers never read it from the request body or query.
type Claims struct {
	TenantID  string `json:"tenant_id"`
	Role      string `json:"role"`
	MFAPassed bool   `json:"mfa_passed"`
	Scope     string `json:"scope,omitempty"`
	jwtgo.RegisteredClaims
}

// IsStepUp reports whether this token only authorizes MFA verification.
func (c *Claims) IsStepUp() bool {
	return c.Scope == ScopeMFAPending
}

type JWTManager interface {
	GenerateAccessToken(ctx context.Context, user *data.User, mfaPassed bool) (string, error)
	GenerateStepUpToken(ctx context.Context, user *data.User) (string, error)
	ParseToken(ctx context.Context, tokenString string) (*Claims, error)
}

// NewJWTManager builds the HS256 manager used by the HTTP middleware.
func NewJWTManager(secret string, accessTokenTTL, stepUpTokenTTL time.Duration) (JWTManager, error) {
	return newDefaultJWTManager(jwtManagerOptions{
		Secret:         secret,
		AccessTokenTTL: accessTokenTTL,
		StepUpTokenTTL: stepUpTokenTTL,
	})
}

type jwtManagerOptions struct {
	Secret         string
	AccessTokenTTL time.Duration
	StepUpTokenTTL time.Duration
}

// defaultJWTManager signs and verifies with a single HMAC secret. Only HS256
// is accepted on the verify path.
type defaultJWTManager struct {
	secret         []byte
	accessTokenTTL time.Duration
	stepUpTokenTTL time.Duration
}

var _ JWTManager = (*defaultJWTManager)(nil)

func newDefaultJWTManager(opts jwtManagerOptions) (*defaultJWTManager, error) {
	if len(opts.Secret) < minJWTSecretLength {
		return nil, fmt.Errorf("the JWT secret must have at least %d characters", minJWTSecretLength)
	}
	m := &defaultJWTManager{
		secret:         []byte(opts.Secret),
		accessTokenTTL: opts.AccessTokenTTL,
		stepUpTokenTTL: opts.StepUpTokenTTL,
	}
	if m.accessTokenTTL <= 0 {
		m.accessTokenTTL = defaultAccessTokenTTL
	}
	if m.stepUpTokenTTL <= 0 {
		m.stepUpTokenTTL = defaultStepUpTokenTTL
	}
	return m, nil
}

func (m *defaultJWTManager) GenerateAccessToken(ctx context.Context, user *data.User, mfaPassed bool) (string, error) {
	return m.generate(user, mfaPassed, "", m.accessTokenTTL)
}

func (m *defaultJWTManager) GenerateStepUpToken(ctx context.Context, user *data.User) (string, error) {
	return m.generate(user, false, ScopeMFAPending, m.stepUpTokenTTL)
}

func (m *defaultJWTManager) generate(user *data.User, mfaPassed bool, scope string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	c := &Claims{
		TenantID:  user.TenantID,
		Role:      string(user.Role),
		MFAPassed: mfaPassed,
		Scope:     scope,
		RegisteredClaims: jwtgo.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtgo.NewNumericDate(now),
			ExpiresAt: jwtgo.NewNumericDate(now.Add(ttl)),
		},
	}

	tokenString, err := jwtgo.NewWithClaims(jwtgo.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return tokenString, nil
}

func (m *defaultJWTManager) ParseToken(ctx context.Context, tokenString string) (*Claims, error) {
	c := &Claims{}
	token, err := jwtgo.ParseWithClaims(tokenString, c, func(t *jwtgo.Token) (interface{}, error) {
		return m.secret, nil
	}, jwtgo.WithValidMethods([]string{jwtgo.SigningMethodHS256.Alg()}))
	if err != nil {
		var vErr *jwtgo.ValidationError
		if errors.As(err, &vErr) && vErr.Errors == jwtgo.ValidationErrorUnverifiable {
			return nil, fmt.Errorf("invalid key: %w", err)
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return c, nil
}
