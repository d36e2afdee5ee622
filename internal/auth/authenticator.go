package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsplane/opsplane-backend/internal/audit"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const (
	maxFailedLoginAttempts = 5
	loginLockoutDuration   = 15 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrMFACodeInvalid     = errors.New("MFA code is invalid")
	ErrMFANotEnabled      = errors.New("MFA is not enabled for this user")
	ErrStepUpRequired     = errors.New("a step-up token is required")
)

// LoginResult carries either a completed session or a step-up challenge,
// never both.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	RequiresMFA  bool
	StepUpToken  string
}

// MFAEnrollment is returned while MFA setup is pending confirmation; nothing
// is persisted until the user proves possession of the secret.
type MFAEnrollment struct {
	Secret          string
	ProvisioningURI string
}

type AuthenticatorOptions struct {
	Models            *data.Models
	PasswordEncrypter PasswordEncrypter
	JWTSecret         string
	AccessTokenTTL    time.Duration
	StepUpTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	MFASecretKey      string
	AuditService      audit.ServiceInterface
	TOTPIssuer        string
}

// Authenticator is the credential and session front door: password login,
// MFA step-up, refresh rotation and MFA lifecycle.
type Authenticator struct {
	models        *data.Models
	encrypter     PasswordEncrypter
	jwtManager    JWTManager
	refreshTokens *RefreshTokenService
	secretBox     *SecretBox
	auditService  audit.ServiceInterface
	totpIssuer    string
}

func NewAuthenticator(opts AuthenticatorOptions) (*Authenticator, error) {
	if opts.Models == nil {
		return nil, errors.New("models are required for the authenticator")
	}
	if opts.MFASecretKey == "" {
		return nil, errors.New("an MFA secret key is required for the authenticator")
	}

	jwtManager, err := newDefaultJWTManager(jwtManagerOptions{
		Secret:         opts.JWTSecret,
		AccessTokenTTL: opts.AccessTokenTTL,
		StepUpTokenTTL: opts.StepUpTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating JWT manager: %w", err)
	}

	refreshTokens, err := NewRefreshTokenService(opts.Models, opts.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating refresh token service: %w", err)
	}

	secretBox, err := NewSecretBox(opts.MFASecretKey)
	if err != nil {
		return nil, fmt.Errorf("creating MFA secret box: %w", err)
	}

	encrypter := opts.PasswordEncrypter
	if encrypter == nil {
		encrypter = NewArgon2idEncrypter()
	}
	issuer := opts.TOTPIssuer
	if issuer == "" {
		issuer = "OpsPlane"
	}

	return &Authenticator{
		models:        opts.Models,
		encrypter:     encrypter,
		jwtManager:    jwtManager,
		refreshTokens: refreshTokens,
		secretBox:     secretBox,
		auditService:  opts.AuditService,
		totpIssuer:    issuer,
	}, nil
}

// JWTManager exposes token parsing to the HTTP middleware.
func (a *Authenticator) JWTManager() JWTManager { return a.jwtManager }

// Login verifies the password and either opens a session or, for MFA users,
// returns a step-up challenge. Lockout arms after repeated failures.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := a.models.Users.GetByEmail(ctx, email)
	if errors.Is(err, data.ErrRecordNotFound) {
		// Burn comparable time so a missing account is not distinguishable
		// from a wrong password by latency.
		_, _ = a.encrypter.Verify(ctx, unknownUserHash, password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("loading user by email: %w", err)
	}

	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if user.IsLocked(time.Now()) {
		return nil, ErrAccountLocked
	}

	result, err := a.encrypter.Verify(ctx, user.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !result.Valid {
		attempts, recErr := a.models.Users.RecordFailedLogin(ctx, user.ID, maxFailedLoginAttempts, loginLockoutDuration)
		if recErr != nil {
			log.Ctx(ctx).WithError(recErr).Errorf("recording failed login for user %s", user.ID)
		}
		a.auditLog(ctx, "LOGIN_FAILED", user.ID, map[string]any{"attempts": attempts})
		return nil, ErrInvalidCredentials
	}

	if result.UpgradedHash != "" {
		if upErr := a.models.Users.UpdatePasswordHash(ctx, a.models.DBConnectionPool, user.ID, result.UpgradedHash); upErr != nil {
			log.Ctx(ctx).WithError(upErr).Errorf("upgrading password hash for user %s", user.ID)
		}
	}
	if err = a.models.Users.ResetLoginThrottle(ctx, a.models.DBConnectionPool, user.ID); err != nil {
		log.Ctx(ctx).WithError(err).Errorf("resetting login throttle for user %s", user.ID)
	}

	if user.MFAEnabled {
		stepUp, tokenErr := a.jwtManager.GenerateStepUpToken(ctx, user)
		if tokenErr != nil {
			return nil, tokenErr
		}
		return &LoginResult{RequiresMFA: true, StepUpToken: stepUp}, nil
	}

	return a.openSession(ctx, user, "LOGIN")
}

// VerifyMFA completes a step-up challenge with a TOTP code or a one-time
// recovery code.
func (a *Authenticator) VerifyMFA(ctx context.Context, stepUpToken, code string) (*LoginResult, error) {
	claims, err := a.jwtManager.ParseToken(ctx, stepUpToken)
	if err != nil {
		return nil, err
	}
	if !claims.IsStepUp() {
		return nil, ErrStepUpRequired
	}

	user, err := a.models.Users.GetByID(ctx, a.models.DBConnectionPool, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", claims.Subject, err)
	}
	if !user.MFAEnabled || !user.MFASecretEncrypted.Valid {
		return nil, ErrMFANotEnabled
	}

	secret, err := a.secretBox.Open(user.MFASecretEncrypted.String)
	if err != nil {
		return nil, fmt.Errorf("opening MFA secret for user %s: %w", user.ID, err)
	}

	matched, err := ValidateTOTPCode(secret, code, time.Now())
	if err != nil {
		return nil, err
	}
	if !matched {
		remaining, consumed := ConsumeRecoveryCode(user.MFARecoveryCodes, code)
		if !consumed {
			a.auditLog(ctx, "MFA_FAILED", user.ID, nil)
			return nil, ErrMFACodeInvalid
		}
		if err = a.models.Users.UpdateRecoveryCodes(ctx, a.models.DBConnectionPool, user.ID, remaining); err != nil {
			return nil, fmt.Errorf("consuming recovery code for user %s: %w", user.ID, err)
		}
		a.auditLog(ctx, "MFA_RECOVERY_CODE_USED", user.ID, map[string]any{"remaining": len(remaining)})
	}

	return a.openSession(ctx, user, "LOGIN_MFA")
}

// Refresh rotates the refresh token and mints a new access token.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	newToken, userID, err := a.refreshTokens.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := a.models.Users.GetByID(ctx, a.models.DBConnectionPool, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", userID, err)
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	accessToken, err := a.jwtManager.GenerateAccessToken(ctx, user, true)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: accessToken, RefreshToken: newToken}, nil
}

// Logout revokes one refresh token.
func (a *Authenticator) Logout(ctx context.Context, refreshToken string) error {
	return a.refreshTokens.Revoke(ctx, refreshToken)
}

// LogoutEverywhere revokes every live session of the user.
func (a *Authenticator) LogoutEverywhere(ctx context.Context, userID string) (int64, error) {
	return a.refreshTokens.RevokeAllForUser(ctx, userID)
}

// BeginMFAEnrollment mints a secret for the user to load into an
// authenticator app. Nothing is stored until ConfirmMFAEnrollment.
func (a *Authenticator) BeginMFAEnrollment(ctx context.Context, user *data.User) (*MFAEnrollment, error) {
	secret, err := GenerateTOTPSecret()
	if err != nil {
		return nil, err
	}
	return &MFAEnrollment{
		Secret:          secret,
		ProvisioningURI: TOTPProvisioningURI(secret, a.totpIssuer, user.Email),
	}, nil
}

// ConfirmMFAEnrollment verifies the first code against the pending secret,
// persists the sealed secret and returns the one-time recovery codes.
func (a *Authenticator) ConfirmMFAEnrollment(ctx context.Context, userID, secret, code string) ([]string, error) {
	matched, err := ValidateTOTPCode(secret, code, time.Now())
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, ErrMFACodeInvalid
	}

	sealed, err := a.secretBox.Seal(secret)
	if err != nil {
		return nil, fmt.Errorf("sealing MFA secret: %w", err)
	}
	recoveryCodes, recoveryHashes, err := GenerateRecoveryCodes()
	if err != nil {
		return nil, err
	}

	if err = a.models.Users.EnableMFA(ctx, a.models.DBConnectionPool, userID, sealed, recoveryHashes); err != nil {
		return nil, fmt.Errorf("enabling MFA for user %s: %w", userID, err)
	}
	a.auditLog(ctx, "MFA_ENABLED", userID, nil)
	return recoveryCodes, nil
}

// DisableMFA removes the second factor and its recovery codes.
func (a *Authenticator) DisableMFA(ctx context.Context, userID string) error {
	if err := a.models.Users.DisableMFA(ctx, a.models.DBConnectionPool, userID); err != nil {
		return fmt.Errorf("disabling MFA for user %s: %w", userID, err)
	}
	a.auditLog(ctx, "MFA_DISABLED", userID, nil)
	return nil
}

// openSession issues the access/refresh pair and records the login.
func (a *Authenticator) openSession(ctx context.Context, user *data.User, auditAction string) (*LoginResult, error) {
	accessToken, err := a.jwtManager.GenerateAccessToken(ctx, user, true)
	if err != nil {
		return nil, err
	}
	refreshToken, err := a.refreshTokens.Issue(ctx, a.models.DBConnectionPool, user.ID)
	if err != nil {
		return nil, err
	}
	a.auditLog(ctx, auditAction, user.ID, nil)
	return &LoginResult{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (a *Authenticator) auditLog(ctx context.Context, action, userID string, details map[string]any) {
	if a.auditService == nil {
		return
	}
	err := a.auditService.Log(ctx, audit.Entry{
		Action:     action,
		EntityName: "user",
		EntityID:   userID,
		NewValues:  details,
	})
	if err != nil {
		log.Ctx(ctx).WithError(err).Errorf("recording %s audit entry", action)
	}
}

// unknownUserHash is a throwaway argon2id hash of a random value, used to
// equalize timing when the email does not resolve to an account.
const unknownUserHash = "$argon2id$v=19$m=65536,t=3,p=4$9Y0b1W7xkQ2T5u8vR3mCzw$Q0n0m1mXoT1m5m9q4C4m0Zq1o0cF8w6m7p2d4s6f8hA"
