package httphandler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/auth"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/jobqueue"
	"github.com/opsplane/opsplane-backend/internal/message"
	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
	"github.com/opsplane/opsplane-backend/internal/serve/httpresponse"
	"github.com/opsplane/opsplane-backend/internal/serve/middleware"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
	"github.com/opsplane/opsplane-backend/internal/utils"
	"github.com/opsplane/opsplane-backend/pkg/log"
	"github.com/opsplane/opsplane-backend/pkg/schema"
)

var tenantSlugRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{1,46})[a-z0-9]$`)

// AuthHandler owns the session lifecycle: tenant+owner bootstrap, login, MFA
// step-up, refresh rotation and MFA enrollment. Login and refresh accept a
// tenant slug because no token exists yet; everything else derives the tenant
// from the bearer token.
type AuthHandler struct {
	Models            *data.Models
	Authenticator     *auth.Authenticator
	PasswordEncrypter auth.PasswordEncrypter
	JobStore          *jobqueue.Store
}

type registerRequest struct {
	TenantSlug   string `json:"tenantSlug"`
	BaseCurrency string `json:"baseCurrency"`
	Email        string `json:"email"`
	Password     string `json:"password"`
}

type sessionResponse struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	RequiresMFA  bool   `json:"requiresMfa,omitempty"`
	StepUpToken  string `json:"stepUpToken,omitempty"`
}

// Register creates the tenant and its owner account, then opens a session.
func (h AuthHandler) Register(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body registerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}
	body.TenantSlug = strings.ToLower(strings.TrimSpace(body.TenantSlug))
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if !tenantSlugRegex.MatchString(body.TenantSlug) {
		httperror.BadRequest("tenantSlug must be 3-48 lowercase letters, digits or dashes", nil).Render(rw, req)
		return
	}
	if err := utils.ValidateEmail(body.Email); err != nil {
		httperror.BadRequest("a valid email is required", err).Render(rw, req)
		return
	}
	if body.BaseCurrency == "" {
		body.BaseCurrency = "USD"
	}

	passwordHash, err := h.PasswordEncrypter.Encrypt(ctx, body.Password)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	tenant, err := db.RunInTransactionWithResult(ctx, h.Models.DBConnectionPool, nil, func(dbTx db.DBTransaction) (*schema.Tenant, error) {
		created, txErr := h.Models.Tenants.Insert(ctx, dbTx, body.TenantSlug, body.BaseCurrency)
		if txErr != nil {
			return nil, txErr
		}

		tenantCtx := tenantctx.WithTenant(ctx, created.ID)
		owner, txErr := h.Models.Users.Insert(tenantCtx, dbTx, body.Email, passwordHash, data.UserRoleOwner)
		if txErr != nil {
			return nil, fmt.Errorf("creating owner account: %w", txErr)
		}

		if txErr = message.EnqueueEmail(tenantCtx, dbTx, h.JobStore, owner.Email, owner.Email,
			"Welcome to OpsPlane", "welcome", "en",
			map[string]any{"TenantName": created.Slug}); txErr != nil {
			return nil, fmt.Errorf("enqueueing welcome email: %w", txErr)
		}

		return created, nil
	})
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	// The owner logs straight in; registration and first login are one step.
	result, err := h.Authenticator.Login(tenantctx.WithTenant(ctx, tenant.ID), body.Email, body.Password)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusCreated, sessionResult(result))
}

type loginRequest struct {
	TenantSlug string `json:"tenantSlug"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

func (h AuthHandler) Login(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body loginRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}

	tenantCtx, ok := h.tenantFromSlug(rw, req, body.TenantSlug)
	if !ok {
		return
	}

	result, err := h.Authenticator.Login(tenantCtx, strings.ToLower(strings.TrimSpace(body.Email)), body.Password)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, sessionResult(result))
}

type refreshRequest struct {
	TenantSlug   string `json:"tenantSlug"`
	RefreshToken string `json:"refreshToken"`
}

func (h AuthHandler) Refresh(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body refreshRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}

	tenantCtx, ok := h.tenantFromSlug(rw, req, body.TenantSlug)
	if !ok {
		return
	}

	result, err := h.Authenticator.Refresh(tenantCtx, body.RefreshToken)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, sessionResult(result))
}

type mfaVerifyRequest struct {
	StepUpToken string `json:"stepUpToken"`
	Code        string `json:"code"`
}

// VerifyMFA exchanges a step-up token plus a TOTP or recovery code for a full
// session. The tenant comes from the step-up token itself.
func (h AuthHandler) VerifyMFA(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body mfaVerifyRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}

	claims, err := h.Authenticator.JWTManager().ParseToken(ctx, body.StepUpToken)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	tenantCtx := tenantctx.WithTenant(ctx, claims.TenantID)

	result, err := h.Authenticator.VerifyMFA(tenantCtx, body.StepUpToken, body.Code)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, sessionResult(result))
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	Everywhere   bool   `json:"everywhere,omitempty"`
}

func (h AuthHandler) Logout(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body logoutRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}

	if body.Everywhere {
		claims := middleware.ClaimsFromContext(ctx)
		revoked, err := h.Authenticator.LogoutEverywhere(ctx, claims.Subject)
		if err != nil {
			httperror.FromError(ctx, err).Render(rw, req)
			return
		}
		log.Ctx(ctx).Infof("revoked %d sessions for user %s", revoked, claims.Subject)
	} else if err := h.Authenticator.Logout(ctx, body.RefreshToken); err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, map[string]string{"message": "logged out"})
}

type userResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	MFAEnabled bool   `json:"mfaEnabled"`
}

func (h AuthHandler) Me(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	claims := middleware.ClaimsFromContext(ctx)

	user, err := h.Models.Users.GetByID(ctx, h.Models.DBConnectionPool, claims.Subject)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, userResponse{
		ID:         user.ID,
		Email:      user.Email,
		Role:       string(user.Role),
		MFAEnabled: user.MFAEnabled,
	})
}

// BeginMFAEnrollment returns a fresh secret and provisioning URI.
func (h AuthHandler) BeginMFAEnrollment(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	claims := middleware.ClaimsFromContext(ctx)

	user, err := h.Models.Users.GetByID(ctx, h.Models.DBConnectionPool, claims.Subject)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	enrollment, err := h.Authenticator.BeginMFAEnrollment(ctx, user)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, map[string]string{
		"secret":          enrollment.Secret,
		"provisioningUri": enrollment.ProvisioningURI,
	})
}

type mfaConfirmRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

// ConfirmMFAEnrollment persists the secret and returns the one-time recovery
// codes; they are never shown again.
func (h AuthHandler) ConfirmMFAEnrollment(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	claims := middleware.ClaimsFromContext(ctx)

	var body mfaConfirmRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}

	recoveryCodes, err := h.Authenticator.ConfirmMFAEnrollment(ctx, claims.Subject, body.Secret, body.Code)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, map[string]any{"recoveryCodes": recoveryCodes})
}

func (h AuthHandler) DisableMFA(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	claims := middleware.ClaimsFromContext(ctx)

	if err := h.Authenticator.DisableMFA(ctx, claims.Subject); err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, map[string]string{"message": "MFA disabled"})
}

// tenantFromSlug resolves the pre-auth tenant scope for login and refresh.
func (h AuthHandler) tenantFromSlug(rw http.ResponseWriter, req *http.Request, slug string) (ctx context.Context, ok bool) {
	ctx = req.Context()
	tenant, err := h.Models.Tenants.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		// Do not leak which slugs exist to credential-stuffing attempts.
		httperror.Unauthorized("invalid email or password", err).Render(rw, req)
		return nil, false
	}
	return tenantctx.WithTenant(ctx, tenant.ID), true
}

func sessionResult(result *auth.LoginResult) sessionResponse {
	return sessionResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		RequiresMFA:  result.RequiresMFA,
		StepUpToken:  result.StepUpToken,
	}
}
