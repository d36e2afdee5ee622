package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsplane/opsplane-backend/internal/auth"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
)

const testJWTSecret = "an-hs256-secret-with-enough-length!"

func testJWTManager(t *testing.T) auth.JWTManager {
	t.Helper()
	m, err := auth.NewJWTManager(testJWTSecret, 15*time.Minute, 5*time.Minute)
	require.NoError(t, err)
	return m
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
}

func Test_CorrelationIDMiddleware(t *testing.T) {
	var seen string
	handler := CorrelationIDMiddleware(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		seen = tenantctx.CorrelationID(req.Context())
		rw.WriteHeader(http.StatusOK)
	}))

	t.Run("echoes the caller's id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(CorrelationIDHeader, "corr-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "corr-123", seen)
		assert.Equal(t, "corr-123", rec.Header().Get(CorrelationIDHeader))
	})

	t.Run("mints one when absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(CorrelationIDHeader))
	})
}

func Test_AuthenticateMiddleware(t *testing.T) {
	jwtManager := testJWTManager(t)
	user := &data.User{ID: "user-1", TenantID: "tenant-1", Role: data.UserRoleAdmin}

	var gotTenant string
	var gotClaims *auth.Claims
	handler := AuthenticateMiddleware(jwtManager)(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		gotTenant, _ = tenantctx.Current(req.Context())
		gotClaims = ClaimsFromContext(req.Context())
		rw.WriteHeader(http.StatusOK)
	}))

	t.Run("🎉 valid access token injects tenant and claims", func(t *testing.T) {
		token, err := jwtManager.GenerateAccessToken(req(t), user, true)
		require.NoError(t, err)

		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "tenant-1", gotTenant)
		require.NotNil(t, gotClaims)
		assert.Equal(t, "user-1", gotClaims.Subject)
	})

	t.Run("missing header is 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token is 401", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("Authorization", "Bearer nonsense")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("step-up token cannot reach protected routes", func(t *testing.T) {
		stepUp, err := jwtManager.GenerateStepUpToken(req(t), user)
		require.NoError(t, err)

		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("Authorization", "Bearer "+stepUp)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func Test_AnyRoleMiddleware(t *testing.T) {
	jwtManager := testJWTManager(t)

	serveAs := func(t *testing.T, role data.UserRole, required ...data.UserRole) int {
		t.Helper()
		user := &data.User{ID: "user-1", TenantID: "tenant-1", Role: role}
		token, err := jwtManager.GenerateAccessToken(req(t), user, true)
		require.NoError(t, err)

		handler := AuthenticateMiddleware(jwtManager)(AnyRoleMiddleware(required...)(okHandler()))
		request := httptest.NewRequest(http.MethodDelete, "/", nil)
		request.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serveAs(t, data.UserRoleOwner, data.UserRoleOwner, data.UserRoleAdmin))
	assert.Equal(t, http.StatusOK, serveAs(t, data.UserRoleAdmin, data.UserRoleOwner, data.UserRoleAdmin))
	assert.Equal(t, http.StatusForbidden, serveAs(t, data.UserRoleMember, data.UserRoleOwner, data.UserRoleAdmin))
	assert.Equal(t, http.StatusOK, serveAs(t, data.UserRoleMember), "no required roles means any authenticated user")
}

func Test_CSRFMiddleware(t *testing.T) {
	handler := CSRFMiddleware(okHandler())

	t.Run("safe request passes and receives the cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, CSRFCookieName, cookies[0].Name)
	})

	t.Run("cross-site mutation is refused", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodPost, "/", nil)
		request.Header.Set("Sec-Fetch-Site", "cross-site")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("bearer mutation is exempt from the double-submit check", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodPost, "/", nil)
		request.Header.Set("Authorization", "Bearer some-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("cookie mutation requires the matching header", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodPost, "/", nil)
		request.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "token-1"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		request = httptest.NewRequest(http.MethodPost, "/", nil)
		request.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "token-1"})
		request.Header.Set(CSRFHeaderName, "token-1")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, request)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_RecoverHandler(t *testing.T) {
	handler := CorrelationIDMiddleware(RecoverHandler(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/explode", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"statusCode":500`)
	assert.Contains(t, rec.Body.String(), `"path":"/explode"`)
}

// req builds a throwaway context for token generation.
func req(t *testing.T) context.Context {
	t.Helper()
	return context.Background()
}
