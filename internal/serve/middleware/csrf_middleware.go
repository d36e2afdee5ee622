package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
)

const (
	// CSRFCookieName is the double-submit cookie; readable by scripts on
	// purpose so the client can mirror it into the header.
	CSRFCookieName = "opsplane_csrf"
	CSRFHeaderName = "X-CSRF-Token"
)

// stateChanging reports whether the method can mutate server state.
func stateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// CSRFMiddleware protects cookie-authenticated state changes with a
// double-submit token and a Fetch-Metadata check. Bearer requests are exempt:
// a cross-site attacker cannot attach someone else's Authorization header.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		if !stateChanging(req.Method) {
			ensureCSRFCookie(rw, req)
			next.ServeHTTP(rw, req)
			return
		}

		// Cross-site state changes are refused outright, whatever the
		// credential style.
		if site := req.Header.Get("Sec-Fetch-Site"); site == "cross-site" {
			httperror.Forbidden("Cross-site requests are not allowed.", nil).Render(rw, req)
			return
		}

		if _, usesBearer := bearerToken(req); usesBearer {
			next.ServeHTTP(rw, req)
			return
		}

		// Cookie-authenticated (or anonymous-cookie) request: require the
		// double-submit pair.
		cookie, err := req.Cookie(CSRFCookieName)
		if err != nil || cookie.Value == "" {
			httperror.Forbidden("Missing CSRF token.", nil).Render(rw, req)
			return
		}
		header := req.Header.Get(CSRFHeaderName)
		if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
			httperror.Forbidden("Invalid CSRF token.", nil).Render(rw, req)
			return
		}

		next.ServeHTTP(rw, req)
	})
}

// ensureCSRFCookie issues the double-submit cookie on safe requests so the
// client has a token before its first mutation.
func ensureCSRFCookie(rw http.ResponseWriter, req *http.Request) {
	if cookie, err := req.Cookie(CSRFCookieName); err == nil && cookie.Value != "" {
		return
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return
	}
	http.SetCookie(rw, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}
