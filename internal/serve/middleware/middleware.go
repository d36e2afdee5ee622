package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/opsplane/opsplane-backend/internal/auth"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/monitor"
	"github.com/opsplane/opsplane-backend/internal/ratelimit"
	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
	"github.com/opsplane/opsplane-backend/internal/utils"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

type ContextKey string

const (
	// ClaimsContextKey holds the verified *auth.Claims of the request.
	ClaimsContextKey ContextKey = "auth_claims"

	// CorrelationIDHeader is echoed back on every response.
	CorrelationIDHeader = "X-Correlation-ID"
)

// ClaimsFromContext returns the verified claims, or nil on public routes.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ClaimsContextKey).(*auth.Claims)
	return claims
}

// RecoverHandler recovers from panics and renders a 500.
func RecoverHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", r)
			}

			// No need to recover when the client has disconnected:
			if errors.Is(err, http.ErrAbortHandler) {
				panic(err)
			}

			ctx := req.Context()
			log.Ctx(ctx).Errorf("panic serving request: %v", err)
			httperror.InternalError(ctx, "", err).Render(rw, req)
		}()

		next.ServeHTTP(rw, req)
	})
}

// CorrelationIDMiddleware accepts the caller's X-Correlation-ID or mints one,
// stores it in the context and stamps it on logs and the response.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		correlationID := strings.TrimSpace(req.Header.Get(CorrelationIDHeader))
		if correlationID == "" || len(correlationID) > 64 {
			correlationID = uuid.NewString()
		}

		ctx := tenantctx.WithCorrelationID(req.Context(), correlationID)
		ctx = log.Set(ctx, log.Ctx(ctx).WithField("correlation_id", correlationID))
		rw.Header().Set(CorrelationIDHeader, correlationID)

		next.ServeHTTP(rw, req.WithContext(ctx))
	})
}

// MetricsRequestHandler exports request duration to the metrics server.
func MetricsRequestHandler(monitorService monitor.MonitorServiceInterface) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			mw := chimiddleware.NewWrapResponseWriter(rw, req.ProtoMajor)
			then := time.Now()
			next.ServeHTTP(mw, req)

			duration := time.Since(then)

			labels := monitor.HttpRequestLabels{
				Status: fmt.Sprintf("%d", mw.Status()),
				Route:  utils.GetRoutePattern(req),
				Method: req.Method,
			}
			if err := monitorService.MonitorHttpRequestDuration(duration, labels); err != nil {
				log.Ctx(req.Context()).Errorf("monitoring request duration: %v", err)
			}
		})
	}
}

// LoggingMiddleware logs request start/end with method, path and status.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		mw := chimiddleware.NewWrapResponseWriter(rw, req.ProtoMajor)

		ctx := log.Set(req.Context(), log.Ctx(req.Context()).WithFields(log.F{
			"method": req.Method,
			"path":   req.URL.Path,
		}))
		req = req.WithContext(ctx)

		log.Ctx(ctx).WithFields(log.F{
			"ip":        req.RemoteAddr,
			"useragent": req.Header.Get("User-Agent"),
		}).Info("starting request")

		started := time.Now()
		next.ServeHTTP(mw, req)

		log.Ctx(ctx).WithFields(log.F{
			"status":   mw.Status(),
			"bytes":    mw.BytesWritten(),
			"duration": time.Since(started).String(),
		}).Info("finished request")
	})
}

func CorsMiddleware(corsAllowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		c := cors.New(cors.Options{
			AllowedOrigins:   corsAllowedOrigins,
			AllowedHeaders:   []string{"*"},
			AllowedMethods:   []string{"GET", "PUT", "POST", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowCredentials: true,
		})
		return c.Handler(next)
	}
}

// AuthenticateMiddleware validates the bearer token and injects the tenant
// and user into the context. The token is the only tenant source; step-up
// tokens are refused everywhere except the MFA verification endpoint.
func AuthenticateMiddleware(jwtManager auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			ctx := req.Context()

			token, ok := bearerToken(req)
			if !ok {
				httperror.Unauthorized("", nil).Render(rw, req)
				return
			}

			claims, err := jwtManager.ParseToken(ctx, token)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) {
					log.Ctx(ctx).Errorf("validating auth token: %v", err)
				}
				httperror.Unauthorized("", nil).Render(rw, req)
				return
			}
			if claims.IsStepUp() || !claims.MFAPassed {
				httperror.Unauthorized("MFA verification is required.", nil).Render(rw, req)
				return
			}

			ctx = context.WithValue(ctx, ClaimsContextKey, claims)
			ctx = tenantctx.WithTenant(ctx, claims.TenantID)
			ctx = tenantctx.WithUser(ctx, claims.Subject)
			ctx = log.Set(ctx, log.Ctx(ctx).WithFields(log.F{
				"user_id":   claims.Subject,
				"tenant_id": claims.TenantID,
			}))

			next.ServeHTTP(rw, req.WithContext(ctx))
		})
	}
}

// AnyRoleMiddleware allows the request only when the token role is one of the
// required roles. With no roles listed, any authenticated user passes.
func AnyRoleMiddleware(requiredRoles ...data.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			claims := ClaimsFromContext(req.Context())
			if claims == nil {
				httperror.Unauthorized("", nil).Render(rw, req)
				return
			}
			if len(requiredRoles) == 0 {
				next.ServeHTTP(rw, req)
				return
			}

			for _, role := range requiredRoles {
				if string(role) == claims.Role {
					next.ServeHTTP(rw, req)
					return
				}
			}
			httperror.Forbidden("", nil).Render(rw, req)
		})
	}
}

// RateLimitMiddleware applies the sliding-window limiter. The soft threshold
// slows the caller down; the hard threshold refuses with Retry-After.
func RateLimitMiddleware(limiter *ratelimit.Limiter, resolver *ratelimit.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			ctx := req.Context()

			userID := ""
			if claims := ClaimsFromContext(ctx); claims != nil {
				userID = claims.Subject
			}

			identity, anonCookie := resolver.Resolve(req, userID)
			if anonCookie != nil {
				http.SetCookie(rw, anonCookie)
			}

			decision := limiter.Allow(ctx, identity)
			if !decision.Allowed {
				httperror.TooManyRequests(decision.RetryAfter).Render(rw, req)
				return
			}
			if decision.Delay > 0 {
				select {
				case <-time.After(decision.Delay):
				case <-ctx.Done():
					return
				}
			}

			next.ServeHTTP(rw, req)
		})
	}
}

func bearerToken(req *http.Request) (string, bool) {
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
