package serve

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/audit"
	"github.com/opsplane/opsplane-backend/internal/auth"
	"github.com/opsplane/opsplane-backend/internal/cache"
	"github.com/opsplane/opsplane-backend/internal/crashtracker"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/finance"
	"github.com/opsplane/opsplane-backend/internal/jobqueue"
	"github.com/opsplane/opsplane-backend/internal/monitor"
	"github.com/opsplane/opsplane-backend/internal/ratelimit"
	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
	"github.com/opsplane/opsplane-backend/internal/serve/httphandler"
	"github.com/opsplane/opsplane-backend/internal/serve/middleware"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const ServiceID = "serve"

const (
	shutdownGracePeriod = 30 * time.Second
	readTimeout         = 5 * time.Second
	writeTimeout        = 35 * time.Second
	idleTimeout         = 2 * time.Minute
)

type ServeOptions struct {
	Environment            string
	GitCommit              string
	Version                string
	Port                   int
	DatabaseDSN            string
	RedisAddr              string
	CorsAllowedOrigins     []string
	TrustedProxyCIDRs      []string
	JWTSecret              string
	MFASecretKey           string
	MetricsToken           string
	ProviderWebhookSecrets map[string]string

	MonitorService     monitor.MonitorServiceInterface
	CrashTrackerClient crashtracker.CrashTrackerClient

	dbConnectionPool db.DBConnectionPool
	models           *data.Models
	jobStore         *jobqueue.Store
	authenticator    *auth.Authenticator
	auditService     *audit.Service
	financeService   *finance.Service
	appCache         cache.Cache
	limiter          *ratelimit.Limiter
	identityResolver *ratelimit.Resolver
}

// SetupDependencies opens the database and redis connections and builds every
// service the router needs.
func (opts *ServeOptions) SetupDependencies(ctx context.Context) error {
	httperror.SetReportErrorFunc(opts.CrashTrackerClient.LogAndReportErrors)

	dbConnectionPool, err := db.OpenDBConnectionPool(opts.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connecting to the database: %w", err)
	}
	opts.dbConnectionPool = dbConnectionPool

	opts.models, err = data.NewModels(dbConnectionPool)
	if err != nil {
		return fmt.Errorf("creating models: %w", err)
	}
	opts.jobStore, err = jobqueue.NewStore(dbConnectionPool)
	if err != nil {
		return fmt.Errorf("creating job store: %w", err)
	}

	opts.auditService, err = audit.NewService(audit.ServiceOptions{
		Models:             opts.models,
		MonitorService:     opts.MonitorService,
		CrashTrackerClient: opts.CrashTrackerClient,
	})
	if err != nil {
		return fmt.Errorf("creating audit service: %w", err)
	}
	opts.auditService.Start(ctx)

	opts.authenticator, err = auth.NewAuthenticator(auth.AuthenticatorOptions{
		Models:       opts.models,
		JWTSecret:    opts.JWTSecret,
		MFASecretKey: opts.MFASecretKey,
		AuditService: opts.auditService,
	})
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}

	rateResolver, err := finance.NewRateResolver(opts.models)
	if err != nil {
		return fmt.Errorf("creating rate resolver: %w", err)
	}
	opts.financeService, err = finance.NewService(finance.ServiceOptions{
		Models:         opts.models,
		AuditService:   opts.auditService,
		MonitorService: opts.MonitorService,
		JobStore:       opts.jobStore,
		RateResolver:   rateResolver,
	})
	if err != nil {
		return fmt.Errorf("creating finance service: %w", err)
	}

	opts.identityResolver, err = ratelimit.NewResolver(opts.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("creating identity resolver: %w", err)
	}

	// Redis backs both throttling and the dashboard cache. Without it the
	// limiter is skipped and the cache degrades to in-process memory.
	if opts.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		opts.limiter, err = ratelimit.NewLimiter(ratelimit.LimiterOptions{
			RedisClient:    redisClient,
			MonitorService: opts.MonitorService,
		})
		if err != nil {
			return fmt.Errorf("creating rate limiter: %w", err)
		}
		opts.appCache, err = cache.NewRedisCache(redisClient)
		if err != nil {
			return fmt.Errorf("creating redis cache: %w", err)
		}
	} else {
		log.Ctx(ctx).Warn("no redis address configured, using in-process cache and no rate limiting")
		opts.appCache, err = cache.NewMemoryCache()
		if err != nil {
			return fmt.Errorf("creating memory cache: %w", err)
		}
	}

	return nil
}

func Serve(ctx context.Context, opts ServeOptions) error {
	defer opts.CrashTrackerClient.FlushEvents(2 * time.Second)
	defer opts.CrashTrackerClient.Recover()

	if err := opts.SetupDependencies(ctx); err != nil {
		return fmt.Errorf("starting dependencies: %w", err)
	}

	listenAddr := fmt.Sprintf(":%d", opts.Port)
	server := &http.Server{
		Addr:         listenAddr,
		Handler:      handleHTTP(opts),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Ctx(ctx).Infof("Starting OpsPlane API on %s", listenAddr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("running HTTP server: %w", err)
	case <-ctx.Done():
	}

	log.Ctx(ctx).Info("Shutting down OpsPlane API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	opts.auditService.Close()
	if err := opts.dbConnectionPool.Close(); err != nil {
		log.Ctx(ctx).WithError(err).Errorf("closing database connection")
	}
	return nil
}

func handleHTTP(o ServeOptions) *chi.Mux {
	mux := chi.NewMux()

	mux.Use(middleware.CorrelationIDMiddleware)
	mux.Use(middleware.RecoverHandler)
	mux.Use(middleware.MetricsRequestHandler(o.MonitorService))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.CorsMiddleware(o.CorsAllowedOrigins))
	mux.Use(middleware.CSRFMiddleware)

	// Coarse per-IP flood protection in front of the identity-aware limiter.
	mux.Use(httprate.LimitByIP(300, 1*time.Minute))

	mux.Get("/health", httphandler.HealthHandler{
		Version:   o.Version,
		ServiceID: ServiceID,
		GitCommit: o.GitCommit,
	}.ServeHTTP)
	mux.Get("/metrics", metricsHandler(o))

	mux.Route("/api/v1", func(r chi.Router) {
		jwtManager := o.authenticator.JWTManager()

		authHandler := httphandler.AuthHandler{
			Models:            o.models,
			Authenticator:     o.authenticator,
			PasswordEncrypter: &auth.Argon2idEncrypter{},
			JobStore:          o.jobStore,
		}

		// Public routes. Credential endpoints ride the identity-aware limiter
		// so repeated failures are slowed and then blocked.
		r.Group(func(r chi.Router) {
			if o.limiter != nil {
				r.Use(middleware.RateLimitMiddleware(o.limiter, o.identityResolver))
			}

			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/refresh", authHandler.Refresh)
			r.Post("/auth/mfa/verify", authHandler.VerifyMFA)

			r.Get("/tenants/{slug}", httphandler.TenantHandler{Models: o.models}.ResolveSlug)

			r.Post("/webhooks/incoming/{provider}", httphandler.GatewayWebhookHandler{
				Models:          o.models,
				ProviderSecrets: o.ProviderWebhookSecrets,
			}.Receive)
		})

		// Authenticated routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthenticateMiddleware(jwtManager))
			if o.limiter != nil {
				r.Use(middleware.RateLimitMiddleware(o.limiter, o.identityResolver))
			}

			r.Get("/auth/me", authHandler.Me)
			r.Post("/auth/logout", authHandler.Logout)
			r.Post("/auth/mfa/enroll", authHandler.BeginMFAEnrollment)
			r.Post("/auth/mfa/confirm", authHandler.ConfirmMFAEnrollment)
			r.Delete("/auth/mfa", authHandler.DisableMFA)

			bookingHandler := httphandler.BookingHandler{Models: o.models, FinanceService: o.financeService}
			r.Route("/bookings", func(r chi.Router) {
				r.Get("/", bookingHandler.List)
				r.Get("/{id}", bookingHandler.Get)
				r.Post("/", bookingHandler.Create)
				r.With(staffOnly()).Patch("/{id}/status", bookingHandler.UpdateStatus)
			})

			taskHandler := httphandler.TaskHandler{Models: o.models, FinanceService: o.financeService}
			r.Route("/tasks", func(r chi.Router) {
				r.Get("/{id}", taskHandler.Get)
				r.Post("/", taskHandler.Create)
				r.Patch("/{id}/status", taskHandler.UpdateStatus)
				r.With(staffOnly()).Put("/{id}/assignees", taskHandler.ReplaceAssignees)
			})

			transactionHandler := httphandler.TransactionHandler{Models: o.models, FinanceService: o.financeService}
			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", transactionHandler.List)
				r.With(staffOnly()).Post("/", transactionHandler.Create)
			})

			payoutHandler := httphandler.PayoutHandler{Models: o.models, FinanceService: o.financeService}
			r.Route("/payouts", func(r chi.Router) {
				r.Get("/", payoutHandler.List)
				r.Post("/", payoutHandler.Create)
			})

			walletHandler := httphandler.WalletHandler{Models: o.models}
			r.Get("/wallets/me", walletHandler.GetMine)
			r.With(staffOnly()).Route("/employees/{userID}", func(r chi.Router) {
				r.Get("/wallet", walletHandler.GetForUser)
				r.Get("/profile", walletHandler.GetProfile)
				r.Put("/profile", walletHandler.UpsertProfile)
			})

			auditHandler := httphandler.AuditHandler{Models: o.models, AuditService: o.auditService}
			r.With(staffOnly()).Route("/audit", func(r chi.Router) {
				r.Get("/logs", auditHandler.List)
				r.Post("/verify", auditHandler.Verify)
			})

			webhookHandler := httphandler.WebhookHandler{Models: o.models}
			r.With(staffOnly()).Route("/webhooks", func(r chi.Router) {
				r.Get("/", webhookHandler.List)
				r.Post("/", webhookHandler.Create)
				r.Patch("/{id}", webhookHandler.Update)
				r.Delete("/{id}", webhookHandler.Delete)
				r.Get("/{id}/deliveries", webhookHandler.ListDeliveries)
			})

			dashboardHandler := httphandler.DashboardHandler{Models: o.models, Cache: o.appCache}
			r.Get("/dashboard/summary", dashboardHandler.Summary)
		})
	})

	return mux
}

func staffOnly() func(http.Handler) http.Handler {
	return middleware.AnyRoleMiddleware(data.UserRoleOwner, data.UserRoleAdmin)
}

// metricsHandler guards /metrics with a bearer token. In production a missing
// token hides the endpoint entirely.
func metricsHandler(o ServeOptions) http.HandlerFunc {
	inner, err := o.MonitorService.GetMetricHttpHandler()
	if err != nil {
		log.Errorf("getting metrics handler: %v", err)
		return func(rw http.ResponseWriter, req *http.Request) {
			http.NotFound(rw, req)
		}
	}

	return func(rw http.ResponseWriter, req *http.Request) {
		if o.MetricsToken == "" {
			if strings.EqualFold(o.Environment, "production") {
				http.NotFound(rw, req)
				return
			}
			inner.ServeHTTP(rw, req)
			return
		}
		authHeader := req.Header.Get("Authorization")
		if authHeader != "Bearer "+o.MetricsToken {
			httperror.Unauthorized("", nil).Render(rw, req)
			return
		}
		inner.ServeHTTP(rw, req)
	}
}
