package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/audit"
	"github.com/opsplane/opsplane-backend/internal/cache"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/finance"
	"github.com/opsplane/opsplane-backend/internal/jobqueue"
	"github.com/opsplane/opsplane-backend/internal/message"
	"github.com/opsplane/opsplane-backend/internal/monitor"
	"github.com/opsplane/opsplane-backend/internal/outbox"
	"github.com/opsplane/opsplane-backend/internal/scheduler"
	"github.com/opsplane/opsplane-backend/internal/webhook"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

func schedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the background scheduler and queue workers",
		Long:  "Runs the outbox relay, payroll and recurring-transaction jobs, cleanup jobs, and the durable queue workers for payouts, emails and webhook deliveries.",
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()

			if err := globalConfig.Validate(); err != nil {
				log.Fatalf("invalid configuration: %s", err)
			}
			runScheduler(ctx)
		},
	}
}

func runScheduler(ctx context.Context) {
	monitorService, crashTrackerClient := buildObservability(ctx)

	dbConnectionPool, err := db.OpenDBConnectionPool(globalConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("connecting to the database: %s", err)
	}
	defer dbConnectionPool.Close()

	models, err := data.NewModels(dbConnectionPool)
	if err != nil {
		log.Fatalf("creating models: %s", err)
	}
	jobStore, err := jobqueue.NewStore(dbConnectionPool)
	if err != nil {
		log.Fatalf("creating job store: %s", err)
	}

	auditService, err := audit.NewService(audit.ServiceOptions{
		Models:             models,
		MonitorService:     monitorService,
		CrashTrackerClient: crashTrackerClient,
	})
	if err != nil {
		log.Fatalf("creating audit service: %s", err)
	}
	auditService.Start(ctx)
	defer auditService.Close()

	rateResolver, err := finance.NewRateResolver(models)
	if err != nil {
		log.Fatalf("creating rate resolver: %s", err)
	}
	financeService, err := finance.NewService(finance.ServiceOptions{
		Models:         models,
		AuditService:   auditService,
		MonitorService: monitorService,
		JobStore:       jobStore,
		RateResolver:   rateResolver,
	})
	if err != nil {
		log.Fatalf("creating finance service: %s", err)
	}

	// Outbox dispatchers: webhook fan-out and payout emails run on the relay
	// transaction, the cache invalidator is best-effort.
	registry := outbox.NewRegistry()
	fanout, err := webhook.NewFanout(models, jobStore)
	if err != nil {
		log.Fatalf("creating webhook fanout: %s", err)
	}
	registry.Register("*", fanout)

	payoutEmails, err := message.NewPayoutEmailDispatcher(models, jobStore)
	if err != nil {
		log.Fatalf("creating payout email dispatcher: %s", err)
	}
	registry.Register("payout.completed", payoutEmails)
	registry.Register("payout.failed", payoutEmails)

	appCache := buildCache(ctx)
	invalidator, err := cache.NewInvalidator(appCache)
	if err != nil {
		log.Fatalf("creating cache invalidator: %s", err)
	}
	registry.Register("*", invalidator)

	relay, err := outbox.NewRelay(outbox.RelayOptions{
		Models:         models,
		Registry:       registry,
		MonitorService: monitorService,
	})
	if err != nil {
		log.Fatalf("creating outbox relay: %s", err)
	}

	pools := startWorkerPools(ctx, models, jobStore, financeService, monitorService)
	defer func() {
		for _, pool := range pools {
			pool.Stop()
		}
	}()

	scheduler.Start(ctx, models, crashTrackerClient,
		scheduler.WithOutboxRelayJob(relay),
		scheduler.WithPayrollJob(financeService),
		scheduler.WithRecurringTransactionsJob(financeService),
		scheduler.WithSessionCleanupJob(models),
		scheduler.WithStuckJobsReaperJob(jobStore),
	)
}

func buildCache(ctx context.Context) cache.Cache {
	if globalConfig.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: globalConfig.RedisAddr}))
		if err != nil {
			log.Fatalf("creating redis cache: %s", err)
		}
		return redisCache
	}
	log.Ctx(ctx).Warn("no redis address configured, cache invalidation is process-local")
	memoryCache, err := cache.NewMemoryCache()
	if err != nil {
		log.Fatalf("creating memory cache: %s", err)
	}
	return memoryCache
}

func startWorkerPools(ctx context.Context, models *data.Models, jobStore *jobqueue.Store, financeService *finance.Service, monitorService monitor.MonitorServiceInterface) []*jobqueue.WorkerPool {
	messengerType, err := message.ParseMessengerType(globalConfig.EmailMessengerType)
	if err != nil {
		log.Fatalf("parsing email messenger type: %s", err)
	}
	messengerClient, err := message.GetClient(ctx, message.MessengerOptions{
		MessengerType: messengerType,
		AWSRegion:     globalConfig.AWSRegion,
		SenderAddress: globalConfig.EmailSenderAddress,
	})
	if err != nil {
		log.Fatalf("creating messenger client: %s", err)
	}

	deliverer, err := webhook.NewDeliverer(models, monitorService)
	if err != nil {
		log.Fatalf("creating webhook deliverer: %s", err)
	}

	type poolSpec struct {
		queue       string
		concurrency int
		handlers    []jobqueue.Handler
	}
	specs := []poolSpec{
		{finance.PayoutQueue, 4, []jobqueue.Handler{&finance.PayoutGatewayHandler{Service: financeService, Gateway: finance.DryRunGateway{}}}},
		{message.EmailQueue, 4, []jobqueue.Handler{&message.EmailHandler{Messenger: messengerClient, MonitorService: monitorService}}},
		{webhook.DeliveryQueue, 8, []jobqueue.Handler{deliverer}},
	}

	pools := make([]*jobqueue.WorkerPool, 0, len(specs))
	for _, spec := range specs {
		pool, err := jobqueue.NewWorkerPool(jobqueue.WorkerPoolOptions{
			Store:          jobStore,
			Queue:          spec.queue,
			Concurrency:    spec.concurrency,
			PollInterval:   2 * time.Second,
			MonitorService: monitorService,
		})
		if err != nil {
			log.Fatalf("creating %s worker pool: %s", spec.queue, err)
		}
		for _, handler := range spec.handlers {
			if err := pool.RegisterHandler(handler); err != nil {
				log.Fatalf("registering handler on %s pool: %s", spec.queue, err)
			}
		}
		pool.Start(ctx)
		pools = append(pools, pool)
	}
	return pools
}
