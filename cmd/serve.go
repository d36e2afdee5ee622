package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opsplane/opsplane-backend/internal/crashtracker"
	"github.com/opsplane/opsplane-backend/internal/monitor"
	"github.com/opsplane/opsplane-backend/internal/serve"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the OpsPlane HTTP API",
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()

			if err := globalConfig.Validate(); err != nil {
				log.Fatalf("invalid configuration: %s", err)
			}

			monitorService, crashTrackerClient := buildObservability(ctx)

			err := serve.Serve(ctx, serve.ServeOptions{
				Environment:            globalConfig.Environment,
				GitCommit:              GitCommit,
				Version:                Version,
				Port:                   globalConfig.Port,
				DatabaseDSN:            globalConfig.DatabaseURL,
				RedisAddr:              globalConfig.RedisAddr,
				CorsAllowedOrigins:     globalConfig.CorsAllowedOrigins,
				TrustedProxyCIDRs:      globalConfig.TrustedProxyCIDRs,
				JWTSecret:              globalConfig.JWTSecret,
				MFASecretKey:           globalConfig.MFASecretKey,
				MetricsToken:           globalConfig.MetricsToken,
				ProviderWebhookSecrets: globalConfig.ProviderWebhookSecrets,
				MonitorService:         monitorService,
				CrashTrackerClient:     crashTrackerClient,
			})
			if err != nil {
				crashTrackerClient.LogAndReportErrors(ctx, err, "running HTTP server")
				log.Fatalf("running HTTP server: %s", err)
			}
		},
	}
}

func buildObservability(ctx context.Context) (monitor.MonitorServiceInterface, crashtracker.CrashTrackerClient) {
	monitorService := &monitor.MonitorService{}
	err := monitorService.Start(monitor.MetricOptions{
		MetricType:  monitor.MetricTypePrometheus,
		Environment: globalConfig.Environment,
	})
	if err != nil {
		log.Fatalf("starting monitor service: %s", err)
	}

	crashTrackerType, err := crashtracker.ParseCrashTrackerType(globalConfig.CrashTrackerType)
	if err != nil {
		log.Fatalf("parsing crash tracker type: %s", err)
	}
	crashTrackerClient, err := crashtracker.GetClient(ctx, crashtracker.CrashTrackerOptions{
		CrashTrackerType: crashTrackerType,
		Environment:      globalConfig.Environment,
		GitCommit:        GitCommit,
		SentryDSN:        globalConfig.SentryDSN,
	})
	if err != nil {
		log.Fatalf("creating crash tracker client: %s", err)
	}
	return monitorService, crashTrackerClient
}
