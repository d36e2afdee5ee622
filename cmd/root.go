package cmd

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opsplane/opsplane-backend/pkg/log"
)

// Version is overridden at build time with
// go build -ldflags "-X github.com/opsplane/opsplane-backend/cmd.Version=..."
var (
	Version   = "dev"
	GitCommit = ""
)

var globalConfig Config

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "opsplane",
		Short:   "OpsPlane business operations backend",
		Long:    "OpsPlane is a multi-tenant backend for service businesses: bookings, tasks, a financial ledger, commissions, payroll and payouts.",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			globalConfig = loadConfig()
			setLogLevel(globalConfig.LogLevel)
			log.Info("Version: ", Version)
			log.Info("GitCommit: ", GitCommit)
		},
		Run: func(cmd *cobra.Command, args []string) {
			if err := cmd.Help(); err != nil {
				log.Fatalf("calling help command: %s", err)
			}
		},
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(schedulerCmd())
	cmd.AddCommand(dbCmd())
	cmd.AddCommand(lintCmd())
	return cmd
}

func setLogLevel(raw string) {
	level, err := logrus.ParseLevel(strings.ToLower(raw))
	if err != nil {
		log.Warnf("invalid log level %q, defaulting to INFO", raw)
		level = logrus.InfoLevel
	}
	log.DefaultLogger.SetLevel(level)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatalf("executing command: %s", err)
	}
}
