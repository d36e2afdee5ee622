package cmd

import (
	"strconv"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database schema commands",
		Run: func(cmd *cobra.Command, args []string) {
			if err := cmd.Help(); err != nil {
				log.Fatalf("calling help command: %s", err)
			}
		},
	}
	cmd.AddCommand(migrateCmd("migrate-up", "Apply pending migrations", migrate.Up))
	cmd.AddCommand(migrateCmd("migrate-down", "Roll back migrations", migrate.Down))
	return cmd
}

func migrateCmd(use, short string, dir migrate.MigrationDirection) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [count]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if globalConfig.DatabaseURL == "" {
				log.Fatalf("OPSPLANE_DATABASE_URL is required")
			}

			count := 0
			if len(args) == 1 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil {
					log.Fatalf("invalid migration count %q: %s", args[0], err)
				}
				count = parsed
			}

			applied, err := db.Migrate(globalConfig.DatabaseURL, dir, count)
			if err != nil {
				log.Fatalf("running migrations: %s", err)
			}
			log.Infof("successfully applied %d migrations", applied)
		},
	}
}
