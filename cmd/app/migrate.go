package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"companion-billing/internal/config"
	pg "companion-billing/internal/infra/db/postgres"
	"companion-billing/internal/infra/logging"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			return m.Down(cmd.Context(), steps)
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.LoadConfig(cfgPath, devMode)
				if err != nil {
					return err
				}
				logger := logging.New(cfg.Log, cfg.Runtime.Dev)
				v, err := pg.NewMigrator(cfg.Database.URL, cfg.Database.MigrationsTable).Up(cmd.Context())
				if err != nil {
					return err
				}
				logger.Info().Int64("version", v).Msg("migrations applied")
				return nil
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := migrator()
				if err != nil {
					return err
				}
				return m.Status(cmd.Context())
			},
		},
	)
	return cmd
}

func migrator() (*pg.Migrator, error) {
	cfg, err := config.LoadConfig(cfgPath, devMode)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return pg.NewMigrator(cfg.Database.URL, cfg.Database.MigrationsTable), nil
}
