package main

import (
	"fmt"

	"hookwatch/internal/bootstrap"
	"hookwatch/internal/config"
	"hookwatch/internal/migrate"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			if cfg.DBDriver == "" || cfg.DBDSN == "" {
				return fmt.Errorf("no database configured; set HOOKWATCH_DB_DRIVER and HOOKWATCH_DB_DSN")
			}
			logger, sync, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer sync()

			db, err := bootstrap.OpenDB(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			applied, err := migrate.Default().Apply(cmd.Context(), db, cfg.DBDialect)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "dialect", cfg.DBDialect, "versions", applied)
			return nil
		},
	}
}
