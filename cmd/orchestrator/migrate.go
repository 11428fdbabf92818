package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kevin07696/transaction-orchestrator/internal/adapters/postgres"
	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/pkg/security"
)

func migrateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		Long: `Apply the embedded schema migrations to the database named by the DB_* variables.

Migrations already recorded in schema_migrations are skipped, so the command is
safe to run on every deploy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadFromEnv()
			logger, err := security.NewLogger(cfg.Logger.Level, cfg.Logger.Development)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := openPostgres(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := db.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("Migrations complete", zap.Int("applied", applied))
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall migration timeout")
	return cmd
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*postgres.DB, error) {
	dbCfg := postgres.DefaultConfig(cfg.Database.ConnectionString())
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns

	db, err := postgres.Open(ctx, dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
