package cmd

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/citylore/server/internal/storage/postgres"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete events that have already ended",
	Long: `Delete events whose end date (or start date, for single-day
events) is before today. The nightly background sweep does the same
thing; this command exists for manual runs and cron fallbacks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}

		ctx := cmd.Context()
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()

		repo, err := postgres.NewRepository(pool)
		if err != nil {
			return fmt.Errorf("repository init failed: %w", err)
		}

		today := time.Now().UTC().Truncate(24 * time.Hour)
		deleted, err := repo.Events().DeletePast(ctx, today)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d past event(s)\n", deleted)
		return nil
	},
}
