package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tracker/internal/storage"
	"tracker/internal/store/postgres"
)

// NewMigrateCommand creates the migrate command. It applies pending schema
// migrations for the relational backends and is a no-op for the others.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := Bootstrap(rootOpts.EnvFile, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			switch cfg.DataBackend {
			case "sqlite":
				if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
					return fmt.Errorf("migrate sqlite: %w", err)
				}
				logger.Info("SQLite migrations applied", "db_path", cfg.SQLiteDBPath)
			case "postgres":
				if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
					return fmt.Errorf("migrate postgres: %w", err)
				}
				logger.Info("PostgreSQL migrations applied")
			default:
				logger.Info("Backend has no schema to migrate", "backend", cfg.DataBackend)
			}
			return nil
		},
	}
}
