package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"filehub/internal/config"
	"filehub/internal/logging"
	"filehub/internal/migrations"
	"filehub/internal/storage/backends"
)

func newMigrateCmd(opts options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema for the postgres storage driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.LogLevel, true)
			applied, err := Migrate(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d migrations applied\n", len(applied))
			return nil
		},
	}
}

// Migrate connects to the configured database and applies pending migrations.
func Migrate(ctx context.Context, cfg *config.Config, logger zerolog.Logger) ([]string, error) {
	db, err := backends.OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	applied, err := migrations.Apply(ctx, db, logger)
	if err != nil {
		return applied, fmt.Errorf("apply migrations: %w", err)
	}
	return applied, nil
}
