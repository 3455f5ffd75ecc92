package main

import (
	"context"

	"filehub/internal/cli"
	"filehub/internal/config"
	"filehub/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	applied, err := cli.Migrate(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	logger.Info().Strs("applied", applied).Msg("migrations applied")
}
