package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

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
	logger.Info().Msg("配置加载完成，开始启动服务")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Serve(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("服务异常退出")
	}
}
