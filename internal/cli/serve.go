package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"filehub/internal/api"
	"filehub/internal/config"
	"filehub/internal/logging"
	"filehub/internal/middleware"
)

func newServeCmd(opts options) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket progress stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.HTTPPort = port
			}
			logger := logging.New(cfg.LogLevel, cfg.LogPretty)
			return Serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (overrides PORT)")
	return cmd
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	hub := api.NewHub(middleware.NewOriginPolicy(cfg.CORSAllowedOrigins).CheckOrigin, logger)
	a, err := wire(ctx, cfg, logger, hub)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewFileHandler(a.registry, a.engine, cfg.MaxUploadSize, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		ReadHeaderTimeout: 5 * time.Second,
		// 上传与下载包含进度动画，写超时需覆盖最短上传时长
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		Handler:      api.NewRouter(cfg, logger, handler, hub),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("driver", cfg.StorageDriver).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
