package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"filehub/internal/config"
	"filehub/internal/logging"
	"filehub/internal/registry"
	"filehub/internal/session"
	"filehub/internal/storage/backends"
	"filehub/internal/transfer"
)

// app bundles the components one command invocation needs.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	fs       afero.Fs
	registry *registry.Registry
	engine   *transfer.Engine
	session  *session.Controller
	closer   io.Closer
}

func (a *app) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// loadConfig reads the environment configuration and applies flag overrides.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if d := opts.driver(); d != "" {
		cfg.StorageDriver = d
	}
	if dir := opts.dataDir(); dir != "" {
		cfg.StorageDir = dir
	}
	if lvl := opts.logLevel(); lvl != "" {
		cfg.LogLevel = lvl
	}
	if opts.verbose() {
		cfg.LogLevel = "debug"
	}
	if opts.instant() {
		cfg.TickInterval = time.Millisecond
		cfg.MinUploadTime = time.Millisecond
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp loads configuration, then opens the store and wires registry,
// engine and session. Progress bars go to the command's stderr unless quiet
// is set.
func newApp(ctx context.Context, cmd *cobra.Command, opts options, pretty bool) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if pretty && opts.logLevel() == "" && !opts.verbose() {
		// 一次性命令默认只输出警告，避免日志与进度条交错
		level = "warn"
	}
	logger := logging.New(level, pretty || cfg.LogPretty)

	var reporter transfer.Reporter = transfer.NopReporter{}
	if !opts.quiet() && cmd != nil {
		reporter = transfer.NewBarReporter(cmd.ErrOrStderr())
	}
	return wire(ctx, cfg, logger, reporter)
}

// wire builds the component graph on top of an already loaded config.
func wire(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reporter transfer.Reporter) (*app, error) {
	store, closer, err := backends.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}

	reg := registry.New(store, logger, registry.Options{
		FetchConcurrency: cfg.FetchConcurrency,
		SuffixLength:     cfg.IDSuffixLength,
	})
	engine := transfer.New(reg, logger, transfer.Options{
		TickInterval:  cfg.TickInterval,
		MaxIncrement:  cfg.MaxIncrement,
		MinUploadTime: cfg.MinUploadTime,
		MaxTicks:      cfg.MaxProgressTicks,
		Reporter:      reporter,
	})

	return &app{
		cfg:      cfg,
		log:      logger,
		fs:       afero.NewOsFs(),
		registry: reg,
		engine:   engine,
		session:  session.New(reg, engine, logger),
		closer:   closer,
	}, nil
}
