// Package backends 根据配置打开具体的共享存储实现。
package backends

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"filehub/internal/config"
	"filehub/internal/database"
	"filehub/internal/migrations"
	"filehub/internal/storage"
	"filehub/internal/storage/datastore"
	"filehub/internal/storage/local"
	"filehub/internal/storage/postgres"
	"filehub/internal/storage/s3"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

// Open 打开 cfg.StorageDriver 指定的存储。返回的 Closer 用于释放连接或文件锁，调用方负责关闭。
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Store, io.Closer, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config is nil")
	}
	log := logger.With().Str("driver", cfg.StorageDriver).Logger()

	switch cfg.StorageDriver {
	case config.DriverMemory:
		store := datastore.NewMemory()
		log.Info().Msg("using in-memory store")
		return store, store, nil

	case config.DriverBadger:
		path := filepath.Join(cfg.StorageDir, "badger")
		store, err := datastore.OpenBadger(path)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", path).Msg("using badger store")
		return store, store, nil

	case config.DriverLocal:
		store, err := local.New(afero.NewOsFs(), cfg.StorageDir)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("dir", cfg.StorageDir).Msg("using local file store")
		return store, nopCloser, nil

	case config.DriverPostgres:
		db, err := OpenDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if cfg.DBAutoMigrate {
			if _, err := migrations.Apply(ctx, db, log); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("using postgres store")
		return postgres.NewStore(db), db, nil

	case config.DriverS3:
		store, err := s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("endpoint", cfg.S3Endpoint).Str("bucket", cfg.S3Bucket).Msg("using s3 store")
		return store, nopCloser, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// OpenDatabase 连接 cfg 描述的 PostgreSQL。
func OpenDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return database.Connect(ctx, cfg.PostgresDSN(), database.Options{})
}
