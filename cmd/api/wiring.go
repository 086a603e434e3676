package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"free-shipping-bar/internal/config"
	"free-shipping-bar/internal/infrastructure/repository"
	"free-shipping-bar/internal/infrastructure/statestore"
	"free-shipping-bar/internal/ports"
	"free-shipping-bar/migrations"

	"github.com/rs/zerolog"
)

// newLogger builds the root logger every component derives from.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

// openRepository connects the configured Shop/Settings store and applies its migrations.
func openRepository(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ports.Repository, error) {
	dialect := cfg.Database.Driver
	var (
		repo  ports.Repository
		files fs.FS
		err   error
	)

	switch dialect {
	case config.DriverSQLite:
		repo, err = repository.NewSQLiteRepository(ctx, cfg.Database.URL, logger)
	case config.DriverPostgres:
		repo, err = repository.NewPostgresRepository(ctx, cfg.Database.URL, logger)
	case config.DriverMongo:
		repo, err = repository.ConnectMongo(ctx, cfg.Database.URL, cfg.Database.MongoDatabase)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dialect, err)
	}

	if dialect != config.DriverMongo {
		if files, err = migrations.For(dialect); err != nil {
			repo.Close(ctx)
			return nil, err
		}
	}
	if err := repo.Migrate(ctx, files); err != nil {
		repo.Close(ctx)
		return nil, fmt.Errorf("migrate %s: %w", dialect, err)
	}

	logger.Info().Str("driver", dialect).Msg("Database ready")
	return repo, nil
}

// stateStore is a StateStore that holds resources.
type stateStore interface {
	ports.StateStore
	Close() error
}

type memoryStateStore struct {
	*statestore.MemoryStore
}

func (memoryStateStore) Close() error { return nil }

func openStateStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (stateStore, error) {
	switch cfg.StateStore.Kind {
	case config.StateStoreRedis:
		store, err := statestore.NewRedisStore(cfg.StateStore.RedisURL, cfg.StateStore.TTL, logger)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, err
		}
		logger.Info().Msg("Using Redis OAuth state store")
		return store, nil
	default:
		logger.Info().Msg("Using in-memory OAuth state store")
		return memoryStateStore{statestore.NewMemoryStore(cfg.StateStore.TTL)}, nil
	}
}
