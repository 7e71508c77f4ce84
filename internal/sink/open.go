package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/regimport/internal/core"
)

// Drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// DB is a sink that holds a connection.
type DB interface {
	core.Sink
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and tunes a sink.
type Config struct {
	Driver          string
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open connects the sink named by cfg.Driver and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(cfg.Driver) {
	case DriverPostgres, "":
		return openPostgres(ctx, cfg, logger)
	case DriverSQLite:
		path := strings.TrimPrefix(cfg.URL, "sqlite://")
		db, err := OpenSQLite(ctx, path, logger)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping sqlite: %w", err)
		}
		logger.Info("connected to database", "driver", DriverSQLite, "path", path)
		return db, nil
	case DriverMemory:
		logger.Info("using in-memory sink; nothing will be persisted")
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown sink driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		logger.Info("connected to database", "driver", DriverPostgres, "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		logger.Info("connected to database", "driver", DriverPostgres)
	}
	return NewPostgres(pool, logger), nil
}

var (
	_ DB = (*Postgres)(nil)
	_ DB = (*SQLite)(nil)
	_ DB = (*Memory)(nil)
)
