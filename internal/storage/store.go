package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"halving-chart/internal/config"
)

// ErrNotConfigured indicates the storage backend was not initialised.
var ErrNotConfigured = errors.New("storage: backend not configured")

// BarStore defines operations for the bar cache.
type BarStore interface {
	UpsertBars(ctx context.Context, bars []BarRecord) (int, error)
	ListBarsBetween(ctx context.Context, symbol, interval string, from, to time.Time) ([]BarRecord, error)
	ListRecentBars(ctx context.Context, symbol, interval string, limit int) ([]BarRecord, error)
	CountBars(ctx context.Context, symbol, interval string) (int64, error)
}

// AlertStore defines operations for notification auditing.
type AlertStore interface {
	// InsertAlert stores alert unless one with the same symbol, bar time and
	// kind exists; inserted reports which happened.
	InsertAlert(ctx context.Context, alert AlertRecord) (rec AlertRecord, inserted bool, err error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Backend is a complete storage implementation.
type Backend interface {
	BarStore
	AlertStore
	AdvisoryLocker
	EnsureSchema(ctx context.Context) error
	Close()
}

// Open connects the backend selected by cfg.Driver and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Backend, error) {
	if cfg.DSN == "" {
		return nil, ErrNotConfigured
	}

	var backend Backend
	switch cfg.Driver {
	case "postgres":
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		backend = NewStore(pool)
	case "sqlite", "":
		store, err := OpenSQLite(cfg)
		if err != nil {
			return nil, err
		}
		backend = store
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := backend.EnsureSchema(ctx); err != nil {
		backend.Close()
		return nil, err
	}
	return backend, nil
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}
