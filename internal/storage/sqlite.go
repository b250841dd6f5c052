package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"halving-chart/internal/config"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS bars (
		symbol     TEXT    NOT NULL,
		timeframe  TEXT    NOT NULL,
		bucket_ts  INTEGER NOT NULL,
		open       REAL    NOT NULL,
		high       REAL    NOT NULL,
		low        REAL    NOT NULL,
		close      REAL    NOT NULL,
		volume     REAL    NOT NULL,
		source     TEXT    NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (symbol, timeframe, bucket_ts)
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol     TEXT    NOT NULL,
		bar_ts     INTEGER NOT NULL,
		kind       TEXT    NOT NULL,
		message    TEXT    NOT NULL,
		value      REAL    NOT NULL,
		channels   TEXT    NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		UNIQUE (symbol, bar_ts, kind)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at)`,
}

const (
	sqliteUpsertBarSQL = `INSERT INTO bars
		(symbol, timeframe, bucket_ts, open, high, low, close, volume, source, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (symbol, timeframe, bucket_ts) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			source = excluded.source,
			updated_at = excluded.updated_at`

	sqliteBarColumns = `symbol, timeframe, bucket_ts, open, high, low, close, volume, source, updated_at`
)

// SQLiteStore is the embedded SQLite backend.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex

	lockMu sync.Mutex
	locks  map[int64]struct{}
}

// OpenSQLite opens (or creates) the database file named by cfg.DSN.
func OpenSQLite(cfg config.DatabaseConfig) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps :memory: databases and WAL writers consistent
	db.SetMaxOpenConns(1)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if !strings.Contains(cfg.DSN, ":memory:") {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	return &SQLiteStore{db: db, locks: make(map[int64]struct{})}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// EnsureSchema creates the tables when missing.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// TryAdvisoryLock provides an in-process lock; SQLite has no session locks.
func (s *SQLiteStore) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if _, held := s.locks[key]; held {
		return nil, false, nil
	}
	s.locks[key] = struct{}{}
	return func() {
		s.lockMu.Lock()
		delete(s.locks, key)
		s.lockMu.Unlock()
	}, true, nil
}

// UpsertBars writes bars in one transaction.
func (s *SQLiteStore) UpsertBars(ctx context.Context, bars []BarRecord) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertBarSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			b.Symbol,
			b.Interval,
			b.Bucket.Unix(),
			b.Open.InexactFloat64(),
			b.High.InexactFloat64(),
			b.Low.InexactFloat64(),
			b.Close.InexactFloat64(),
			b.Volume.InexactFloat64(),
			b.Source,
			now,
		); err != nil {
			return i, fmt.Errorf("upsert bar %s: %w", b.Bucket.Format(time.RFC3339), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(bars), nil
}

// ListBarsBetween lists bars with from <= bucket < to, oldest first.
func (s *SQLiteStore) ListBarsBetween(ctx context.Context, symbol, interval string, from, to time.Time) ([]BarRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteBarColumns+` FROM bars
		WHERE symbol = ? AND timeframe = ? AND bucket_ts >= ? AND bucket_ts < ?
		ORDER BY bucket_ts`,
		symbol, interval, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("list bars between: %w", err)
	}
	defer rows.Close()
	return scanSQLiteBars(rows)
}

// ListRecentBars lists the latest bars, newest first.
func (s *SQLiteStore) ListRecentBars(ctx context.Context, symbol, interval string, limit int) ([]BarRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteBarColumns+` FROM bars
		WHERE symbol = ? AND timeframe = ?
		ORDER BY bucket_ts DESC
		LIMIT ?`,
		symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent bars: %w", err)
	}
	defer rows.Close()
	return scanSQLiteBars(rows)
}

// CountBars counts cached bars for a symbol and interval.
func (s *SQLiteStore) CountBars(ctx context.Context, symbol, interval string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bars WHERE symbol = ? AND timeframe = ?`, symbol, interval).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count bars: %w", err)
	}
	return count, nil
}

// InsertAlert persists an alert emission unless it was already recorded.
func (s *SQLiteStore) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (symbol, bar_ts, kind, message, value, channels, created_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT (symbol, bar_ts, kind) DO NOTHING`,
		alert.Symbol,
		alert.BarTime.Unix(),
		alert.Kind,
		alert.Message,
		alert.Value.InexactFloat64(),
		strings.Join(alert.Channels, ","),
		now.Unix(),
	)
	if err != nil {
		return AlertRecord{}, false, fmt.Errorf("insert alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return AlertRecord{}, false, fmt.Errorf("insert alert: %w", err)
	}
	if affected == 0 {
		return alert, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return AlertRecord{}, false, fmt.Errorf("insert alert id: %w", err)
	}

	rec := alert
	rec.ID = id
	rec.CreatedAt = now
	return rec, true, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *SQLiteStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, bar_ts, kind, message, value, channels, created_at
		FROM alerts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		var barTS, createdAt int64
		var value float64
		var channels string
		if err := rows.Scan(&rec.ID, &rec.Symbol, &barTS, &rec.Kind, &rec.Message, &value, &channels, &createdAt); err != nil {
			return nil, err
		}
		rec.BarTime = time.Unix(barTS, 0).UTC()
		rec.Value = decimal.NewFromFloat(value)
		if channels != "" {
			rec.Channels = strings.Split(channels, ",")
		}
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

// DeleteAlertsBefore deletes historical alerts.
func (s *SQLiteStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < ?`, olderThan.Unix()); err != nil {
		return fmt.Errorf("delete alerts before: %w", err)
	}
	return nil
}

func scanSQLiteBars(rows *sql.Rows) ([]BarRecord, error) {
	var bars []BarRecord
	for rows.Next() {
		var rec BarRecord
		var bucket, updated int64
		var o, h, l, c, v float64
		if err := rows.Scan(&rec.Symbol, &rec.Interval, &bucket, &o, &h, &l, &c, &v, &rec.Source, &updated); err != nil {
			return nil, err
		}
		rec.Bucket = time.Unix(bucket, 0).UTC()
		rec.UpdatedAt = time.Unix(updated, 0).UTC()
		rec.Open = decimal.NewFromFloat(o)
		rec.High = decimal.NewFromFloat(h)
		rec.Low = decimal.NewFromFloat(l)
		rec.Close = decimal.NewFromFloat(c)
		rec.Volume = decimal.NewFromFloat(v)
		bars = append(bars, rec)
	}
	return bars, rows.Err()
}

var _ Backend = (*SQLiteStore)(nil)
