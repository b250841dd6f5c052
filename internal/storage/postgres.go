package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgSchemaSQL = `
CREATE TABLE IF NOT EXISTS bars (
    symbol     TEXT        NOT NULL,
    timeframe  TEXT        NOT NULL,
    bucket_ts  TIMESTAMPTZ NOT NULL,
    open       NUMERIC     NOT NULL,
    high       NUMERIC     NOT NULL,
    low        NUMERIC     NOT NULL,
    close      NUMERIC     NOT NULL,
    volume     NUMERIC     NOT NULL,
    source     TEXT        NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (symbol, timeframe, bucket_ts)
);
CREATE TABLE IF NOT EXISTS alerts (
    id         BIGSERIAL   PRIMARY KEY,
    symbol     TEXT        NOT NULL,
    bar_ts     TIMESTAMPTZ NOT NULL,
    kind       TEXT        NOT NULL,
    message    TEXT        NOT NULL,
    value      NUMERIC     NOT NULL,
    channels   TEXT[]      NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (symbol, bar_ts, kind)
);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts (created_at);`

	pgUpsertBarSQL = `INSERT INTO bars (
        symbol, timeframe, bucket_ts, open, high, low, close, volume, source, updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9, now()
    )
    ON CONFLICT (symbol, timeframe, bucket_ts) DO UPDATE
    SET
        open       = EXCLUDED.open,
        high       = EXCLUDED.high,
        low        = EXCLUDED.low,
        close      = EXCLUDED.close,
        volume     = EXCLUDED.volume,
        source     = EXCLUDED.source,
        updated_at = now();`

	pgListBarsBetweenSQL = `SELECT
        symbol, timeframe, bucket_ts,
        open::text, high::text, low::text, close::text, volume::text,
        source, updated_at
    FROM bars
    WHERE symbol = $1
      AND timeframe = $2
      AND bucket_ts >= $3
      AND bucket_ts < $4
    ORDER BY bucket_ts;`

	pgListRecentBarsSQL = `SELECT
        symbol, timeframe, bucket_ts,
        open::text, high::text, low::text, close::text, volume::text,
        source, updated_at
    FROM bars
    WHERE symbol = $1
      AND timeframe = $2
    ORDER BY bucket_ts DESC
    LIMIT $3;`

	pgCountBarsSQL = `SELECT COUNT(*) FROM bars WHERE symbol = $1 AND timeframe = $2;`

	pgInsertAlertSQL = `INSERT INTO alerts (
        symbol, bar_ts, kind, message, value, channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (symbol, bar_ts, kind) DO NOTHING
    RETURNING id, created_at;`

	pgListRecentAlertsSQL = `SELECT
        id, symbol, bar_ts, kind, message, value::text, channels, created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	pgDeleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store is the PostgreSQL backend.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock dies with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertBars writes bars in a single batch and returns how many were sent.
func (s *Store) UpsertBars(ctx context.Context, bars []BarRecord) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(pgUpsertBarSQL,
			b.Symbol,
			b.Interval,
			b.Bucket.UTC(),
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			b.Volume.String(),
			b.Source,
		)
	}

	results := pool.SendBatch(ctx, batch)
	for i := range bars {
		if _, execErr := results.Exec(); execErr != nil {
			_ = results.Close()
			return i, fmt.Errorf("upsert bar %s: %w", bars[i].Bucket.Format(time.RFC3339), execErr)
		}
	}
	if err := results.Close(); err != nil {
		return len(bars), fmt.Errorf("upsert bars: %w", err)
	}
	return len(bars), nil
}

// ListBarsBetween lists bars with from <= bucket < to, oldest first.
func (s *Store) ListBarsBetween(ctx context.Context, symbol, interval string, from, to time.Time) ([]BarRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListBarsBetweenSQL, symbol, interval, from.UTC(), to.UTC())
	if queryErr != nil {
		return nil, fmt.Errorf("list bars between: %w", queryErr)
	}
	defer rows.Close()

	return collectBars(rows, 0)
}

// ListRecentBars lists the latest bars, newest first.
func (s *Store) ListRecentBars(ctx context.Context, symbol, interval string, limit int) ([]BarRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListRecentBarsSQL, symbol, interval, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent bars: %w", queryErr)
	}
	defer rows.Close()

	return collectBars(rows, limit)
}

// CountBars counts cached bars for a symbol and interval.
func (s *Store) CountBars(ctx context.Context, symbol, interval string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, pgCountBarsSQL, symbol, interval).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count bars: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission unless it was already recorded.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, false, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	row := pool.QueryRow(ctx, pgInsertAlertSQL,
		alert.Symbol,
		alert.BarTime.UTC(),
		alert.Kind,
		alert.Message,
		alert.Value.String(),
		channels,
	)

	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return alert, false, nil
		}
		return AlertRecord{}, false, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, true, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		var valueStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.Symbol,
			&rec.BarTime,
			&rec.Kind,
			&rec.Message,
			&valueStr,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		value, convErr := decimal.NewFromString(valueStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse alert value: %w", convErr)
		}
		rec.Value = value
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, pgDeleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectBars(rows pgx.Rows, capacity int) ([]BarRecord, error) {
	bars := make([]BarRecord, 0, capacity)
	for rows.Next() {
		var rec BarRecord
		var openStr, highStr, lowStr, closeStr, volStr string
		if err := rows.Scan(
			&rec.Symbol,
			&rec.Interval,
			&rec.Bucket,
			&openStr,
			&highStr,
			&lowStr,
			&closeStr,
			&volStr,
			&rec.Source,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := parseDecimals(&rec, openStr, highStr, lowStr, closeStr, volStr); err != nil {
			return nil, err
		}
		bars = append(bars, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bars, nil
}

func parseDecimals(rec *BarRecord, open, high, low, close, volume string) error {
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"open", open, &rec.Open},
		{"high", high, &rec.High},
		{"low", low, &rec.Low},
		{"close", close, &rec.Close},
		{"volume", volume, &rec.Volume},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return nil
}

var _ Backend = (*Store)(nil)
