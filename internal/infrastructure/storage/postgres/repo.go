package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"stockpulse/internal/application/port"
	"stockpulse/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS ticks (
  id BIGSERIAL PRIMARY KEY,
  symbol TEXT NOT NULL,
  event TEXT NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  bid DOUBLE PRECISION NOT NULL,
  ask DOUBLE PRECISION NOT NULL,
  size BIGINT NOT NULL,
  volume BIGINT NOT NULL,
  ts_ms BIGINT NOT NULL,
  ingest_ts_ms BIGINT NOT NULL,
  created_at BIGINT NOT NULL,
  UNIQUE(symbol, ts_ms, event)
);
CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts ON ticks(symbol, ts_ms);
CREATE INDEX IF NOT EXISTS idx_ticks_ts ON ticks(ts_ms);
`)
	return err
}

func (r *Repo) InsertTick(ctx context.Context, t *domain.MarketTick) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ticks(symbol, event, price, bid, ask, size, volume, ts_ms, ingest_ts_ms, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT(symbol, ts_ms, event) DO NOTHING
	`, t.Symbol, string(t.Type), t.Price, t.Bid, t.Ask, t.Size, t.Volume, t.ProviderTs, t.IngestTs, time.Now().UnixMilli())
	return err
}

func (r *Repo) InsertTicks(ctx context.Context, ticks []*domain.MarketTick) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for _, t := range ticks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ticks(symbol, event, price, bid, ask, size, volume, ts_ms, ingest_ts_ms, created_at)
			VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT(symbol, ts_ms, event) DO NOTHING
		`, t.Symbol, string(t.Type), t.Price, t.Bid, t.Ask, t.Size, t.Volume, t.ProviderTs, t.IngestTs, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) GetTicks(ctx context.Context, symbol string, start, end time.Time) ([]*domain.MarketTick, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, event, price, bid, ask, size, volume, ts_ms, ingest_ts_ms
		FROM ticks WHERE symbol=$1 AND ts_ms>=$2 AND ts_ms<=$3 ORDER BY ts_ms
	`, symbol, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.MarketTick
	for rows.Next() {
		var t domain.MarketTick
		var event string
		if err := rows.Scan(&t.Symbol, &event, &t.Price, &t.Bid, &t.Ask, &t.Size, &t.Volume, &t.ProviderTs, &t.IngestTs); err != nil {
			return nil, err
		}
		t.Type = domain.EventType(event)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *Repo) DeleteOldTicks(ctx context.Context, before time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM ticks WHERE ts_ms < $1`, before.UnixMilli())
	return err
}

var _ port.Repository = (*Repo)(nil)
