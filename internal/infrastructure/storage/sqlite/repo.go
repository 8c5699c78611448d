package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"stockpulse/internal/application/port"
	"stockpulse/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

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
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  symbol TEXT NOT NULL,
  event TEXT NOT NULL,
  price REAL NOT NULL,
  bid REAL NOT NULL,
  ask REAL NOT NULL,
  size INTEGER NOT NULL,
  volume INTEGER NOT NULL,
  ts_ms INTEGER NOT NULL,
  ingest_ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  UNIQUE(symbol, ts_ms, event)
);
CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts ON ticks(symbol, ts_ms);
CREATE INDEX IF NOT EXISTS idx_ticks_ts ON ticks(ts_ms);
`)
	return err
}

// InsertTick 幂等写入：同 (symbol, ts_ms, event) 重放不产生第二行
func (r *Repo) InsertTick(ctx context.Context, t *domain.MarketTick) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ticks(symbol, event, price, bid, ask, size, volume, ts_ms, ingest_ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ticks(symbol, event, price, bid, ask, size, volume, ts_ms, ingest_ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, ts_ms, event) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, t := range ticks {
		if _, err := stmt.ExecContext(ctx, t.Symbol, string(t.Type), t.Price, t.Bid, t.Ask, t.Size, t.Volume, t.ProviderTs, t.IngestTs, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) GetTicks(ctx context.Context, symbol string, start, end time.Time) ([]*domain.MarketTick, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, event, price, bid, ask, size, volume, ts_ms, ingest_ts_ms
		FROM ticks WHERE symbol=? AND ts_ms>=? AND ts_ms<=? ORDER BY ts_ms
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
	_, err := r.db.ExecContext(ctx, `DELETE FROM ticks WHERE ts_ms < ?`, before.UnixMilli())
	return err
}

// CountTicks 某符号的行数（测试与运维用）
func (r *Repo) CountTicks(ctx context.Context, symbol string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticks WHERE symbol=?`, symbol).Scan(&n)
	return n, err
}

var _ port.Repository = (*Repo)(nil)
