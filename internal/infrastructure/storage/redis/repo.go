package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"stockpulse/internal/application/port"
	"stockpulse/internal/domain"
)

// Repo mirrors ticks into Redis for external consumers: a latest-tick hash
// per symbol plus a capped stream and a pub/sub channel. Idempotency on the
// hash is last-write-wins; stream entries carry the dedup key so consumers
// can drop replays themselves.
type Repo struct {
	rdb        *redis.Client
	prefix     string
	ttl        time.Duration
	keyLatest  string // prefix + ":latest"
	tickStream string
	tickChan   string
}

type latestTick struct {
	Symbol     string  `json:"symbol"`
	Event      string  `json:"event"`
	Price      float64 `json:"price"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	Size       int64   `json:"size"`
	Volume     int64   `json:"volume"`
	ProviderTs int64   `json:"ts_ms"`
	IngestTs   int64   `json:"ingest_ts_ms"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Repo {
	if strings.TrimSpace(prefix) == "" {
		prefix = "stockpulse"
	}
	return &Repo{
		rdb:        rdb,
		prefix:     prefix,
		ttl:        ttl,
		keyLatest:  prefix + ":latest",
		tickStream: prefix + ":ticks",
		tickChan:   prefix + ":ticks:pub",
	}
}

func (r *Repo) InsertTick(ctx context.Context, t *domain.MarketTick) error {
	lt := latestTick{
		Symbol: t.Symbol, Event: string(t.Type),
		Price: t.Price, Bid: t.Bid, Ask: t.Ask,
		Size: t.Size, Volume: t.Volume,
		ProviderTs: t.ProviderTs, IngestTs: t.IngestTs,
	}
	b, _ := json.Marshal(lt)

	// Hash: field = "AAPL:trade" -> json
	field := fmt.Sprintf("%s:%s", t.Symbol, t.Type)
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, field, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: r.tickStream,
		MaxLen: 100000,
		Approx: true,
		Values: map[string]any{
			"key":     t.Key(),
			"payload": string(b),
		},
	})
	pipe.Publish(ctx, r.tickChan, string(b))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) InsertTicks(ctx context.Context, ticks []*domain.MarketTick) error {
	for _, t := range ticks {
		if err := r.InsertTick(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// GetTicks 仅保留 latest hash，不做区间查询（时间序列查询走 SQL 后端）
func (r *Repo) GetTicks(ctx context.Context, symbol string, start, end time.Time) ([]*domain.MarketTick, error) {
	fields, err := r.rdb.HGetAll(ctx, r.keyLatest).Result()
	if err != nil {
		return nil, err
	}
	var out []*domain.MarketTick
	s, e := start.UnixMilli(), end.UnixMilli()
	for _, raw := range fields {
		var lt latestTick
		if err := json.Unmarshal([]byte(raw), &lt); err != nil {
			continue
		}
		if lt.Symbol != symbol || lt.ProviderTs < s || lt.ProviderTs > e {
			continue
		}
		out = append(out, &domain.MarketTick{
			Symbol: lt.Symbol, Type: domain.EventType(lt.Event),
			Price: lt.Price, Bid: lt.Bid, Ask: lt.Ask,
			Size: lt.Size, Volume: lt.Volume,
			ProviderTs: lt.ProviderTs, IngestTs: lt.IngestTs,
		})
	}
	return out, nil
}

func (r *Repo) DeleteOldTicks(ctx context.Context, before time.Time) error {
	// latest hash expires via TTL; the stream is capped by MaxLen
	return nil
}

func (r *Repo) Close() error { return r.rdb.Close() }

var _ port.Repository = (*Repo)(nil)
