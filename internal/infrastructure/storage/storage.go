package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"stockpulse/internal/application/port"
	"stockpulse/internal/domain"
)

// InMemoryRepository is a simple in-memory staging store. Idempotency is
// enforced the same way the SQL backends do it: keyed on
// (symbol, provider ts, event type).
type InMemoryRepository struct {
	mu    sync.Mutex
	ticks map[string]*domain.MarketTick
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{ticks: make(map[string]*domain.MarketTick)}
}

func (r *InMemoryRepository) InsertTick(ctx context.Context, tick *domain.MarketTick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tick.Key()
	if _, ok := r.ticks[key]; ok {
		return nil
	}
	cp := *tick
	r.ticks[key] = &cp
	return nil
}

func (r *InMemoryRepository) InsertTicks(ctx context.Context, ticks []*domain.MarketTick) error {
	for _, t := range ticks {
		if err := r.InsertTick(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *InMemoryRepository) GetTicks(ctx context.Context, symbol string, start, end time.Time) ([]*domain.MarketTick, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.MarketTick
	s, e := start.UnixMilli(), end.UnixMilli()
	for _, t := range r.ticks {
		if t.Symbol == symbol && t.ProviderTs >= s && t.ProviderTs <= e {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderTs < out[j].ProviderTs })
	return out, nil
}

func (r *InMemoryRepository) DeleteOldTicks(ctx context.Context, before time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cut := before.UnixMilli()
	for k, t := range r.ticks {
		if t.ProviderTs < cut {
			delete(r.ticks, k)
		}
	}
	return nil
}

func (r *InMemoryRepository) Close() error { return nil }

// Len 当前存量（测试用）
func (r *InMemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

var _ port.Repository = (*InMemoryRepository)(nil)
