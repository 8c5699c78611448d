package port

import (
	"context"
	"time"

	"stockpulse/internal/domain"
)

// Repository is the staging store for normalized ticks.
//
// InsertTick must be idempotent on (symbol, provider ts, event type):
// replaying the same tick any number of times leaves exactly one record,
// so at-least-once redelivery upstream never duplicates storage.
type Repository interface {
	InsertTick(ctx context.Context, tick *domain.MarketTick) error
	InsertTicks(ctx context.Context, ticks []*domain.MarketTick) error
	GetTicks(ctx context.Context, symbol string, start, end time.Time) ([]*domain.MarketTick, error)
	DeleteOldTicks(ctx context.Context, before time.Time) error
	Close() error
}
