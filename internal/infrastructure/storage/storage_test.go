package storage

import (
	"context"
	"testing"
	"time"

	"stockpulse/internal/domain"
)

func trade(symbol string, ts int64, price float64) *domain.MarketTick {
	return &domain.MarketTick{
		Symbol: symbol, Type: domain.EventTrade, Price: price,
		ProviderTs: ts, IngestTs: ts + 1,
	}
}

func TestInMemoryRepoIdempotentReplay(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	tk := trade("AAPL", 1690000000123, 150.11)
	for i := 0; i < 5; i++ {
		if err := repo.InsertTick(ctx, tk); err != nil {
			t.Fatalf("InsertTick failed: %v", err)
		}
	}
	if repo.Len() != 1 {
		t.Errorf("expected exactly one record after replay, got %d", repo.Len())
	}
}

func TestInMemoryRepoGetTicksRange(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	repo.InsertTick(ctx, trade("AAPL", 1000, 1))
	repo.InsertTick(ctx, trade("AAPL", 2000, 2))
	repo.InsertTick(ctx, trade("AAPL", 3000, 3))
	repo.InsertTick(ctx, trade("TSLA", 2000, 9))

	got, err := repo.GetTicks(ctx, "AAPL", time.UnixMilli(1500), time.UnixMilli(3500))
	if err != nil {
		t.Fatalf("GetTicks failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 ticks, got %d", len(got))
	}
	if got[0].ProviderTs != 2000 || got[1].ProviderTs != 3000 {
		t.Errorf("ticks out of order: %d, %d", got[0].ProviderTs, got[1].ProviderTs)
	}
}

func TestInMemoryRepoDeleteOldTicks(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	repo.InsertTick(ctx, trade("AAPL", 1000, 1))
	repo.InsertTick(ctx, trade("AAPL", 5000, 2))

	if err := repo.DeleteOldTicks(ctx, time.UnixMilli(3000)); err != nil {
		t.Fatalf("DeleteOldTicks failed: %v", err)
	}
	if repo.Len() != 1 {
		t.Errorf("expected 1 tick after cleanup, got %d", repo.Len())
	}
}
