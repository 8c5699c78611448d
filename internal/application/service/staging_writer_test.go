package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stockpulse/internal/application/port"
	"stockpulse/internal/domain"
)

// recorderStub 记录各类健康事件的计数（service 包测试共用）
type recorderStub struct {
	mu     sync.Mutex
	counts map[port.HealthKind]int
}

func newRecorderStub() *recorderStub {
	return &recorderStub{counts: make(map[port.HealthKind]int)}
}

func (r *recorderStub) Record(ev port.HealthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[ev.Kind]++
}

func (r *recorderStub) count(kind port.HealthKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[kind]
}

// flakyRepo 前 failN 次写入失败，之后成功
type flakyRepo struct {
	mu       sync.Mutex
	failN    int
	attempts int
	stored   []domain.MarketTick
}

func (r *flakyRepo) InsertTick(ctx context.Context, t *domain.MarketTick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.attempts <= r.failN {
		return errors.New("store unavailable")
	}
	r.stored = append(r.stored, *t)
	return nil
}

func (r *flakyRepo) InsertTicks(ctx context.Context, ticks []*domain.MarketTick) error { return nil }
func (r *flakyRepo) GetTicks(ctx context.Context, symbol string, start, end time.Time) ([]*domain.MarketTick, error) {
	return nil, nil
}
func (r *flakyRepo) DeleteOldTicks(ctx context.Context, before time.Time) error { return nil }
func (r *flakyRepo) Close() error                                               { return nil }

func (r *flakyRepo) storedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stored)
}

func testTick(symbol string, ts int64) domain.MarketTick {
	return domain.MarketTick{
		Symbol: symbol, Type: domain.EventTrade, Price: 100,
		ProviderTs: ts, IngestTs: ts + 1,
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStagingWriterRetriesThenSucceeds(t *testing.T) {
	repo := &flakyRepo{failN: 2}
	rec := newRecorderStub()
	w := NewStagingWriter(repo, rec, StagingWriterConfig{
		QueueSize: 8, RetryMax: 3, RetryDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if !w.Enqueue(testTick("AAPL", 1)) {
		t.Fatal("enqueue rejected")
	}

	waitFor(t, func() bool { return repo.storedCount() == 1 }, "tick to be staged")
	if got := rec.count(port.HealthStaged); got != 1 {
		t.Errorf("expected 1 staged event, got %d", got)
	}
	if got := rec.count(port.HealthStagingError); got != 2 {
		t.Errorf("expected 2 staging errors, got %d", got)
	}
}

func TestStagingWriterFatalAfterBudgetKeepsFlowing(t *testing.T) {
	repo := &flakyRepo{failN: 3} // first tick burns the whole budget (1 + 2 retries)
	rec := newRecorderStub()
	w := NewStagingWriter(repo, rec, StagingWriterConfig{
		QueueSize: 8, RetryMax: 2, RetryDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Enqueue(testTick("AAPL", 1))
	waitFor(t, func() bool { return rec.count(port.HealthStagingFatal) == 1 }, "fatal staging report")
	if repo.storedCount() != 0 {
		t.Errorf("expected dropped tick, got %d stored", repo.storedCount())
	}

	// the store recovered; the next tick must still flow
	w.Enqueue(testTick("AAPL", 2))
	waitFor(t, func() bool { return repo.storedCount() == 1 }, "next tick staged")
}

func TestStagingWriterQueueOverflow(t *testing.T) {
	repo := &flakyRepo{}
	rec := newRecorderStub()
	w := NewStagingWriter(repo, rec, StagingWriterConfig{
		QueueSize: 1, RetryMax: 1, RetryDelay: time.Millisecond,
	})
	// writer not running: queue fills immediately

	if !w.Enqueue(testTick("AAPL", 1)) {
		t.Fatal("first enqueue rejected")
	}
	if w.Enqueue(testTick("AAPL", 2)) {
		t.Fatal("second enqueue should overflow")
	}
	if got := rec.count(port.HealthStagingFatal); got != 1 {
		t.Errorf("expected 1 staging failure for overflow, got %d", got)
	}
}
