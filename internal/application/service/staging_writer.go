package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"stockpulse/internal/application/port"
	"stockpulse/internal/domain"
)

// StagingWriterConfig 入库重试与队列配置
type StagingWriterConfig struct {
	QueueSize  int
	RetryMax   int
	RetryDelay time.Duration
	MaxDelay   time.Duration
}

func DefaultStagingWriterConfig() StagingWriterConfig {
	return StagingWriterConfig{
		QueueSize:  4096,
		RetryMax:   3,
		RetryDelay: 200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// StagingWriter persists ticks on its own goroutine so that a degraded store
// never stalls the live publish path. Writes that still fail after the retry
// budget are reported as fatal staging errors and dropped from staging only.
type StagingWriter struct {
	repo   port.Repository
	health port.HealthRecorder
	cfg    StagingWriterConfig
	queue  chan domain.MarketTick
}

func NewStagingWriter(repo port.Repository, health port.HealthRecorder, cfg StagingWriterConfig) *StagingWriter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultStagingWriterConfig().QueueSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultStagingWriterConfig().RetryDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultStagingWriterConfig().MaxDelay
	}
	return &StagingWriter{
		repo:   repo,
		health: health,
		cfg:    cfg,
		queue:  make(chan domain.MarketTick, cfg.QueueSize),
	}
}

// Enqueue hands a tick to the writer. A full queue counts as a staging
// failure for that tick; ingestion is never blocked.
func (w *StagingWriter) Enqueue(tick domain.MarketTick) bool {
	select {
	case w.queue <- tick:
		return true
	default:
		w.health.Record(port.HealthEvent{Kind: port.HealthStagingFatal, Err: errQueueFull})
		return false
	}
}

func (w *StagingWriter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-w.queue:
			w.write(ctx, tick)
		}
	}
}

func (w *StagingWriter) write(ctx context.Context, tick domain.MarketTick) {
	delay := w.cfg.RetryDelay
	var lastErr error

	for attempt := 0; attempt <= w.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = minDur(delay*2, w.cfg.MaxDelay)
		}

		err := w.repo.InsertTick(ctx, &tick)
		if err == nil {
			w.health.Record(port.HealthEvent{Kind: port.HealthStaged})
			return
		}
		lastErr = err
		w.health.Record(port.HealthEvent{Kind: port.HealthStagingError, Err: err})
		log.Warn().Err(err).Str("symbol", tick.Symbol).Int("attempt", attempt).Msg("staging write failed")
	}

	// retry budget spent: staging degraded, live path keeps flowing
	w.health.Record(port.HealthEvent{Kind: port.HealthStagingFatal, Err: lastErr})
	log.Error().Err(lastErr).Str("symbol", tick.Symbol).Msg("staging write dropped after retries")
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
