package service

import (
	"context"
	"fmt"
	"time"

	"stockpulse/internal/application/port"
	"stockpulse/internal/domain"
)

// Reporter 周期性把健康快照渲染到控制台 sink：
// 短周期刷新 live 行，长周期追加一条带时间戳的快照行。
type Reporter struct {
	health    port.HealthReader
	sink      port.Sink
	liveEvery time.Duration
	snapEvery time.Duration
}

func NewReporter(health port.HealthReader, sink port.Sink, liveEvery, snapEvery time.Duration) *Reporter {
	if liveEvery <= 0 {
		liveEvery = time.Second
	}
	if snapEvery <= 0 {
		snapEvery = time.Minute
	}
	return &Reporter{health: health, sink: sink, liveEvery: liveEvery, snapEvery: snapEvery}
}

func (r *Reporter) Run(ctx context.Context) {
	liveTicker := time.NewTicker(r.liveEvery)
	defer liveTicker.Stop()
	snapTicker := time.NewTicker(r.snapEvery)
	defer snapTicker.Stop()

	_ = r.sink.WriteLive(RenderHealth(r.health.Snapshot(), true))

	for {
		select {
		case <-ctx.Done():
			_ = r.sink.NewLine()
			return
		case <-liveTicker.C:
			_ = r.sink.WriteLive(RenderHealth(r.health.Snapshot(), true))
		case now := <-snapTicker.C:
			_ = r.sink.WriteSnapshot(now, RenderHealth(r.health.Snapshot(), false))
		}
	}
}

// RenderHealth formats one status line from a snapshot.
func RenderHealth(s domain.HealthSnapshot, live bool) string {
	line := fmt.Sprintf("[%s] %.1f msg/s recv=%d norm=%d bad=%d pub=%d drop=%d staged=%d lost=%d reconn=%d",
		s.ConnState, s.Rate, s.Received, s.Normalized, s.Malformed,
		s.Published, s.PublishDrops, s.Staged, s.StagingFails, s.Reconnects)
	if s.LastError != "" {
		line += " last_err=" + s.LastError
	}
	if live {
		return "\r" + line
	}
	return line
}
