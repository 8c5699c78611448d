package health

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"stockpulse/internal/application/port"
	"stockpulse/internal/domain"
)

// Monitor 被动观测管道各阶段。单写者：计数器只由 Run 协程修改，
// 读者通过 Snapshot 拿值拷贝，不持共享引用。
type Monitor struct {
	events  chan port.HealthEvent
	snapReq chan chan domain.HealthSnapshot
	stopped chan struct{} // closed when Run returns
	window  time.Duration
	metrics *Metrics // optional prometheus mirror

	// owned by the Run goroutine
	snap    domain.HealthSnapshot
	buckets map[int64]uint64 // unix sec -> received count, pruned to window
}

func NewMonitor(window time.Duration, metrics *Metrics) *Monitor {
	if window <= 0 {
		window = 10 * time.Second
	}
	return &Monitor{
		events:  make(chan port.HealthEvent, 4096),
		snapReq: make(chan chan domain.HealthSnapshot),
		stopped: make(chan struct{}),
		window:  window,
		metrics: metrics,
		buckets: make(map[int64]uint64),
	}
}

// Record hands an event to the monitor. Never blocks the pipeline: if the
// monitor falls behind, observations are shed, not the stream.
func (m *Monitor) Record(ev port.HealthEvent) {
	select {
	case m.events <- ev:
	default:
	}
}

// Snapshot returns a consistent value copy of the counters. After Run has
// returned it answers with the last state instead of blocking the caller.
func (m *Monitor) Snapshot() domain.HealthSnapshot {
	req := make(chan domain.HealthSnapshot, 1)
	select {
	case m.snapReq <- req:
		return <-req
	case <-m.stopped:
		out := m.snap
		out.TakenAt = time.Now()
		return out
	}
}

func (m *Monitor) Run(ctx context.Context) {
	defer close(m.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			m.apply(ev)
		case req := <-m.snapReq:
			req <- m.take()
		}
	}
}

func (m *Monitor) apply(ev port.HealthEvent) {
	switch ev.Kind {
	case port.HealthReceived:
		m.snap.Received++
		m.buckets[time.Now().Unix()]++
	case port.HealthNormalized:
		m.snap.Normalized++
	case port.HealthMalformed:
		m.snap.Malformed++
		m.setErr(ev.Err)
	case port.HealthPublished:
		m.snap.Published++
	case port.HealthPublishDrop:
		m.snap.PublishDrops++
	case port.HealthStaged:
		m.snap.Staged++
	case port.HealthStagingError:
		m.setErr(ev.Err)
	case port.HealthStagingFatal:
		m.snap.StagingFails++
		m.setErr(ev.Err)
	case port.HealthReconnect:
		m.snap.Reconnects++
		m.snap.ConsecFails = ev.Fails
		m.setErr(ev.Err)
	case port.HealthStateChange:
		m.snap.ConnState = ev.State
		if ev.State == domain.StateStreaming {
			m.snap.ConsecFails = 0
		}
	case port.HealthFatal:
		m.setErr(ev.Err)
		log.Error().Err(ev.Err).Msg("pipeline fatal condition reported")
	}

	if m.metrics != nil {
		m.metrics.apply(ev)
	}
}

func (m *Monitor) setErr(err error) {
	if err == nil {
		return
	}
	m.snap.LastError = err.Error()
	m.snap.LastErrorAt = time.Now()
}

func (m *Monitor) take() domain.HealthSnapshot {
	now := time.Now()
	floor := now.Unix() - int64(m.window/time.Second)

	var sum uint64
	for sec, n := range m.buckets {
		if sec < floor {
			delete(m.buckets, sec)
			continue
		}
		sum += n
	}

	out := m.snap
	out.Rate = float64(sum) / m.window.Seconds()
	out.TakenAt = now
	return out
}

var (
	_ port.HealthRecorder = (*Monitor)(nil)
	_ port.HealthReader   = (*Monitor)(nil)
)
