package port

import "stockpulse/internal/domain"

// HealthKind 健康事件种类
type HealthKind int

const (
	HealthReceived HealthKind = iota
	HealthNormalized
	HealthMalformed
	HealthPublished
	HealthPublishDrop
	HealthStaged
	HealthStagingError
	HealthStagingFatal
	HealthReconnect
	HealthStateChange
	HealthFatal
)

// HealthEvent 管道各阶段上报的一条观测事件
type HealthEvent struct {
	Kind  HealthKind
	State domain.ConnState // for HealthStateChange
	Err   error            // for error kinds
	Fails int              // consecutive failures, for HealthReconnect
}

// HealthRecorder receives events from every pipeline stage. Purely
// observational: it holds no authority over pipeline behavior.
type HealthRecorder interface {
	Record(ev HealthEvent)
}

// HealthReader hands out consistent value snapshots of the counters.
type HealthReader interface {
	Snapshot() domain.HealthSnapshot
}
