package domain

import "time"

// HealthSnapshot is a point-in-time copy of the pipeline counters.
// Ephemeral: recomputed on demand, never persisted.
type HealthSnapshot struct {
	ConnState    ConnState
	Received     uint64  // raw messages received from the provider
	Normalized   uint64  // messages normalized into ticks
	Malformed    uint64  // messages dropped by the normalizer
	Published    uint64  // ticks delivered to at least one subscriber
	PublishDrops uint64  // ticks evicted from subscriber buffers
	Staged       uint64  // ticks durably written
	StagingFails uint64  // staging writes lost after retry budget
	Reconnects   uint64  // reconnect attempts since start
	ConsecFails  int     // consecutive connect failures
	Rate         float64 // received msgs/sec over the monitor window

	LastError   string
	LastErrorAt time.Time
	TakenAt     time.Time
}
