package port

import "stockpulse/internal/domain"

// Publisher fans a normalized tick out to the current subscribers of the
// internal channel. Delivery is at-least-once per subscriber with per-symbol
// FIFO; overflow handling is the implementation's configured policy and must
// never propagate an error back into the pipeline.
type Publisher interface {
	Publish(tick domain.MarketTick)
}
