package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"stockpulse/internal/application/port"
)

// Pipeline wires feed -> normalizer -> publisher + staging writer and reports
// every stage to the health monitor. Messages are processed in receipt order
// on a single goroutine, which is what preserves per-symbol FIFO downstream.
type Pipeline struct {
	feed   port.Feed
	norm   *Normalizer
	pub    port.Publisher
	writer *StagingWriter
	health port.HealthRecorder
}

func NewPipeline(feed port.Feed, norm *Normalizer, pub port.Publisher, writer *StagingWriter, health port.HealthRecorder) *Pipeline {
	return &Pipeline{feed: feed, norm: norm, pub: pub, writer: writer, health: health}
}

// Run consumes the feed until the context ends or the feed closes its
// message channel (reconnect budget spent or Close called). Malformed
// messages are counted and skipped; one bad message never stalls the stream.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.feed == nil {
		return ErrNoFeed
	}

	go p.writer.Run(ctx)

	msgs := p.feed.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-msgs:
			if !ok {
				log.Warn().Str("feed", p.feed.Name()).Msg("feed message channel closed")
				return nil
			}
			p.process(raw)
		}
	}
}

func (p *Pipeline) process(raw port.RawMessage) {
	p.health.Record(port.HealthEvent{Kind: port.HealthReceived})

	tick, err := p.norm.Normalize(raw)
	if err != nil {
		p.health.Record(port.HealthEvent{Kind: port.HealthMalformed, Err: err})
		log.Debug().Err(err).Msg("dropped malformed message")
		return
	}
	p.health.Record(port.HealthEvent{Kind: port.HealthNormalized})

	// fan-out: both sides are accounted before the tick counts as processed
	p.pub.Publish(tick)
	p.health.Record(port.HealthEvent{Kind: port.HealthPublished})
	p.writer.Enqueue(tick)
}
