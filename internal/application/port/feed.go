package port

import (
	"context"

	"stockpulse/internal/domain"
)

// RawMessage 来自上游的原始消息，带接收时间（unix ms）
type RawMessage struct {
	Data       []byte
	ReceivedAt int64
}

// Feed is the upstream streaming connection. The implementation owns the
// socket and the subscription set exclusively; Subscribe/Unsubscribe are the
// only ways to mutate which symbols are streamed.
//
// Connect is manual: it is required both for the initial connection and to
// recover after the feed has entered StateFailed (reconnect budget spent).
type Feed interface {
	Name() string
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Unsubscribe(ctx context.Context, symbols []string) error
	Symbols() []string
	State() domain.ConnState
	Messages() <-chan RawMessage
	Close() error
}
