package bus

import (
	"sync"
	"sync/atomic"

	"stockpulse/internal/application/port"
	"stockpulse/internal/domain"
)

// OverflowPolicy 订阅缓冲写满时的处理策略
type OverflowPolicy int

const (
	// DropOldest 丢最旧：慢消费者绝不阻塞上游
	DropOldest OverflowPolicy = iota
	// Block 阻塞：对上游施加背压
	Block
)

// Subscription is one consumer's bounded FIFO buffer on the bus.
type Subscription struct {
	name    string
	ch      chan domain.MarketTick
	done    chan struct{}
	dropped atomic.Uint64
	once    sync.Once
	bus     *Bus

	// sendMu serializes Close against an in-flight delivery so the
	// channel is never closed under a pending send
	sendMu sync.Mutex
	closed bool
}

func (s *Subscription) Name() string { return s.name }

// C 订阅者消费通道
func (s *Subscription) C() <-chan domain.MarketTick { return s.ch }

// Dropped 因溢出被丢弃的 tick 数
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close removes the subscription from the bus and closes its channel.
// Safe to call while a publish is in flight: a blocked delivery is released
// through done before the channel is closed.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
		s.sendMu.Lock()
		s.closed = true
		s.sendMu.Unlock()
		close(s.ch)
	})
}

// Bus is the in-process fan-out channel. Publish is called from the single
// pipeline goroutine in receipt order, which is what makes per-symbol FIFO
// hold for every subscriber: each subscription is one FIFO buffer and only
// one producer appends to it.
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	buffer int
	policy OverflowPolicy
	health port.HealthRecorder
}

func New(buffer int, policy OverflowPolicy, health port.HealthRecorder) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{buffer: buffer, policy: policy, health: health}
}

func (b *Bus) Subscribe(name string) *Subscription {
	sub := &Subscription{
		name: name,
		ch:   make(chan domain.MarketTick, b.buffer),
		done: make(chan struct{}),
		bus:  b,
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the tick to every current subscriber. Under DropOldest a
// full buffer evicts its head (counted, reported); under Block the publisher
// waits, pushing backpressure up to the source.
func (b *Bus) Publish(tick domain.MarketTick) {
	b.mu.RLock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, tick)
	}
}

func (b *Bus) deliver(sub *Subscription, tick domain.MarketTick) {
	sub.sendMu.Lock()
	defer sub.sendMu.Unlock()
	if sub.closed {
		return
	}

	select {
	case sub.ch <- tick:
		return
	default:
	}

	if b.policy == Block {
		select {
		case sub.ch <- tick:
		case <-sub.done: // subscriber detached mid-publish
		}
		return
	}

	// drop-oldest: evict the head, then retry once. With a single
	// producer the retry can only race a consumer draining the
	// buffer, so the second send succeeds or the buffer has room.
	select {
	case <-sub.ch:
		sub.dropped.Add(1)
		if b.health != nil {
			b.health.Record(port.HealthEvent{Kind: port.HealthPublishDrop})
		}
	default:
	}
	select {
	case sub.ch <- tick:
	default:
		sub.dropped.Add(1)
		if b.health != nil {
			b.health.Record(port.HealthEvent{Kind: port.HealthPublishDrop})
		}
	}
}

var _ port.Publisher = (*Bus)(nil)
