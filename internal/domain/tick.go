package domain

import (
	"errors"
	"fmt"
	"strings"
)

// EventType 市场事件类型
type EventType string

const (
	EventTrade  EventType = "trade"
	EventQuote  EventType = "quote"
	EventVolume EventType = "volume"
)

func (e EventType) Valid() bool {
	switch e {
	case EventTrade, EventQuote, EventVolume:
		return true
	}
	return false
}

// MarketTick is one normalized market event. Price fields are meaningful
// depending on Type: Price/Size for trades, Bid/Ask for quotes, Volume for
// volume updates. Timestamps are unix ms.
type MarketTick struct {
	Symbol     string    // "AAPL"
	Type       EventType // trade / quote / volume
	Price      float64   // last trade price
	Bid        float64   // best bid (quote)
	Ask        float64   // best ask (quote)
	Size       int64     // trade size
	Volume     int64     // cumulative volume (volume events)
	ProviderTs int64     // event time, set by the provider, preserved exactly
	IngestTs   int64     // processing time, assigned at normalization
}

var (
	ErrEmptySymbol   = errors.New("tick symbol empty")
	ErrBadEventType  = errors.New("tick event type invalid")
	ErrNegativePrice = errors.New("tick price negative")
	ErrNegativeSize  = errors.New("tick size negative")
	ErrClockSkew     = errors.New("tick provider ts after ingest ts")
)

func (t *MarketTick) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return ErrEmptySymbol
	}
	if !t.Type.Valid() {
		return ErrBadEventType
	}
	if t.Price < 0 || t.Bid < 0 || t.Ask < 0 {
		return ErrNegativePrice
	}
	if t.Size < 0 || t.Volume < 0 {
		return ErrNegativeSize
	}
	if t.IngestTs > 0 && t.ProviderTs > t.IngestTs {
		return ErrClockSkew
	}
	return nil
}

// Key 返回去重键 (symbol, provider ts, event type)，重放同一 tick 不会重复入库
func (t *MarketTick) Key() string {
	return fmt.Sprintf("%s:%d:%s", t.Symbol, t.ProviderTs, t.Type)
}
