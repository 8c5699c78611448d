package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"stockpulse/internal/application/port"
	"stockpulse/internal/domain"
)

// NormalizationError 单条消息解析失败；只丢弃计数，绝不向下游传播
type NormalizationError struct {
	Reason string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize: %s: %v", e.Reason, e.Err)
	}
	return "normalize: " + e.Reason
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// wireEvent 上游数据消息的扁平 JSON 结构
// {"ev":"trade","sym":"AAPL","p":150.11,"s":100,"t":1690000000123}
// {"ev":"quote","sym":"AAPL","bp":150.10,"ap":150.12,"t":...}
// {"ev":"volume","sym":"AAPL","v":1203400,"t":...}
type wireEvent struct {
	Ev     string      `json:"ev"`
	Sym    string      `json:"sym"`
	Price  json.Number `json:"p"`
	Bid    json.Number `json:"bp"`
	Ask    json.Number `json:"ap"`
	Size   json.Number `json:"s"`
	Volume json.Number `json:"v"`
	Ts     int64       `json:"t"`
}

// Normalizer parses provider wire messages into canonical MarketTicks.
type Normalizer struct {
	// now is swappable so tests can pin the ingestion clock
	now func() int64
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: func() int64 { return time.Now().UnixMilli() }}
}

// Normalize parses one raw provider message. The provider timestamp is
// preserved exactly; the ingestion timestamp is assigned here (normalization
// time, not receipt time) so processing latency stays measurable.
func (n *Normalizer) Normalize(raw port.RawMessage) (domain.MarketTick, error) {
	var msg wireEvent
	if err := json.Unmarshal(raw.Data, &msg); err != nil {
		return domain.MarketTick{}, &NormalizationError{Reason: "bad json", Err: err}
	}

	sym := strings.ToUpper(strings.TrimSpace(msg.Sym))
	if sym == "" {
		return domain.MarketTick{}, &NormalizationError{Reason: "missing symbol"}
	}
	if msg.Ts <= 0 {
		return domain.MarketTick{}, &NormalizationError{Reason: "missing provider timestamp"}
	}

	tick := domain.MarketTick{
		Symbol:     sym,
		ProviderTs: msg.Ts,
		IngestTs:   n.now(),
	}

	switch msg.Ev {
	case "trade":
		tick.Type = domain.EventTrade
		price, err := requireNumber(msg.Price, "price")
		if err != nil {
			return domain.MarketTick{}, err
		}
		tick.Price = price
		if msg.Size != "" {
			size, err := msg.Size.Int64()
			if err != nil {
				return domain.MarketTick{}, &NormalizationError{Reason: "bad size", Err: err}
			}
			tick.Size = size
		}
	case "quote":
		tick.Type = domain.EventQuote
		bid, err := requireNumber(msg.Bid, "bid")
		if err != nil {
			return domain.MarketTick{}, err
		}
		ask, err := requireNumber(msg.Ask, "ask")
		if err != nil {
			return domain.MarketTick{}, err
		}
		tick.Bid, tick.Ask = bid, ask
	case "volume":
		tick.Type = domain.EventVolume
		if msg.Volume == "" {
			return domain.MarketTick{}, &NormalizationError{Reason: "missing volume"}
		}
		vol, err := msg.Volume.Int64()
		if err != nil {
			return domain.MarketTick{}, &NormalizationError{Reason: "bad volume", Err: err}
		}
		tick.Volume = vol
	default:
		return domain.MarketTick{}, &NormalizationError{Reason: "unknown event type " + msg.Ev}
	}

	if err := tick.Validate(); err != nil {
		return domain.MarketTick{}, &NormalizationError{Reason: "invalid tick", Err: err}
	}
	return tick, nil
}

func requireNumber(n json.Number, field string) (float64, error) {
	if n == "" {
		return 0, &NormalizationError{Reason: "missing " + field}
	}
	f, err := n.Float64()
	if err != nil {
		return 0, &NormalizationError{Reason: "bad " + field, Err: err}
	}
	return f, nil
}
