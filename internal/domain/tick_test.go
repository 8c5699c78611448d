package domain

import "testing"

func TestTickValidate(t *testing.T) {
	tick := MarketTick{
		Symbol:     "AAPL",
		Type:       EventTrade,
		Price:      150.11,
		Size:       100,
		ProviderTs: 1690000000123,
		IngestTs:   1690000000200,
	}
	if err := tick.Validate(); err != nil {
		t.Fatalf("valid tick rejected: %v", err)
	}
}

func TestTickValidateEmptySymbol(t *testing.T) {
	tick := MarketTick{Type: EventTrade, ProviderTs: 1, IngestTs: 2}
	if err := tick.Validate(); err != ErrEmptySymbol {
		t.Errorf("expected ErrEmptySymbol, got %v", err)
	}
}

func TestTickValidateBadEventType(t *testing.T) {
	tick := MarketTick{Symbol: "AAPL", Type: "candle", ProviderTs: 1, IngestTs: 2}
	if err := tick.Validate(); err != ErrBadEventType {
		t.Errorf("expected ErrBadEventType, got %v", err)
	}
}

func TestTickValidateNegativePrice(t *testing.T) {
	tick := MarketTick{Symbol: "AAPL", Type: EventQuote, Bid: -1, ProviderTs: 1, IngestTs: 2}
	if err := tick.Validate(); err != ErrNegativePrice {
		t.Errorf("expected ErrNegativePrice, got %v", err)
	}
}

func TestTickValidateClockSkew(t *testing.T) {
	tick := MarketTick{Symbol: "AAPL", Type: EventTrade, Price: 1, ProviderTs: 100, IngestTs: 50}
	if err := tick.Validate(); err != ErrClockSkew {
		t.Errorf("expected ErrClockSkew, got %v", err)
	}
}

func TestTickKeyStableAcrossReplay(t *testing.T) {
	a := MarketTick{Symbol: "AAPL", Type: EventTrade, Price: 150.11, ProviderTs: 1690000000123}
	b := MarketTick{Symbol: "AAPL", Type: EventTrade, Price: 150.11, ProviderTs: 1690000000123, IngestTs: 999}
	if a.Key() != b.Key() {
		t.Errorf("replayed tick key changed: %s vs %s", a.Key(), b.Key())
	}

	c := MarketTick{Symbol: "AAPL", Type: EventQuote, ProviderTs: 1690000000123}
	if a.Key() == c.Key() {
		t.Errorf("different event types share a key: %s", a.Key())
	}
}
