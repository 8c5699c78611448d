package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stockpulse/internal/application/port"
	"stockpulse/internal/domain"
)

type recorderStub struct {
	mu     sync.Mutex
	events []port.HealthEvent
}

func (r *recorderStub) Record(ev port.HealthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorderStub) kindCount(kind port.HealthKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorderStub) lastFatal() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == port.HealthFatal {
			return r.events[i].Err
		}
	}
	return nil
}

func wsServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitState(t *testing.T, c *Client, want domain.ConnState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, still %s", want, c.State())
}

func testConfig(wsURL string) Config {
	return Config{
		Name:  "test",
		WsURL: wsURL,
		Retry: RetryConfig{
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			MaxFailures:  2,
		},
		DialTimeout: 2 * time.Second,
	}
}

func TestClientAuthSubscribeStream(t *testing.T) {
	wsURL := wsServer(t, func(conn *websocket.Conn) {
		var auth wireControl
		if err := conn.ReadJSON(&auth); err != nil || auth.Action != actionAuth || auth.Key != "secret" {
			t.Errorf("unexpected auth message: %+v err=%v", auth, err)
			return
		}
		_ = conn.WriteJSON(wireStatus{Ev: "status", Status: statusAuthSuccess})

		var sub wireControl
		if err := conn.ReadJSON(&sub); err != nil || sub.Action != actionSubscribe {
			t.Errorf("unexpected subscribe message: %+v err=%v", sub, err)
			return
		}
		if len(sub.Symbols) != 1 || sub.Symbols[0] != "AAPL" {
			t.Errorf("unexpected symbols: %v", sub.Symbols)
		}

		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"ev":"trade","sym":"AAPL","p":150.11,"s":100,"t":1690000000123}`))

		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	cfg := testConfig(wsURL)
	cfg.APIKey = "secret"
	rec := &recorderStub{}
	c := NewClient(cfg, rec)
	defer c.Close()

	ctx := context.Background()
	if err := c.Subscribe(ctx, []string{"aapl"}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitState(t, c, domain.StateStreaming)

	select {
	case raw := <-c.Messages():
		var msg map[string]any
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			t.Fatalf("bad data message: %v", err)
		}
		if msg["ev"] != "trade" || msg["sym"] != "AAPL" {
			t.Errorf("unexpected message: %s", raw.Data)
		}
		if raw.ReceivedAt <= 0 {
			t.Errorf("receipt time not set")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no data message forwarded")
	}

	if err := c.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestClientAuthRejectedIsFatal(t *testing.T) {
	wsURL := wsServer(t, func(conn *websocket.Conn) {
		var auth wireControl
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		_ = conn.WriteJSON(wireStatus{Ev: "status", Status: statusAuthFailed, Message: "bad key"})
	})

	cfg := testConfig(wsURL)
	cfg.APIKey = "wrong"
	rec := &recorderStub{}
	c := NewClient(cfg, rec)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	msgs := c.Messages()

	waitState(t, c, domain.StateFailed)
	if !errors.Is(rec.lastFatal(), ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed fatal, got %v", rec.lastFatal())
	}
	if got := rec.kindCount(port.HealthReconnect); got != 0 {
		t.Errorf("auth failure must not be retried, saw %d reconnects", got)
	}

	select {
	case _, ok := <-msgs:
		if ok {
			t.Error("unexpected message on failed feed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message channel never closed")
	}
}

func TestClientReconnectBudgetThenManualRecovery(t *testing.T) {
	// nothing listens here: every dial fails fast
	cfg := testConfig("ws://127.0.0.1:1")
	rec := &recorderStub{}
	c := NewClient(cfg, rec)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	msgs := c.Messages()

	waitState(t, c, domain.StateFailed)
	if !errors.Is(rec.lastFatal(), ErrReconnectBudget) {
		t.Errorf("expected ErrReconnectBudget fatal, got %v", rec.lastFatal())
	}
	if got := rec.kindCount(port.HealthReconnect); got != cfg.Retry.MaxFailures {
		t.Errorf("expected %d reconnect events, got %d", cfg.Retry.MaxFailures, got)
	}

	select {
	case _, ok := <-msgs:
		if ok {
			t.Error("unexpected message from failed feed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message channel never closed")
	}

	// FAILED is sticky until a manual Connect
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("manual recovery Connect failed: %v", err)
	}
	defer c.Close()
	waitState(t, c, domain.StateFailed) // still no server, budget spent again
}

func TestClientSubscriptionSetOwnership(t *testing.T) {
	c := NewClient(testConfig("ws://127.0.0.1:1"), &recorderStub{})

	ctx := context.Background()
	if err := c.Subscribe(ctx, []string{"aapl", "msft", "AAPL", " "}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := c.Unsubscribe(ctx, []string{"MSFT"}); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	syms := c.Symbols()
	if len(syms) != 1 || syms[0] != "AAPL" {
		t.Errorf("unexpected subscription set: %v", syms)
	}

	if err := c.Subscribe(ctx, nil); err == nil {
		t.Error("expected error for empty symbol list")
	}
}

func TestParseStatus(t *testing.T) {
	st, ok := parseStatus([]byte(`{"ev":"status","status":"auth_success"}`))
	if !ok || st.Status != statusAuthSuccess {
		t.Errorf("status not recognized: %+v ok=%v", st, ok)
	}

	if _, ok := parseStatus([]byte(`{"ev":"trade","sym":"AAPL","p":1,"t":2}`)); ok {
		t.Error("data message misread as status")
	}
}
