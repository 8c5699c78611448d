package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"stockpulse/internal/application/port"
	"stockpulse/internal/domain"
)

var (
	// ErrAuthFailed 致命错误：凭证被拒绝，不重试
	ErrAuthFailed = errors.New("provider authentication rejected")
	// ErrReconnectBudget 致命错误：连续失败超过预算，进入 FAILED，需手动 Connect 恢复
	ErrReconnectBudget = errors.New("reconnect budget exhausted")
	// ErrAlreadyConnected Connect 在连接存活期间重复调用
	ErrAlreadyConnected = errors.New("feed already connected")
)

// RetryConfig 重连退避配置
type RetryConfig struct {
	InitialDelay time.Duration // 初始延迟
	MaxDelay     time.Duration // 最大延迟
	MaxFailures  int           // 连续失败预算
}

// DefaultRetryConfig 默认重连配置
var DefaultRetryConfig = RetryConfig{
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	MaxFailures:  8,
}

// Config 上游连接配置
type Config struct {
	Name        string
	WsURL       string
	APIKey      string
	DialTimeout time.Duration
	Retry       RetryConfig
	Buffer      int // raw message channel depth
}

// Client owns the streaming provider connection: the socket lives on a
// dedicated goroutine, nothing else writes to it (subscription changes are
// routed through a control channel). State machine per domain.ConnState;
// every transition is reported to the health monitor.
type Client struct {
	cfg    Config
	health port.HealthRecorder
	dialer *websocket.Dialer

	mu      sync.Mutex
	state   domain.ConnState
	symbols map[string]struct{} // SubscriptionSet, owned here exclusively
	running bool
	cancel  context.CancelFunc
	out     chan port.RawMessage

	ctrl chan wireControl
}

func NewClient(cfg Config, health port.HealthRecorder) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry.InitialDelay = DefaultRetryConfig.InitialDelay
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if cfg.Retry.MaxFailures <= 0 {
		cfg.Retry.MaxFailures = DefaultRetryConfig.MaxFailures
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	return &Client{
		cfg:     cfg,
		health:  health,
		dialer:  websocket.DefaultDialer,
		state:   domain.StateDisconnected,
		symbols: make(map[string]struct{}),
		ctrl:    make(chan wireControl, 16),
	}
}

func (c *Client) Name() string { return c.cfg.Name }

func (c *Client) State() domain.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Symbols 返回订阅集的一致快照
func (c *Client) Symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	return out
}

// Connect starts the connection loop. Manual by design: it is also the only
// way out of StateFailed after the reconnect budget is spent.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.running = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.out = make(chan port.RawMessage, c.cfg.Buffer)
	out := c.out
	c.mu.Unlock()

	go c.run(runCtx, out)
	return nil
}

// Messages returns the raw message channel of the current connection cycle.
// The channel closes when the feed goes Failed or is closed; a later manual
// Connect opens a fresh one.
func (c *Client) Messages() <-chan port.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out
}

func (c *Client) Subscribe(ctx context.Context, symbols []string) error {
	return c.changeSubscription(ctx, actionSubscribe, symbols)
}

func (c *Client) Unsubscribe(ctx context.Context, symbols []string) error {
	return c.changeSubscription(ctx, actionUnsubscribe, symbols)
}

func (c *Client) changeSubscription(ctx context.Context, action string, symbols []string) error {
	syms := normalizeSymbols(symbols)
	if len(syms) == 0 {
		return errors.New("no symbols")
	}

	c.mu.Lock()
	for _, s := range syms {
		if action == actionSubscribe {
			c.symbols[s] = struct{}{}
		} else {
			delete(c.symbols, s)
		}
	}
	streaming := c.state == domain.StateStreaming
	c.mu.Unlock()

	if !streaming {
		// applied on the next (re)connect
		return nil
	}
	select {
	case c.ctrl <- wireControl{Action: action, Symbols: syms}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (c *Client) run(ctx context.Context, out chan<- port.RawMessage) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		close(out)
	}()

	delay := c.cfg.Retry.InitialDelay
	failures := 0

	for {
		if ctx.Err() != nil {
			c.setState(domain.StateDisconnected)
			return
		}

		c.setState(domain.StateConnecting)
		log.Info().Str("feed", c.cfg.Name).Str("url", c.cfg.WsURL).Msg("ws connecting")

		conn, err := c.dial(ctx)
		if err == nil {
			err = c.authenticate(conn)
			if errors.Is(err, ErrAuthFailed) {
				_ = conn.Close()
				c.health.Record(port.HealthEvent{Kind: port.HealthFatal, Err: ErrAuthFailed})
				c.setState(domain.StateFailed)
				log.Error().Str("feed", c.cfg.Name).Msg("authentication rejected, not retrying")
				return
			}
		}
		if err == nil {
			err = c.sendSubscriptions(conn)
		}

		if err != nil {
			if conn != nil {
				_ = conn.Close()
			}
			failures++
			c.health.Record(port.HealthEvent{Kind: port.HealthReconnect, Err: err, Fails: failures})
			log.Error().Str("feed", c.cfg.Name).Err(err).Int("failures", failures).Msg("connect failed")

			if failures >= c.cfg.Retry.MaxFailures {
				c.health.Record(port.HealthEvent{Kind: port.HealthFatal, Err: ErrReconnectBudget})
				c.setState(domain.StateFailed)
				log.Error().Str("feed", c.cfg.Name).Int("failures", failures).Msg("reconnect budget exhausted")
				return
			}

			c.setState(domain.StateReconnecting)
			if !sleepCtx(ctx, delay) {
				c.setState(domain.StateDisconnected)
				return
			}
			delay = minDur(delay*2, c.cfg.Retry.MaxDelay)
			continue
		}

		c.setState(domain.StateStreaming)
		failures = 0
		delay = c.cfg.Retry.InitialDelay
		log.Info().Str("feed", c.cfg.Name).Msg("ws streaming")

		err = c.readLoop(ctx, conn, out)

		if ctx.Err() != nil {
			c.setState(domain.StateDisconnected)
			return
		}

		failures++
		c.health.Record(port.HealthEvent{Kind: port.HealthReconnect, Err: err, Fails: failures})
		log.Warn().Str("feed", c.cfg.Name).Err(err).Msg("ws disconnected, reconnecting")

		if failures >= c.cfg.Retry.MaxFailures {
			c.health.Record(port.HealthEvent{Kind: port.HealthFatal, Err: ErrReconnectBudget})
			c.setState(domain.StateFailed)
			return
		}

		c.setState(domain.StateReconnecting)
		if !sleepCtx(ctx, delay) {
			c.setState(domain.StateDisconnected)
			return
		}
		delay = minDur(delay*2, c.cfg.Retry.MaxDelay)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	conn, _, err := c.dialer.DialContext(dctx, c.cfg.WsURL, nil)
	return conn, err
}

// authenticate sends the API key and waits for the status reply. A rejected
// key is ErrAuthFailed (fatal); anything else is a transient connect error.
func (c *Client) authenticate(conn *websocket.Conn) error {
	if c.cfg.APIKey == "" {
		c.setState(domain.StateAuthenticated)
		return nil
	}

	if err := conn.WriteJSON(wireControl{Action: actionAuth, Key: c.cfg.APIKey}); err != nil {
		return err
	}

	deadline := time.Now().Add(c.cfg.DialTimeout)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		st, ok := parseStatus(b)
		if !ok {
			continue
		}
		switch st.Status {
		case statusAuthSuccess:
			c.setState(domain.StateAuthenticated)
			return nil
		case statusAuthFailed:
			return ErrAuthFailed
		}
	}
	return errors.New("auth reply timeout")
}

func (c *Client) sendSubscriptions(conn *websocket.Conn) error {
	syms := c.Symbols()
	if len(syms) == 0 {
		return nil
	}
	return conn.WriteJSON(wireControl{Action: actionSubscribe, Symbols: syms})
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- port.RawMessage) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	// 等 reader goroutine 退出后才能让 run 关闭 out
	defer func() {
		_ = conn.Close()
		for range errCh {
		}
	}()
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if st, ok := parseStatus(b); ok {
				log.Debug().Str("feed", c.cfg.Name).Str("status", st.Status).Str("msg", st.Message).Msg("provider status")
				continue
			}

			select {
			case out <- port.RawMessage{Data: b, ReceivedAt: time.Now().UnixMilli()}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case msg := <-c.ctrl:
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func (c *Client) setState(to domain.ConnState) {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return
	}
	if !domain.CanTransition(from, to) {
		c.mu.Unlock()
		log.Error().Str("feed", c.cfg.Name).Stringer("from", from).Stringer("to", to).Msg("illegal state transition")
		return
	}
	c.state = to
	c.mu.Unlock()

	c.health.Record(port.HealthEvent{Kind: port.HealthStateChange, State: to})
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

var _ port.Feed = (*Client)(nil)
