// Package ibgateway is the concrete BrokerGateway adapter: an
// IB-shaped (host/port/clientID/account) connection carried over a
// websocket bridge, grounded on the teacher's polymarket.Client retry
// shape (internal/adapters/polymarket/client.go's doWithRetry/sleep) and
// the pack's websocket reconnect loops
// (yohannesjx-sniperterminal/predator_engine.go's PredatorWorker.Run).
// Exponential backoff uses github.com/jpillora/backoff instead of the
// teacher's hand-rolled math.Pow curve, since the pack's own go.mod
// already carries that dependency for exactly this job.
package ibgateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"github.com/benagen/slobtrading/internal/broker"
	"github.com/benagen/slobtrading/internal/errs"
)

// Config carries the connection parameters spec §6 names: host, port,
// client id, account, and the paper/live distinction enforced by an
// account prefix convention ("DU..." accounts are paper).
type Config struct {
	Host     string
	Port     int
	ClientID int
	Account  string
	Paper    bool
	ReadOnly bool

	HeartbeatEvery    time.Duration
	MaxMissedBeats    int
	ReconnectCap      int
	ReconnectMaxDelay time.Duration

	// MaxMsgsPerSec caps outbound wire messages (order placement,
	// cancellation, subscription), mirroring the real API's pacing
	// violation limit. Defaults to 45, just under IB's documented 50/sec.
	MaxMsgsPerSec float64
}

// Gateway is the live broker.Gateway implementation.
type Gateway struct {
	cfg Config

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	missedBeats int

	events  chan broker.Event
	aggs    map[string]*aggregator
	limiter *rate.Limiter

	stop chan struct{}
}

var _ broker.Gateway = (*Gateway)(nil)

// New returns a disconnected Gateway for cfg.
func New(cfg Config) *Gateway {
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = 10 * time.Second
	}
	if cfg.MaxMissedBeats <= 0 {
		cfg.MaxMissedBeats = 3
	}
	if cfg.ReconnectCap <= 0 {
		cfg.ReconnectCap = 10
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 60 * time.Second
	}
	if cfg.MaxMsgsPerSec <= 0 {
		cfg.MaxMsgsPerSec = 45
	}
	return &Gateway{
		cfg:     cfg,
		events:  make(chan broker.Event, 256),
		aggs:    make(map[string]*aggregator),
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxMsgsPerSec), int(cfg.MaxMsgsPerSec)),
	}
}

func (g *Gateway) Events() <-chan broker.Event { return g.events }

func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// Connect dials the broker bridge with exponential-backoff retry capped
// at cfg.ReconnectCap attempts, and starts the heartbeat monitor and
// read loop on success. Exceeding the cap returns a BrokerTransient
// error. At startup Engine.Run returns that error; on a reconnect after
// a disconnect the engine enters safe mode (trading disabled).
func (g *Gateway) Connect(ctx context.Context) error {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    g.cfg.ReconnectMaxDelay,
		Factor: 2,
		Jitter: true,
	}

	wsURL := url.URL{
		Scheme: "ws",
		Host:   fmt.Sprintf("%s:%d", g.cfg.Host, g.cfg.Port),
		Path:   fmt.Sprintf("/v1/client/%d", g.cfg.ClientID),
	}

	var lastErr error
	for attempt := 0; attempt < g.cfg.ReconnectCap; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
		if err == nil {
			g.mu.Lock()
			g.conn = conn
			g.connected = true
			g.missedBeats = 0
			g.stop = make(chan struct{})
			g.mu.Unlock()

			slog.Info("ibgateway: connected", "host", g.cfg.Host, "port", g.cfg.Port, "account", g.cfg.Account, "paper", g.cfg.Paper)
			go g.readLoop(conn, g.stop)
			go g.heartbeatLoop(g.stop)
			return nil
		}
		lastErr = err
		slog.Warn("ibgateway: connect attempt failed", "attempt", attempt+1, "err", err)

		wait := b.Duration()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errs.Wrap(errs.BrokerTransient, "exhausted reconnect attempts, entering safe mode", lastErr)
}

// Disconnect closes the session cleanly.
func (g *Gateway) Disconnect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil
	}
	if g.stop != nil {
		close(g.stop)
	}
	g.connected = false
	if g.conn != nil {
		return g.conn.Close()
	}
	return nil
}

// Subscribe sends a market-data subscription request for symbol. Ticks
// arrive on Events() as EventTick/EventBarClosed.
func (g *Gateway) Subscribe(ctx context.Context, symbol string) error {
	g.mu.Lock()
	conn := g.conn
	g.aggs[symbol] = &aggregator{}
	g.mu.Unlock()

	if conn == nil {
		return errs.New(errs.BrokerTransient, "subscribe: not connected")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return conn.WriteJSON(map[string]any{"type": "subscribe", "symbol": symbol})
}

// SubmitOrder sends one bracket leg. Child legs reference the parent via
// req.ParentRef; the last leg carries Transmit=true to release the batch.
func (g *Gateway) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	g.mu.Lock()
	conn := g.conn
	connected := g.connected
	g.mu.Unlock()

	if !connected || conn == nil {
		return broker.OrderAck{}, errs.New(errs.BrokerTransient, "submit order: not connected")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return broker.OrderAck{}, err
	}

	msg := map[string]any{
		"type":       "place_order",
		"ref":        req.Ref,
		"leg":        req.Leg,
		"direction":  req.Direction,
		"price":      req.Price,
		"contracts":  req.Contracts,
		"parent_ref": req.ParentRef,
		"transmit":   req.Transmit,
	}
	if err := conn.WriteJSON(msg); err != nil {
		return broker.OrderAck{}, errs.Wrap(errs.BrokerTransient, "submit order: write", err)
	}
	return broker.OrderAck{Ref: req.Ref}, nil
}

// CancelOrder cancels a resting order by broker id.
func (g *Gateway) CancelOrder(ctx context.Context, brokerID string) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return errs.New(errs.BrokerTransient, "cancel order: not connected")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return conn.WriteJSON(map[string]any{"type": "cancel_order", "broker_id": brokerID})
}

// OpenOrders is stubbed as empty here; the reference bridge protocol
// reports opens orders asynchronously via EventOrderAck instead of a
// synchronous query. A REST-backed adapter would override this.
func (g *Gateway) OpenOrders(ctx context.Context) ([]broker.OrderAck, error) {
	return nil, nil
}

// AccountBalance is stubbed; a REST-backed adapter would query the
// account endpoint. Returns 0 here since the reference bridge protocol
// streams balance as part of the heartbeat payload (not modeled).
func (g *Gateway) AccountBalance(ctx context.Context) (float64, error) {
	return 0, nil
}

func (g *Gateway) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(g.cfg.HeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.mu.Lock()
			conn := g.conn
			g.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteJSON(map[string]any{"type": "heartbeat"}); err != nil {
				g.onMissedBeat()
				continue
			}
		}
	}
}

func (g *Gateway) onMissedBeat() {
	g.mu.Lock()
	g.missedBeats++
	miss := g.missedBeats
	g.mu.Unlock()

	if miss >= g.cfg.MaxMissedBeats {
		slog.Warn("ibgateway: heartbeat missed threshold reached, marking disconnected", "missed", miss)
		g.mu.Lock()
		g.connected = false
		g.mu.Unlock()
		g.events <- broker.Event{Kind: broker.EventDisconnected}
	}
}

type wireMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Timestamp int64   `json:"timestamp"`

	BrokerID  string `json:"broker_id"`
	RequestID string `json:"request_id"`
	FilledPx  float64 `json:"filled_price"`

	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (g *Gateway) readLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			slog.Warn("ibgateway: read loop error, connection lost", "err", err)
			g.mu.Lock()
			g.connected = false
			g.mu.Unlock()
			g.events <- broker.Event{Kind: broker.EventDisconnected}
			return
		}
		g.dispatch(msg)
	}
}

func (g *Gateway) dispatch(msg wireMessage) {
	switch msg.Type {
	case "tick":
		t := broker.Tick{
			Symbol:    msg.Symbol,
			Price:     msg.Price,
			Size:      msg.Size,
			Timestamp: time.UnixMilli(msg.Timestamp).UTC(),
		}
		g.events <- broker.Event{Kind: broker.EventTick, Tick: t}

		g.mu.Lock()
		agg, ok := g.aggs[msg.Symbol]
		g.mu.Unlock()
		if ok {
			if bar, closed := agg.Add(t); closed {
				g.events <- broker.Event{Kind: broker.EventBarClosed, Bar: bar}
			}
		}
	case "order_ack":
		g.events <- broker.Event{Kind: broker.EventOrderAck, OrderID: msg.BrokerID, RequestID: msg.RequestID}
	case "order_filled":
		g.events <- broker.Event{Kind: broker.EventOrderFilled, OrderID: msg.BrokerID, FilledPx: msg.FilledPx, FilledAt: time.Now().UTC()}
	case "order_rejected":
		g.events <- broker.Event{Kind: broker.EventOrderReject, OrderID: msg.BrokerID, Message: msg.Message}
	case "error":
		g.events <- broker.Event{Kind: broker.EventBrokerError, ErrorCode: msg.Code, Message: msg.Message, RequestID: msg.RequestID}
	case "heartbeat_ack":
		g.mu.Lock()
		g.missedBeats = 0
		g.mu.Unlock()
	}
}
