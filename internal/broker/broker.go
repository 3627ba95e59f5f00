// Package broker defines the narrow contract LiveTradingEngine and
// OrderExecutor use to reach the outside world, and the typed message
// envelope a concrete Gateway pushes back across it. Grounded on the
// teacher's ports package (internal/ports/executor.go,
// internal/ports/market_provider.go): a plain interface per capability,
// concrete wire details confined to internal/adapters/*.
//
// Per spec §9's re-architecture note, broker events are a small closed
// enum (EventKind) flowing over one bounded channel rather than
// callbacks — the engine loop pulls, the gateway pushes, and the gateway
// never reaches back into engine state directly.
package broker

import (
	"context"
	"time"

	"github.com/benagen/slobtrading/internal/domain"
)

// Tick is one trade print from the market-data feed: {symbol, price,
// size, timestamp}. Successive ticks in the same minute are aggregated
// into a Bar by the gateway and emitted on minute close.
type Tick struct {
	Symbol    string
	Price     float64
	Size      float64
	Timestamp time.Time
}

// EventKind discriminates the messages a Gateway pushes to the engine
// loop over its Events channel.
type EventKind string

const (
	EventTick         EventKind = "TICK_RECEIVED"
	EventBarClosed    EventKind = "BAR_CLOSED"
	EventOrderAck     EventKind = "ORDER_ACKNOWLEDGED"
	EventOrderFilled  EventKind = "ORDER_FILLED"
	EventOrderReject  EventKind = "ORDER_REJECTED"
	EventBrokerError  EventKind = "BROKER_ERROR"
	EventDisconnected EventKind = "DISCONNECTED"
	EventReconnected  EventKind = "RECONNECTED"
)

// Event is the single variant type carried on the Gateway->engine
// channel. Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	Tick Tick
	Bar  domain.Bar

	OrderID   string
	RequestID string
	FilledPx  float64
	FilledAt  time.Time

	ErrorCode int
	Message   string
}

// OrderRequest is one leg of a bracket as submitted to the wire: a
// broker-facing shape independent of domain.BracketRequest's
// setup-centric view.
type OrderRequest struct {
	Ref        string // order-reference tag, e.g. SLOB_<id8>_<ts>_ENTRY
	Leg        domain.OrderLeg
	Direction  domain.Direction
	Price      float64
	Contracts  int
	ParentRef  string // empty for the entry leg
	Transmit   bool   // false holds the order server-side until the last leg transmits
}

// OrderAck is the broker's immediate acknowledgement of a submitted
// order (not a fill).
type OrderAck struct {
	BrokerID string
	Ref      string
}

// Gateway abstracts the wire to a broker: connection lifecycle,
// market-data subscription, and order submission/cancellation. The core
// treats every adapter implementing this as opaque, per spec §4.13.
type Gateway interface {
	// Connect establishes the broker session with exponential-backoff
	// retry and starts heartbeat monitoring.
	Connect(ctx context.Context) error

	// Disconnect tears down the session cleanly.
	Disconnect(ctx context.Context) error

	// Connected reports the gateway's last-known connection state.
	Connected() bool

	// Subscribe begins streaming ticks for symbol; ticks arrive as
	// EventTick (and aggregated EventBarClosed) on Events().
	Subscribe(ctx context.Context, symbol string) error

	// SubmitOrder sends one order leg. transmit=false holds it
	// server-side; the bracket's last leg is submitted with
	// transmit=true to release the whole group.
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error)

	// CancelOrder cancels a resting order by broker id.
	CancelOrder(ctx context.Context, brokerID string) error

	// OpenOrders returns the broker-visible open and recently-filled
	// orders, for OrderExecutor's duplicate-order scan.
	OpenOrders(ctx context.Context) ([]OrderAck, error)

	// AccountBalance returns the account's available equity, for the
	// margin-sufficiency pre-submission check.
	AccountBalance(ctx context.Context) (float64, error)

	// Events returns the channel the engine loop pulls from.
	Events() <-chan Event
}
