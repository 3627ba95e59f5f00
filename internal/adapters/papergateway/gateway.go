// Package papergateway is a broker.Gateway implementation that never
// touches a real wire: transmitted orders fill immediately at the
// requested price and market data is whatever the caller feeds it. It
// backs paper_trading mode (spec §4.12's first pre-submission gate), the
// way the teacher's scanner/paper.go engine stands in for the live one
// against the same ports interfaces. BacktestDriver does not use it; it
// simulates fills from bars itself.
package papergateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benagen/slobtrading/internal/broker"
)

// Gateway simulates broker order handling in-process.
type Gateway struct {
	mu        sync.Mutex
	connected bool
	balance   float64
	open      []broker.OrderAck
	events    chan broker.Event
}

var _ broker.Gateway = (*Gateway)(nil)

// New returns a paper Gateway seeded with startingBalance.
func New(startingBalance float64) *Gateway {
	return &Gateway{
		balance: startingBalance,
		events:  make(chan broker.Event, 64),
	}
}

func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = true
	return nil
}

func (g *Gateway) Disconnect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
	return nil
}

func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

func (g *Gateway) Subscribe(ctx context.Context, symbol string) error { return nil }

// SubmitOrder acknowledges every order with an EventOrderAck and, when
// req.Transmit is set, fills it immediately at req.Price with an
// EventOrderFilled, mirroring how a paper engine skips the broker's
// matching engine entirely. Orders with Transmit unset are acknowledged
// and stay open without a fill.
func (g *Gateway) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	ack := broker.OrderAck{BrokerID: uuid.NewString(), Ref: req.Ref}

	g.mu.Lock()
	g.open = append(g.open, ack)
	g.mu.Unlock()

	g.events <- broker.Event{Kind: broker.EventOrderAck, OrderID: ack.BrokerID, RequestID: req.Ref}
	if req.Transmit {
		g.events <- broker.Event{Kind: broker.EventOrderFilled, OrderID: ack.BrokerID, FilledPx: req.Price, FilledAt: time.Now().UTC()}
	}
	return ack, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, brokerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.open[:0]
	for _, o := range g.open {
		if o.BrokerID != brokerID {
			kept = append(kept, o)
		}
	}
	g.open = kept
	return nil
}

func (g *Gateway) OpenOrders(ctx context.Context) ([]broker.OrderAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]broker.OrderAck, len(g.open))
	copy(out, g.open)
	return out, nil
}

func (g *Gateway) AccountBalance(ctx context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

func (g *Gateway) Events() <-chan broker.Event { return g.events }
