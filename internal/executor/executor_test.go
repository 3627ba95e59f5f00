package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benagen/slobtrading/internal/adapters/papergateway"
	"github.com/benagen/slobtrading/internal/broker"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/errs"
)

func testReq() domain.BracketRequest {
	return domain.BracketRequest{SetupID: "abcdef1234", Direction: domain.Long, Entry: 100, SL: 98, TP: 106, Contracts: 1}
}

func TestExecutor_SubmitAtomicBracket_Accepted(t *testing.T) {
	gw := papergateway.New(1_000_000)
	require.NoError(t, gw.Connect(context.Background()))
	e := New(Config{PaperTrading: true, PointValue: 5, ManualBracket: false}, gw)

	res := e.Submit(context.Background(), testReq())
	require.True(t, res.Accepted)
	require.Len(t, res.Legs, 3)
	assert.Equal(t, domain.LegEntry, res.Legs[0].Leg)
	assert.Equal(t, domain.LegSL, res.Legs[1].Leg)
	assert.Equal(t, domain.LegTP, res.Legs[2].Leg)
}

func TestExecutor_SubmitManualBracket_EntryFillsSynchronously(t *testing.T) {
	gw := papergateway.New(1_000_000)
	require.NoError(t, gw.Connect(context.Background()))
	e := New(Config{PaperTrading: true, PointValue: 5, ManualBracket: true}, gw)

	res := e.Submit(context.Background(), testReq())
	require.True(t, res.Accepted)
	require.Len(t, res.Legs, 3)
	assert.Equal(t, domain.OrderFilled, res.Legs[0].Status)
	assert.Equal(t, domain.OrderSubmitted, res.Legs[1].Status)
	assert.Equal(t, domain.OrderSubmitted, res.Legs[2].Status)
}

func TestExecutor_Submit_RefusesWhenDisconnected(t *testing.T) {
	gw := papergateway.New(1_000_000)
	e := New(Config{PaperTrading: false, PointValue: 5}, gw)

	res := e.Submit(context.Background(), testReq())
	assert.False(t, res.Accepted)
}

func TestExecutor_Submit_RefusesIncompleteBracket(t *testing.T) {
	gw := papergateway.New(1_000_000)
	require.NoError(t, gw.Connect(context.Background()))
	e := New(Config{PaperTrading: true, PointValue: 5}, gw)

	req := testReq()
	req.TP = 0
	res := e.Submit(context.Background(), req)
	assert.False(t, res.Accepted)
	assert.Equal(t, "setup missing concrete entry/sl/tp", res.Reason)
}

func TestExecutor_Submit_RefusesAfterDisableTrading(t *testing.T) {
	gw := papergateway.New(1_000_000)
	require.NoError(t, gw.Connect(context.Background()))
	e := New(Config{PaperTrading: true, PointValue: 5}, gw)
	e.DisableTrading()

	res := e.Submit(context.Background(), testReq())
	assert.False(t, res.Accepted)
	assert.Equal(t, "trading disabled", res.Reason)
	assert.False(t, e.TradingEnabled())
}

func TestExecutor_Submit_RefusesDuplicateOrder(t *testing.T) {
	gw := papergateway.New(1_000_000)
	require.NoError(t, gw.Connect(context.Background()))
	e := New(Config{PaperTrading: true, PointValue: 5, ManualBracket: true}, gw)

	req := testReq()
	first := e.Submit(context.Background(), req)
	require.True(t, first.Accepted)

	second := e.Submit(context.Background(), req)
	assert.False(t, second.Accepted)
	assert.Equal(t, "duplicate order", second.Reason)
}

func TestExecutor_Submit_RefusesInsufficientMargin(t *testing.T) {
	gw := papergateway.New(1)
	require.NoError(t, gw.Connect(context.Background()))
	e := New(Config{PaperTrading: true, PointValue: 50, MarginPctOfNotional: 0.2}, gw)

	res := e.Submit(context.Background(), testReq())
	assert.False(t, res.Accepted)
	assert.Equal(t, "insufficient account balance for estimated margin", res.Reason)
}

// rejectingGateway refuses every SubmitOrder call with a plain error, to
// exercise retrySubmit's exhausted-attempts path without a multi-second
// real backoff sleep.
type rejectingGateway struct {
	err error
}

var _ broker.Gateway = (*rejectingGateway)(nil)

func newRejectingGateway(err error) *rejectingGateway {
	return &rejectingGateway{err: err}
}

func (g *rejectingGateway) Connect(ctx context.Context) error    { return nil }
func (g *rejectingGateway) Connected() bool                      { return true }
func (g *rejectingGateway) Disconnect(ctx context.Context) error { return nil }
func (g *rejectingGateway) Subscribe(ctx context.Context, symbol string) error { return nil }
func (g *rejectingGateway) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	return broker.OrderAck{}, g.err
}
func (g *rejectingGateway) CancelOrder(ctx context.Context, brokerID string) error { return nil }
func (g *rejectingGateway) OpenOrders(ctx context.Context) ([]broker.OrderAck, error) {
	return nil, nil
}
func (g *rejectingGateway) AccountBalance(ctx context.Context) (float64, error) { return 1_000_000, nil }
func (g *rejectingGateway) Events() <-chan broker.Event                         { return make(chan broker.Event) }

func TestExecutor_Submit_CriticalBrokerErrorDisablesTrading(t *testing.T) {
	gw := newRejectingGateway(errs.New(errs.BrokerCritical, "insufficient buying power"))
	e := New(Config{PaperTrading: true, PointValue: 5, RetryAttempts: 3, RetryBaseDelay: time.Millisecond, RetryMaxDelay: time.Millisecond}, gw)

	res := e.Submit(context.Background(), testReq())
	assert.False(t, res.Accepted)
	assert.Equal(t, "insufficient buying power", res.Reason)
	assert.False(t, e.TradingEnabled())
}

func TestExecutor_Submit_TransientErrorExhaustsRetries(t *testing.T) {
	gw := newRejectingGateway(errors.New("connection reset"))
	e := New(Config{PaperTrading: true, PointValue: 5, RetryAttempts: 2, RetryBaseDelay: time.Millisecond, RetryMaxDelay: time.Millisecond}, gw)

	res := e.Submit(context.Background(), testReq())
	assert.False(t, res.Accepted)
	assert.True(t, e.TradingEnabled())
}

func TestExecutor_HandleBrokerError_ReconnectsOnTransientCode(t *testing.T) {
	gw := papergateway.New(1_000_000)
	e := New(Config{PaperTrading: true, PointValue: 5}, gw)

	e.HandleBrokerError(context.Background(), broker.CodeConnectivityLost, "connectivity lost")
	assert.True(t, gw.Connected())
	assert.True(t, e.TradingEnabled())
}

func TestExecutor_HandleBrokerError_CriticalCodeDisablesTrading(t *testing.T) {
	gw := papergateway.New(1_000_000)
	e := New(Config{PaperTrading: true, PointValue: 5}, gw)

	e.HandleBrokerError(context.Background(), broker.CodeInsufficientBuyingPower, "insufficient buying power")
	assert.False(t, e.TradingEnabled())
}

// ackOnlyGateway acknowledges every order but never fills one, to
// exercise submitManual's fill-timeout-then-cancel path.
type ackOnlyGateway struct {
	cancelled []string
	events    chan broker.Event
}

var _ broker.Gateway = (*ackOnlyGateway)(nil)

func newAckOnlyGateway() *ackOnlyGateway {
	return &ackOnlyGateway{events: make(chan broker.Event, 8)}
}

func (g *ackOnlyGateway) Connect(ctx context.Context) error    { return nil }
func (g *ackOnlyGateway) Connected() bool                      { return true }
func (g *ackOnlyGateway) Disconnect(ctx context.Context) error { return nil }
func (g *ackOnlyGateway) Subscribe(ctx context.Context, symbol string) error { return nil }
func (g *ackOnlyGateway) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	ack := broker.OrderAck{BrokerID: "ord-" + req.Ref, Ref: req.Ref}
	g.events <- broker.Event{Kind: broker.EventOrderAck, OrderID: ack.BrokerID, RequestID: req.Ref}
	return ack, nil
}
func (g *ackOnlyGateway) CancelOrder(ctx context.Context, brokerID string) error {
	g.cancelled = append(g.cancelled, brokerID)
	return nil
}
func (g *ackOnlyGateway) OpenOrders(ctx context.Context) ([]broker.OrderAck, error) { return nil, nil }
func (g *ackOnlyGateway) AccountBalance(ctx context.Context) (float64, error)       { return 1_000_000, nil }
func (g *ackOnlyGateway) Events() <-chan broker.Event                              { return g.events }

func TestExecutor_SubmitManualBracket_CancelsEntryOnFillTimeout(t *testing.T) {
	gw := newAckOnlyGateway()
	e := New(Config{PaperTrading: true, PointValue: 5, ManualBracket: true, FillTimeout: 10 * time.Millisecond}, gw)

	res := e.Submit(context.Background(), testReq())
	assert.False(t, res.Accepted)
	assert.Equal(t, "entry fill timeout", res.Reason)
	assert.Len(t, gw.cancelled, 1)
}
