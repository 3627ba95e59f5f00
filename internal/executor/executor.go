// Package executor implements OrderExecutor: bracket-order placement,
// duplicate protection, and broker error handling, per spec §4.12.
// Grounded on the teacher's live.Engine order-placement pipeline
// (internal/application/engine/live/placement.go's ordered pre-flight
// checks, internal/application/engine/live/orders.go's retry-then-accept
// shape), generalized from "place a CLOB limit order" to "place a
// three-leg futures bracket".
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"github.com/benagen/slobtrading/internal/broker"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/errs"
)

// Config parameterizes the executor's gates and retry policy.
type Config struct {
	PaperTrading        bool
	MarginPctOfNotional float64
	PointValue          float64 // $ per point per contract, for notional
	ManualBracket        bool    // true when the broker lacks native bracket orders
	FillTimeout          time.Duration
	RetryAttempts        int
	RetryBaseDelay       time.Duration
	RetryMaxDelay        time.Duration
}

// Executor submits bracket orders through a broker.Gateway, refusing
// them per the ordered pre-submission checks in spec §4.12.
type Executor struct {
	cfg    Config
	gw     broker.Gateway
	tradingEnabled bool
}

// New returns an Executor wired to gw, with trading enabled.
func New(cfg Config, gw broker.Gateway) *Executor {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = 30 * time.Second
	}
	return &Executor{cfg: cfg, gw: gw, tradingEnabled: true}
}

// TradingEnabled reports whether the executor currently accepts new
// orders (toggled off by critical broker errors, see DisableTrading).
func (e *Executor) TradingEnabled() bool { return e.tradingEnabled }

// DisableTrading is called by the engine loop when a critical broker
// error arrives (spec §6's critical code subset) or RiskManager hits its
// hard stop. Once disabled, the executor never re-enables itself —
// operator intervention is required.
func (e *Executor) DisableTrading() { e.tradingEnabled = false }

// Submit runs the full bracket-submission pipeline for req, refusing at
// the first failing pre-submission check.
func (e *Executor) Submit(ctx context.Context, req domain.BracketRequest) domain.BracketResult {
	if reason, ok := e.preflight(ctx, req); !ok {
		return domain.BracketResult{SetupID: req.SetupID, Accepted: false, Reason: reason}
	}

	dup, err := e.isDuplicate(ctx, req.SetupID)
	if err != nil {
		slog.Warn("executor: duplicate scan failed, refusing to be safe", "setup_id", req.SetupID, "err", err)
		return domain.BracketResult{SetupID: req.SetupID, Accepted: false, Reason: "duplicate check failed"}
	}
	if dup {
		return domain.BracketResult{SetupID: req.SetupID, Accepted: false, Reason: "duplicate order"}
	}

	if ok, reason := e.sufficientMargin(ctx, req); !ok {
		return domain.BracketResult{SetupID: req.SetupID, Accepted: false, Reason: reason}
	}

	if e.cfg.ManualBracket {
		return e.submitManual(ctx, req)
	}
	return e.submitAtomicBracket(ctx, req)
}

// preflight runs checks 1-4 of spec §4.12 in order: paper-trading gate,
// trading-enabled gate, broker connection health, and concrete
// entry/sl/tp.
func (e *Executor) preflight(ctx context.Context, req domain.BracketRequest) (reason string, ok bool) {
	if !e.cfg.PaperTrading && !e.gw.Connected() {
		if err := e.gw.Connect(ctx); err != nil {
			return "broker connection unavailable", false
		}
	}
	if !e.tradingEnabled {
		return "trading disabled", false
	}
	if !e.gw.Connected() {
		return "broker disconnected", false
	}
	if req.Entry == 0 || req.SL == 0 || req.TP == 0 {
		return "setup missing concrete entry/sl/tp", false
	}
	return "", true
}

// isDuplicate scans the broker's current and recently-filled orders for
// a reference tag starting with "SLOB_<first8 of setupID>", per spec
// §4.12's duplicate-order check and §6's order-ref contract.
func (e *Executor) isDuplicate(ctx context.Context, setupID string) (bool, error) {
	prefix := setupID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	tag := "SLOB_" + prefix

	open, err := e.gw.OpenOrders(ctx)
	if err != nil {
		return false, err
	}
	for _, o := range open {
		if strings.Contains(o.Ref, tag) {
			return true, nil
		}
	}
	return false, nil
}

// sufficientMargin checks the account balance against the estimated
// margin requirement (default 20% of notional), using decimal
// arithmetic so contract-count * price accumulation doesn't drift the
// way repeated float addition across many bars would.
func (e *Executor) sufficientMargin(ctx context.Context, req domain.BracketRequest) (bool, string) {
	balance, err := e.gw.AccountBalance(ctx)
	if err != nil {
		return false, "could not verify account balance"
	}

	notional := decimal.NewFromFloat(req.Entry).
		Mul(decimal.NewFromFloat(e.cfg.PointValue)).
		Mul(decimal.NewFromInt(int64(req.Contracts)))
	marginPct := e.cfg.MarginPctOfNotional
	if marginPct <= 0 {
		marginPct = 0.20
	}
	required := notional.Mul(decimal.NewFromFloat(marginPct))

	if decimal.NewFromFloat(balance).LessThan(required) {
		return false, "insufficient account balance for estimated margin"
	}
	return true, ""
}

// submitAtomicBracket places the parent entry with transmit=false, then
// the SL and TP children referencing it, with the last child transmitting
// to release the whole one-cancels-all group. Per spec §4.12.
func (e *Executor) submitAtomicBracket(ctx context.Context, req domain.BracketRequest) domain.BracketResult {
	now := time.Now().UTC()
	br := toRequest(req, now)

	parentRef := br.RefPrefix() + "_" + string(domain.LegEntry)

	entryReq := broker.OrderRequest{Ref: parentRef, Leg: domain.LegEntry, Direction: req.Direction, Price: req.Entry, Contracts: req.Contracts, Transmit: false}
	entryAck, err := e.retrySubmit(ctx, entryReq)
	if err != nil {
		return e.reject(req.SetupID, err)
	}

	slReq := broker.OrderRequest{Ref: br.LegRef(domain.LegSL), Leg: domain.LegSL, Direction: req.Direction.Opposite(), Price: req.SL, Contracts: req.Contracts, ParentRef: entryAck.Ref, Transmit: false}
	slAck, err := e.retrySubmit(ctx, slReq)
	if err != nil {
		return e.reject(req.SetupID, err)
	}

	tpReq := broker.OrderRequest{Ref: br.LegRef(domain.LegTP), Leg: domain.LegTP, Direction: req.Direction.Opposite(), Price: req.TP, Contracts: req.Contracts, ParentRef: entryAck.Ref, Transmit: true}
	tpAck, err := e.retrySubmit(ctx, tpReq)
	if err != nil {
		return e.reject(req.SetupID, err)
	}

	return domain.BracketResult{
		SetupID:  req.SetupID,
		Accepted: true,
		Legs: []domain.OrderResult{
			{SetupID: req.SetupID, Leg: domain.LegEntry, BrokerID: entryAck.BrokerID, Status: domain.OrderSubmitted},
			{SetupID: req.SetupID, Leg: domain.LegSL, BrokerID: slAck.BrokerID, Status: domain.OrderSubmitted},
			{SetupID: req.SetupID, Leg: domain.LegTP, BrokerID: tpAck.BrokerID, Status: domain.OrderSubmitted},
		},
	}
}

// submitManual is the bracket-native-unsupported fallback: place entry,
// wait up to FillTimeout for a fill, then place SL/TP; cancel the entry
// on timeout.
func (e *Executor) submitManual(ctx context.Context, req domain.BracketRequest) domain.BracketResult {
	now := time.Now().UTC()
	br := toRequest(req, now)

	entryReq := broker.OrderRequest{Ref: br.LegRef(domain.LegEntry), Leg: domain.LegEntry, Direction: req.Direction, Price: req.Entry, Contracts: req.Contracts, Transmit: true}
	entryAck, err := e.retrySubmit(ctx, entryReq)
	if err != nil {
		return e.reject(req.SetupID, err)
	}

	filled := e.awaitFill(ctx, entryAck.BrokerID)
	if !filled {
		_ = e.gw.CancelOrder(ctx, entryAck.BrokerID)
		return domain.BracketResult{SetupID: req.SetupID, Accepted: false, Reason: "entry fill timeout"}
	}

	slReq := broker.OrderRequest{Ref: br.LegRef(domain.LegSL), Leg: domain.LegSL, Direction: req.Direction.Opposite(), Price: req.SL, Contracts: req.Contracts, ParentRef: entryAck.Ref, Transmit: true}
	slAck, err := e.retrySubmit(ctx, slReq)
	if err != nil {
		return e.reject(req.SetupID, err)
	}
	tpReq := broker.OrderRequest{Ref: br.LegRef(domain.LegTP), Leg: domain.LegTP, Direction: req.Direction.Opposite(), Price: req.TP, Contracts: req.Contracts, ParentRef: entryAck.Ref, Transmit: true}
	tpAck, err := e.retrySubmit(ctx, tpReq)
	if err != nil {
		return e.reject(req.SetupID, err)
	}

	return domain.BracketResult{
		SetupID:  req.SetupID,
		Accepted: true,
		Legs: []domain.OrderResult{
			{SetupID: req.SetupID, Leg: domain.LegEntry, BrokerID: entryAck.BrokerID, Status: domain.OrderFilled},
			{SetupID: req.SetupID, Leg: domain.LegSL, BrokerID: slAck.BrokerID, Status: domain.OrderSubmitted},
			{SetupID: req.SetupID, Leg: domain.LegTP, BrokerID: tpAck.BrokerID, Status: domain.OrderSubmitted},
		},
	}
}

// awaitFill blocks on the gateway's event stream until a fill for
// brokerID arrives or FillTimeout elapses.
func (e *Executor) awaitFill(ctx context.Context, brokerID string) bool {
	deadline := time.After(e.cfg.FillTimeout)
	for {
		select {
		case ev := <-e.gw.Events():
			if ev.Kind == broker.EventOrderFilled && ev.OrderID == brokerID {
				return true
			}
		case <-deadline:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// retrySubmit retries transient submission errors with exponential
// backoff up to cfg.RetryAttempts, classifying broker error codes along
// the way; a critical code disables trading at the executor level
// immediately (spec §7).
func (e *Executor) retrySubmit(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	b := &backoff.Backoff{Min: e.cfg.RetryBaseDelay, Max: e.cfg.RetryMaxDelay, Factor: 2, Jitter: true}

	var lastErr error
	for attempt := 0; attempt < e.cfg.RetryAttempts; attempt++ {
		ack, err := e.gw.SubmitOrder(ctx, req)
		if err == nil {
			return ack, nil
		}
		lastErr = err

		if errs.Is(err, errs.BrokerCritical) {
			e.DisableTrading()
			return broker.OrderAck{}, err
		}

		slog.Warn("executor: submit order failed, retrying", "ref", req.Ref, "attempt", attempt+1, "err", err)
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return broker.OrderAck{}, ctx.Err()
		}
	}
	return broker.OrderAck{}, fmt.Errorf("executor.retrySubmit: exhausted %d attempts: %w", e.cfg.RetryAttempts, lastErr)
}

func (e *Executor) reject(setupID string, err error) domain.BracketResult {
	reason := err.Error()
	if errs.Is(err, errs.BrokerCritical) {
		reason = "insufficient buying power"
	}
	return domain.BracketResult{SetupID: setupID, Accepted: false, Reason: reason}
}

// HandleBrokerError classifies an incoming broker error event and acts
// on the critical subset per spec §6/§7: insufficient buying power
// disables trading; session/connectivity/order-id errors trigger a
// reconnect via the gateway.
func (e *Executor) HandleBrokerError(ctx context.Context, code int, message string) {
	sev, critical := broker.Classify(code)
	logf := slog.Info
	switch sev {
	case broker.SeverityWarn:
		logf = slog.Warn
	case broker.SeverityError:
		logf = slog.Error
	}
	logf("executor: broker error", "code", code, "message", message, "critical", critical)

	kind, reconnect, ok := broker.Kind(code)
	if !ok {
		return
	}
	if kind == errs.BrokerCritical {
		e.DisableTrading()
	}
	if reconnect {
		if err := e.gw.Connect(ctx); err != nil {
			slog.Error("executor: reconnect after broker error failed", "err", err)
		}
	}
}

func toRequest(req domain.BracketRequest, now time.Time) domain.BracketRequest {
	out := req
	out.Timestamp = now
	return out
}
