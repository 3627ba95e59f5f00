// Package engine implements LiveTradingEngine: the outer loop wiring
// BrokerGateway -> BarStore -> SetupTracker+PatternFinder ->
// (FeatureEngineer -> ml.Gate -> RiskManager -> OrderExecutor) ->
// StatePersistence, per spec §5. Grounded on the teacher's
// live.Engine.RunOnce (internal/application/engine/live/engine.go): a
// numbered-phase cycle method, a Config struct with sane defaults, and
// slog logging throughout.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/benagen/slobtrading/internal/adapters/storage"
	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/broker"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/executor"
	"github.com/benagen/slobtrading/internal/feature"
	"github.com/benagen/slobtrading/internal/ml"
	"github.com/benagen/slobtrading/internal/pattern"
	"github.com/benagen/slobtrading/internal/risk"
	"github.com/benagen/slobtrading/internal/statemachine"
)

// Config parameterizes the engine loop's session clock and bookkeeping;
// the pipeline components themselves (PatternFinder, RiskManager,
// ml.Gate, Executor) carry their own configuration.
type Config struct {
	Symbol string

	OpeningStart time.Duration
	OpeningEnd   time.Duration
	SessionEnd   time.Duration

	CancelRestingAtEOD bool
	Feature            feature.Config
	PointValue         float64
}

// position tracks the bits the engine needs about a filled setup that
// Setup itself doesn't carry: its setup id and contract count. Engine
// keys it by broker order id in fillIndex so a fill event can be routed
// back to it.
type position struct {
	setupID   string
	contracts int
}

// Engine is the live trading engine: one BrokerGateway, one BarStore, a
// SetupTracker driven by a PatternFinder, and the gate/risk/execution
// pipeline a freshly-armed setup runs through.
type Engine struct {
	cfg Config

	gw      broker.Gateway
	store   *storage.Store
	tracker *statemachine.Tracker
	finder  *pattern.Finder
	riskMgr *risk.Manager
	gate    *ml.Gate
	updater *ml.OnlineUpdater
	exec    *executor.Executor
	bars    *barstore.Store

	sessionDate     time.Time
	dayStartIdx     int
	setupFoundToday bool

	fillIndex map[string]position // broker order id -> position it belongs to
	contracts map[string]int      // setup id -> contracts, for PnL sizing
}

var _ statemachine.Callbacks = (*Engine)(nil)

// New wires an Engine from its components. The caller constructs gw,
// store, finder, riskMgr, gate, exec ahead of time (typically from
// config.Config); updater may be nil to disable online learning.
func New(cfg Config, gw broker.Gateway, store *storage.Store, finder *pattern.Finder, riskMgr *risk.Manager, gate *ml.Gate, updater *ml.OnlineUpdater, exec *executor.Executor) *Engine {
	e := &Engine{
		cfg:       cfg,
		gw:        gw,
		store:     store,
		finder:    finder,
		riskMgr:   riskMgr,
		gate:      gate,
		updater:   updater,
		exec:      exec,
		bars:      barstore.New(),
		fillIndex: make(map[string]position),
		contracts: make(map[string]int),
	}
	e.tracker = statemachine.New(finder, e, uuid.NewString)
	return e
}

// Persist implements statemachine.Callbacks by writing the setup's
// current state to StatePersistence on every transition.
func (e *Engine) Persist(setup domain.Setup) error {
	return e.store.SaveSetup(context.Background(), e.cfg.Symbol, setup)
}

// EmitTransition implements statemachine.Callbacks: logs the transition
// and updates the setups-invalidated counter (setups found are counted
// in scanSession).
func (e *Engine) EmitTransition(setup domain.Setup, from, to domain.SetupState) {
	slog.Info("engine: setup transition", "setup_id", setup.ID, "from", from, "to", to, "direction", setup.Direction)
	if to == domain.StateInvalidated {
		setupsInvalidated.WithLabelValues(string(setup.Invalidation)).Inc()
	}
}

// Recover loads every non-terminal setup from StatePersistence and
// re-registers it with the tracker, so a restart picks up in-flight
// positions instead of abandoning them — spec §4.15's recovery-layer
// contract.
func (e *Engine) Recover(ctx context.Context) error {
	active, err := e.store.ActiveSetups(ctx)
	if err != nil {
		return fmt.Errorf("engine.Recover: %w", err)
	}
	for _, s := range active {
		e.tracker.Restore(s)
		if s.State == domain.StateOrderSubmitted || s.State == domain.StateInTrade {
			e.contracts[s.ID] = 0 // unknown after restart; the broker's open-orders scan re-derives duplicates, not sizing
		}
		slog.Info("engine: recovered setup", "setup_id", s.ID, "state", s.State)
	}
	return nil
}

// Run connects the gateway, subscribes to the configured symbol, and
// pulls events until ctx is cancelled, at which point it drains
// gracefully (shutdownDrain).
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Recover(ctx); err != nil {
		return err
	}
	if err := e.gw.Connect(ctx); err != nil {
		return fmt.Errorf("engine.Run: connect: %w", err)
	}
	if err := e.gw.Subscribe(ctx, e.cfg.Symbol); err != nil {
		return fmt.Errorf("engine.Run: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return e.shutdownDrain(context.Background())
		case ev := <-e.gw.Events():
			e.handleEvent(ctx, ev)
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev broker.Event) {
	switch ev.Kind {
	case broker.EventBarClosed:
		e.onBarClosed(ctx, ev.Bar)
	case broker.EventOrderFilled:
		e.onOrderFilled(ctx, ev)
	case broker.EventOrderReject:
		slog.Warn("engine: order rejected", "order_id", ev.OrderID, "message", ev.Message)
		ordersRejected.Inc()
	case broker.EventBrokerError:
		e.exec.HandleBrokerError(ctx, ev.ErrorCode, ev.Message)
		if _, reconnect, ok := broker.Kind(ev.ErrorCode); ok && reconnect {
			reconnectAttempts.Inc()
		}
	case broker.EventDisconnected:
		slog.Warn("engine: gateway disconnected, reconnecting")
		reconnectAttempts.Inc()
		if err := e.gw.Connect(ctx); err != nil {
			slog.Error("engine: reconnect failed, entering safe mode", "err", err)
			e.exec.DisableTrading()
			tradingEnabled.Set(0)
		}
	}
}

// onBarClosed appends the new bar, detects session-day rollover, scans
// for a freshly completed setup once the opening window has closed, and,
// when CancelRestingAtEOD is set, flattens the session once the
// session-end time is reached.
func (e *Engine) onBarClosed(ctx context.Context, bar domain.Bar) {
	e.bars.Append(bar)
	idx := e.bars.Len() - 1

	day := bar.Timestamp.Truncate(24 * time.Hour)
	if !e.sessionDate.Equal(day) {
		e.onNewSession(ctx, day, bar, idx)
	}

	// PatternFinder resolves the whole LIQ1->entry pipeline in one
	// deterministic pass over the bars seen so far (tracker.go's
	// spawnThroughPipeline doc), so the live engine re-attempts the scan on
	// every bar after the opening window closes until it finds the
	// session's setup; once found it stops rescanning for the rest of the
	// day rather than re-spawning the same pattern repeatedly.
	openEnd := day.Add(e.cfg.OpeningEnd)
	if !e.setupFoundToday && !bar.Timestamp.Before(openEnd) {
		e.scanSession(ctx, day, idx)
	}

	sessionEnd := day.Add(e.cfg.SessionEnd)
	if e.cfg.CancelRestingAtEOD && !bar.Timestamp.Before(sessionEnd) {
		e.flattenSession(ctx)
	}

	e.tracker.Sweep()
}

func (e *Engine) onNewSession(ctx context.Context, day time.Time, bar domain.Bar, idx int) {
	e.sessionDate = day
	e.dayStartIdx = idx
	e.setupFoundToday = false

	state := e.riskMgr.CurrentState()
	sess := domain.Session{Date: day, StartedAt: bar.Timestamp, StartingCapital: state.CurrentCapital}
	if err := e.store.SaveSession(ctx, sess); err != nil {
		slog.Warn("engine: save session failed", "err", err)
	}
}

func (e *Engine) scanSession(ctx context.Context, day time.Time, dayEnd int) {
	spawned := e.tracker.ScanSessionOpen(e.bars, e.dayStartIdx, dayEnd+1, day)
	if len(spawned) > 0 {
		e.setupFoundToday = true
	}
	for _, m := range spawned {
		s := m.Setup()
		setupsFound.WithLabelValues(string(s.Direction)).Inc()
		if s.State == domain.StateEntryArmed {
			e.tryEnter(ctx, m)
		}
	}
}

// tryEnter runs an ENTRY_ARMED setup through the feature -> ml.Gate ->
// RiskManager -> OrderExecutor pipeline, per spec §4.10-4.12.
func (e *Engine) tryEnter(ctx context.Context, m *statemachine.Machine) {
	now := time.Now().UTC()
	s := m.Setup()

	fv := feature.Build(e.bars, s, e.cfg.Feature)
	decision, shadow := e.gate.Evaluate(s.ID, fv.Values(), now)
	if err := e.store.SaveShadowPrediction(ctx, shadow); err != nil {
		slog.Warn("engine: save shadow prediction failed", "setup_id", s.ID, "err", err)
	}
	mlShadowDecisions.WithLabelValues(strconv.FormatBool(shadow.Agreement)).Inc()

	if decision == domain.DecisionSkip {
		_ = m.Invalidate(domain.ReasonMLSkip, now)
		return
	}

	atr := barstore.ATR(e.bars, s.EntryIdx, e.cfg.Feature.ATRPeriod, e.cfg.Feature.ATRLookback)
	sizing := e.riskMgr.Size(s.EntryPrice, s.SLPrice, atr.Value)
	if sizing.Contracts <= 0 {
		_ = m.Invalidate(domain.ReasonRiskHalted, now)
		return
	}

	req := domain.BracketRequest{
		SetupID:   s.ID,
		Direction: s.Direction,
		Entry:     s.EntryPrice,
		SL:        s.SLPrice,
		TP:        s.TPPrice,
		Contracts: sizing.Contracts,
		Timestamp: now,
	}
	result := e.exec.Submit(ctx, req)
	if !result.Accepted {
		slog.Warn("engine: bracket refused", "setup_id", s.ID, "reason", result.Reason)
		ordersRejected.Inc()
		_ = m.Invalidate(domain.ReasonBrokerRejected, now)
		return
	}

	e.contracts[s.ID] = sizing.Contracts
	entryFilled := false
	for _, leg := range result.Legs {
		ordersSubmitted.WithLabelValues(string(leg.Leg)).Inc()
		e.fillIndex[leg.BrokerID] = position{setupID: s.ID, contracts: sizing.Contracts}
		if leg.Leg == domain.LegEntry && leg.Status == domain.OrderFilled {
			entryFilled = true
		}
	}
	_ = m.AdvanceToOrderSubmitted(now)
	if entryFilled {
		// Executor.submitManual only returns once the entry leg is
		// confirmed filled (it awaits the fill internally before placing
		// SL/TP), so there is no separate EventOrderFilled left on the
		// gateway channel for the engine to react to here.
		_ = m.AdvanceToInTrade(now)
	}
}

func (e *Engine) onOrderFilled(ctx context.Context, ev broker.Event) {
	pos, ok := e.fillIndex[ev.OrderID]
	if !ok {
		return
	}
	m, ok := e.tracker.Get(pos.setupID)
	if !ok {
		return
	}

	s := m.Setup()
	switch s.State {
	case domain.StateOrderSubmitted:
		_ = m.AdvanceToInTrade(ev.FilledAt)
	case domain.StateInTrade:
		reason := domain.ExitSL
		if ev.FilledPx != 0 && s.DirectionConsistent() {
			if (s.Direction == domain.Short && ev.FilledPx <= s.TPPrice) || (s.Direction == domain.Long && ev.FilledPx >= s.TPPrice) {
				reason = domain.ExitTP
			}
		}
		e.closeTrade(ctx, m, reason, ev.FilledPx, ev.FilledAt)
	}
}

// closeTrade records the completed Trade, updates RiskManager and the
// Prometheus gauges, resolves the setup's shadow prediction outcome,
// feeds the online learner, and advances the Machine to COMPLETED.
func (e *Engine) closeTrade(ctx context.Context, m *statemachine.Machine, reason domain.ExitReason, exitPrice float64, now time.Time) {
	s := m.Setup()
	contracts := e.contracts[s.ID]

	pnlPoints := exitPrice - s.EntryPrice
	if s.Direction == domain.Short {
		pnlPoints = s.EntryPrice - exitPrice
	}
	pnlCash := pnlPoints * e.cfg.PointValue * float64(contracts)

	result := domain.ResultBreakeven
	switch {
	case pnlCash > 0:
		result = domain.ResultWin
	case pnlCash < 0:
		result = domain.ResultLoss
	}

	trade := domain.Trade{
		SetupID:    s.ID,
		EntryTime:  s.EntryTime,
		EntryPrice: s.EntryPrice,
		ExitTime:   now,
		ExitPrice:  exitPrice,
		ExitReason: reason,
		Size:       contracts,
		PnLPoints:  pnlPoints,
		PnLCash:    pnlCash,
		Result:     result,
	}
	if err := e.store.SaveTrade(ctx, trade); err != nil {
		slog.Warn("engine: save trade failed", "setup_id", s.ID, "err", err)
	}

	e.riskMgr.RecordTrade(trade)
	state := e.riskMgr.CurrentState()
	currentDrawdown.Set(state.CurrentDrawdown)
	currentEquity.Set(state.CurrentCapital)
	if state.TradingEnabled {
		tradingEnabled.Set(1)
	} else {
		tradingEnabled.Set(0)
		e.exec.DisableTrading()
	}
	tradesTotal.WithLabelValues(string(result)).Inc()

	shadow := domain.ShadowPrediction{SetupID: s.ID, ActualOutcome: result, ActualPnL: pnlCash, PredictedAt: now}
	if err := e.store.SaveShadowPrediction(ctx, shadow); err != nil {
		slog.Warn("engine: update shadow prediction outcome failed", "setup_id", s.ID, "err", err)
	}

	if e.updater != nil {
		fv := feature.Build(e.bars, s, e.cfg.Feature)
		e.updater.Update(fv.Values(), result == domain.ResultWin)
	}

	_ = m.Complete(now)
	delete(e.contracts, s.ID)
}

// flattenSession cancels resting (not-yet-filled) brackets and marks
// in-trade positions closed at the last bar's close, for the EOD
// liquidation gate (spec §4.14, config.Session.CancelRestingAtEOD).
func (e *Engine) flattenSession(ctx context.Context) {
	lastBar, ok := e.bars.Last()
	if !ok {
		return
	}
	now := lastBar.Timestamp

	for _, m := range e.tracker.Active() {
		s := m.Setup()
		switch s.State {
		case domain.StateOrderSubmitted:
			for brokerID, pos := range e.fillIndex {
				if pos.setupID != s.ID {
					continue
				}
				if err := e.gw.CancelOrder(ctx, brokerID); err != nil {
					slog.Warn("engine: cancel resting order failed", "setup_id", s.ID, "order_id", brokerID, "err", err)
				}
			}
			_ = m.Invalidate(domain.ReasonSessionClosedNoFill, now)
		case domain.StateInTrade:
			e.closeTrade(ctx, m, domain.ExitEOD, lastBar.Close, now)
		}
	}
}

// shutdownDrain cancels resting orders, persists final session state,
// and disconnects the gateway — the drain phase spec §5 requires before
// the process exits.
func (e *Engine) shutdownDrain(ctx context.Context) error {
	slog.Info("engine: shutdown drain starting")
	if e.cfg.CancelRestingAtEOD {
		e.flattenSession(ctx)
	}

	state := e.riskMgr.CurrentState()
	sess := domain.Session{Date: e.sessionDate, EndedAt: time.Now().UTC(), EndingCapital: state.CurrentCapital, SafeMode: !state.TradingEnabled}
	if err := e.store.SaveSession(ctx, sess); err != nil {
		slog.Warn("engine: save final session state failed", "err", err)
	}

	if err := e.gw.Disconnect(ctx); err != nil {
		return fmt.Errorf("engine.shutdownDrain: disconnect: %w", err)
	}
	slog.Info("engine: shutdown drain complete")
	return nil
}
