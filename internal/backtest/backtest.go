// Package backtest implements BacktestDriver: the same PatternFinder +
// SetupStateMachine logic the live engine uses, fed from a historical
// BarStore with fills simulated instead of routed through a
// BrokerGateway. Grounded on the teacher's internal/scanner/backtest.go
// (Backtest/backtestMarket: a top-level driver function, a per-item
// helper, slog progress logging, and a verdict/result record returned to
// the caller rather than printed), generalized from "replay real fills
// against a simulated bid" to "replay simulated fills against a
// historical bar series".
package backtest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/feature"
	"github.com/benagen/slobtrading/internal/ml"
	"github.com/benagen/slobtrading/internal/pattern"
	"github.com/benagen/slobtrading/internal/risk"
	"github.com/benagen/slobtrading/internal/statemachine"
)

// Config parameterizes a backtest run. Unlike the live engine's Config,
// there is no broker-facing session-end flatten: a backtest run simply
// stops simulating fills once MaxHoldBars elapses or the bar series
// ends, per spec's TIMEOUT exit.
type Config struct {
	OpeningStart time.Duration
	OpeningEnd   time.Duration

	Feature    feature.Config
	PointValue float64

	// MaxHoldBars bounds how many bars a simulated fill scan will look
	// forward from entry before giving up and exiting at the last
	// in-bounds bar's close (exit_reason TIMEOUT).
	MaxHoldBars int
}

// Result is everything a backtest run produces: every completed trade,
// every shadow prediction (decision-time and outcome-resolved), the
// risk manager's final state, and the labeled feature samples the run
// produced (the offline training CLI's data source — the setup's
// feature vector at decision time, paired with its realized outcome).
type Result struct {
	Trades  []domain.Trade
	Shadows []domain.ShadowPrediction
	Samples []TrainingSample
	Final   risk.State

	// MaxDrawdown is the largest CurrentDrawdown observed at any point
	// during the run, which CurrentState() alone cannot answer since it
	// only reports the latest value.
	MaxDrawdown float64
}

// TrainingSample pairs a completed setup's feature vector (as built at
// entry) with its realized win/loss outcome, in domain.FeatureNames
// order — the (X, y) a Model.Train call consumes.
type TrainingSample struct {
	Features []float64
	Win      bool
}

// Driver runs PatternFinder + SetupStateMachine over a historical
// BarStore, simulating the gate/risk/fill pipeline a live run would hand
// off to OrderExecutor. It implements statemachine.Callbacks itself,
// same as the live engine, so both paths drive the identical state
// machine code (spec's backtest/live parity requirement).
type Driver struct {
	cfg     Config
	finder  *pattern.Finder
	riskMgr *risk.Manager
	gate    *ml.Gate
	updater *ml.OnlineUpdater
	tracker *statemachine.Tracker

	trades      []domain.Trade
	samples     []TrainingSample
	shadowByID  map[string]*domain.ShadowPrediction
	shadowOrder []string
	maxDrawdown float64
}

var _ statemachine.Callbacks = (*Driver)(nil)

// New returns a Driver wired to the given pipeline components. updater
// may be nil to disable online learning during the run.
func New(cfg Config, finder *pattern.Finder, riskMgr *risk.Manager, gate *ml.Gate, updater *ml.OnlineUpdater) *Driver {
	if cfg.MaxHoldBars <= 0 {
		cfg.MaxHoldBars = 390 // one RTH session's worth of 1-minute bars
	}
	d := &Driver{
		cfg:        cfg,
		finder:     finder,
		riskMgr:    riskMgr,
		gate:       gate,
		updater:    updater,
		shadowByID: make(map[string]*domain.ShadowPrediction),
	}
	d.tracker = statemachine.New(finder, d, uuid.NewString)
	return d
}

// Persist implements statemachine.Callbacks as a no-op: a backtest run
// has no durable store of its own, only the Trades/Shadows returned by
// Run once it completes.
func (d *Driver) Persist(domain.Setup) error { return nil }

// EmitTransition implements statemachine.Callbacks with debug-level
// logging, quieter than the live engine's info level since a backtest
// run can produce thousands of transitions.
func (d *Driver) EmitTransition(setup domain.Setup, from, to domain.SetupState) {
	slog.Debug("backtest: setup transition", "setup_id", setup.ID, "from", from, "to", to)
}

// Run replays every session day in bars through the pattern pipeline and
// returns the accumulated trades, shadow predictions, and final risk
// state.
func (d *Driver) Run(ctx context.Context, bars *barstore.Store) Result {
	n := bars.Len()
	if n == 0 {
		return d.result()
	}

	dayStart := 0
	currentDay := bars.At(0).Timestamp.Truncate(24 * time.Hour)
	for i := 1; i <= n; i++ {
		var day time.Time
		if i < n {
			day = bars.At(i).Timestamp.Truncate(24 * time.Hour)
		}
		if i == n || !day.Equal(currentDay) {
			select {
			case <-ctx.Done():
				return d.result()
			default:
			}
			d.runSession(bars, currentDay, dayStart, i)
			dayStart = i
			currentDay = day
		}
	}
	return d.result()
}

// runSession scans one session day for setups and, for any that reach
// ENTRY_ARMED, runs the gate/risk/fill pipeline against it.
func (d *Driver) runSession(bars *barstore.Store, day time.Time, dayStart, dayEnd int) {
	spawned := d.tracker.ScanSessionOpen(bars, dayStart, dayEnd, day)
	slog.Info("backtest: session scanned", "day", day.Format("2006-01-02"), "setups_found", len(spawned))
	for _, m := range spawned {
		s := m.Setup()
		if s.State == domain.StateEntryArmed {
			d.tryEnter(bars, m)
		}
	}
	d.tracker.Sweep()
}

// tryEnter runs an ENTRY_ARMED setup through feature build, the ML
// gate, and RiskManager sizing, then simulates the fill forward from
// entry — the same pipeline shape as the live engine's tryEnter, minus
// OrderExecutor.
func (d *Driver) tryEnter(bars *barstore.Store, m *statemachine.Machine) {
	s := m.Setup()

	fv := feature.Build(bars, s, d.cfg.Feature)
	decision, shadow := d.gate.Evaluate(s.ID, fv.Values(), s.EntryTime)
	d.recordShadow(shadow)

	if decision == domain.DecisionSkip {
		_ = m.Invalidate(domain.ReasonMLSkip, s.EntryTime)
		return
	}

	atr := barstore.ATR(bars, s.EntryIdx, d.cfg.Feature.ATRPeriod, d.cfg.Feature.ATRLookback)
	sizing := d.riskMgr.Size(s.EntryPrice, s.SLPrice, atr.Value)
	if sizing.Contracts <= 0 {
		_ = m.Invalidate(domain.ReasonRiskHalted, s.EntryTime)
		return
	}

	_ = m.AdvanceToOrderSubmitted(s.EntryTime)
	_ = m.AdvanceToInTrade(s.EntryTime)

	exitPrice, reason, exitTime := simulateFill(bars, s, d.cfg.MaxHoldBars)

	pnlPoints := exitPrice - s.EntryPrice
	if s.Direction == domain.Short {
		pnlPoints = s.EntryPrice - exitPrice
	}
	pnlCash := pnlPoints * d.cfg.PointValue * float64(sizing.Contracts)

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
		ExitTime:   exitTime,
		ExitPrice:  exitPrice,
		ExitReason: reason,
		Size:       sizing.Contracts,
		PnLPoints:  pnlPoints,
		PnLCash:    pnlCash,
		Result:     result,
	}
	d.trades = append(d.trades, trade)

	d.riskMgr.RecordTrade(trade)
	if dd := d.riskMgr.CurrentState().CurrentDrawdown; dd > d.maxDrawdown {
		d.maxDrawdown = dd
	}

	d.recordShadow(domain.ShadowPrediction{SetupID: s.ID, ActualOutcome: result, ActualPnL: pnlCash, PredictedAt: exitTime})
	d.samples = append(d.samples, TrainingSample{Features: fv.Values(), Win: result == domain.ResultWin})

	if d.updater != nil {
		d.updater.Update(fv.Values(), result == domain.ResultWin)
	}

	_ = m.Complete(exitTime)
}

// recordShadow keeps one ShadowPrediction per setup id, merging a later
// outcome-resolution call's ActualOutcome/ActualPnL into the
// decision-time record rather than appending a duplicate — the same
// upsert semantics as StatePersistence.SaveShadowPrediction.
func (d *Driver) recordShadow(p domain.ShadowPrediction) {
	existing, ok := d.shadowByID[p.SetupID]
	if !ok {
		cp := p
		d.shadowByID[p.SetupID] = &cp
		d.shadowOrder = append(d.shadowOrder, p.SetupID)
		return
	}
	existing.ActualOutcome = p.ActualOutcome
	existing.ActualPnL = p.ActualPnL
}

func (d *Driver) result() Result {
	shadows := make([]domain.ShadowPrediction, 0, len(d.shadowOrder))
	for _, id := range d.shadowOrder {
		shadows = append(shadows, *d.shadowByID[id])
	}
	return Result{
		Trades:      d.trades,
		Shadows:     shadows,
		Samples:     d.samples,
		Final:       d.riskMgr.CurrentState(),
		MaxDrawdown: d.maxDrawdown,
	}
}

// simulateFill scans forward from a setup's entry bar for a TP or SL
// touch, SL taking precedence when both could fill within the same bar
// (spec §4.16), and falls back to a TIMEOUT exit at the last in-bounds
// bar's close once maxHold bars have elapsed without either.
func simulateFill(bars *barstore.Store, s domain.Setup, maxHold int) (exitPrice float64, reason domain.ExitReason, exitTime time.Time) {
	limit := s.EntryIdx + maxHold
	if last := bars.Len() - 1; limit > last {
		limit = last
	}

	for i := s.EntryIdx; i <= limit; i++ {
		bar := bars.At(i)

		var slHit, tpHit bool
		if s.Direction == domain.Short {
			slHit = bar.High >= s.SLPrice
			tpHit = bar.Low <= s.TPPrice
		} else {
			slHit = bar.Low <= s.SLPrice
			tpHit = bar.High >= s.TPPrice
		}

		switch {
		case slHit:
			return s.SLPrice, domain.ExitSL, bar.Timestamp
		case tpHit:
			return s.TPPrice, domain.ExitTP, bar.Timestamp
		}
	}

	last := bars.At(limit)
	return last.Close, domain.ExitTimeout, last.Timestamp
}
