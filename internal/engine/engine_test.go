package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benagen/slobtrading/internal/adapters/papergateway"
	"github.com/benagen/slobtrading/internal/adapters/storage"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/executor"
	"github.com/benagen/slobtrading/internal/feature"
	"github.com/benagen/slobtrading/internal/ml"
	"github.com/benagen/slobtrading/internal/pattern"
	"github.com/benagen/slobtrading/internal/risk"

	"github.com/benagen/slobtrading/config"
)

// buildScenarioBars mirrors the SHORT pipeline scenario in
// pattern.TestFinder_FindSetups_FullShortPipeline: an opening window,
// LIQ1 sweep, consolidation, a combined LIQ2+no-wick bar, an entry
// trigger, and the entry bar.
func buildScenarioBars(base time.Time) []domain.Bar {
	bar := func(i int, o, h, l, c, v float64) domain.Bar {
		return domain.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: v}
	}
	return []domain.Bar{
		bar(0, 100, 101, 99, 100, 10),
		bar(1, 100, 102, 99, 101, 10),
		bar(2, 101, 103, 100, 102, 10),
		bar(3, 102, 105, 98, 101, 10),
		bar(4, 101, 103, 100, 102, 10),
		bar(5, 102, 112, 101, 104, 50),
		bar(6, 103, 103.5, 101, 102, 10),
		bar(7, 102, 103, 100.5, 102.5, 10),
		bar(8, 102.5, 103.2, 101, 101.5, 10),
		bar(9, 101.5, 102.8, 100.2, 102, 10),
		bar(10, 102, 103.6, 100, 101, 10),
		bar(11, 101.5, 103.9, 101.3, 103.5, 30),
		bar(12, 103, 103.2, 100, 99.5, 10),
		bar(13, 99, 99.5, 97, 98, 10),
	}
}

func testFinderConfig() pattern.Config {
	return pattern.Config{
		OpeningStart: 0,
		OpeningEnd:   5 * time.Minute,
		Consolidation: pattern.ConsolidationConfig{
			ATRPeriod: 3, ATRLookback: 10,
			KMin: 0.5, KMax: 3.0,
			MinDuration: 3, MaxDuration: 6,
			TrendThreshold: 0.5, TouchTolerance: 1.0,
		},
		NoWick: pattern.NoWickConfig{
			Lookback: 10, WickPercentile: 50, BodyMinPct: 0, BodyMaxPct: 100, Strict: false,
		},
		Liquidity: pattern.LiquidityConfig{
			Lookback: 10, VolumeThreshold: 1.2, MinScore: 0.6,
		},
		MaxSweepWindow:       10,
		MaxEntryWait:         10,
		MaxRetracementPoints: 50,
		StopBuffer:           1,
		SpikeClampMultiple:   2,
	}
}

func newTestEngine(t *testing.T) (*Engine, *papergateway.Gateway, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gw := papergateway.New(1_000_000)
	finder := pattern.New(testFinderConfig())
	riskMgr := risk.NewManager(config.RiskConfig{InitialCapital: 50000, RiskPctPerTrade: 0.02, MinTradesForKelly: 10, ReduceThreshold: 0.15, HardStop: 0.25, PointValue: 1})
	model := ml.NewModel(domain.FeatureNames)
	gate := ml.NewGate(model, false, 0.5) // disabled: every setup taken, shadow still recorded
	exec := executor.New(executor.Config{PaperTrading: true, PointValue: 1, ManualBracket: true}, gw)

	eng := New(Config{
		Symbol:       "MES",
		OpeningStart: 0,
		OpeningEnd:   5 * time.Minute,
		SessionEnd:   24 * time.Hour,
		Feature:      feature.Config{ATRPeriod: 3, ATRLookback: 10, VolumeLookback: 10},
		PointValue:   1,
	}, gw, store, finder, riskMgr, gate, nil, exec)

	require.NoError(t, gw.Connect(context.Background()))
	return eng, gw, store
}

// drainEvents feeds every event the paper gateway queued synchronously
// during bracket submission back through the engine's event handler,
// the way Run's select loop would as events arrive.
func drainEvents(eng *Engine, gw *papergateway.Gateway) {
	for {
		select {
		case ev := <-gw.Events():
			eng.handleEvent(context.Background(), ev)
		case <-time.After(10 * time.Millisecond):
			return
		}
	}
}

func TestEngine_ScanSessionSubmitsBracketAndClosesTrade(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	eng, gw, store := newTestEngine(t)

	for _, b := range buildScenarioBars(base) {
		eng.onBarClosed(ctx, b)
		drainEvents(eng, gw)
	}

	trades, err := store.Trades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 99.0, trades[0].EntryPrice)
	assert.Contains(t, []domain.ExitReason{domain.ExitSL, domain.ExitTP}, trades[0].ExitReason)

	assert.Empty(t, eng.tracker.Active())
}

func TestEngine_MLGateSkipInvalidatesSetup(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	eng, gw, store := newTestEngine(t)
	eng.gate = ml.NewGate(ml.NewModel(domain.FeatureNames), true, 2.0) // unreachable threshold: always SKIP

	for _, b := range buildScenarioBars(base) {
		eng.onBarClosed(ctx, b)
		drainEvents(eng, gw)
	}

	trades, err := store.Trades(ctx)
	require.NoError(t, err)
	assert.Empty(t, trades)

	active, err := store.ActiveSetups(ctx)
	require.NoError(t, err)
	assert.Empty(t, active) // the one setup found was invalidated, not left active
}
