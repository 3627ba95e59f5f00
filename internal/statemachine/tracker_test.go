package statemachine_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/pattern"
	"github.com/benagen/slobtrading/internal/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackerScenario reuses the hand-derived SHORT setup bar sequence
// verified in internal/pattern's finder tests: opening window, LIQ1,
// consolidation, combined LIQ2+no-wick bar, entry trigger, entry bar.
func trackerScenario() (*barstore.Store, time.Time) {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bar := func(i int, o, h, l, c, v float64) domain.Bar {
		return domain.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: v}
	}
	store := barstore.New()
	store.Append(bar(0, 100, 101, 99, 100, 10))
	store.Append(bar(1, 100, 102, 99, 101, 10))
	store.Append(bar(2, 101, 103, 100, 102, 10))
	store.Append(bar(3, 102, 105, 98, 101, 10))
	store.Append(bar(4, 101, 103, 100, 102, 10))
	store.Append(bar(5, 102, 112, 101, 104, 50))
	store.Append(bar(6, 103, 103.5, 101, 102, 10))
	store.Append(bar(7, 102, 103, 100.5, 102.5, 10))
	store.Append(bar(8, 102.5, 103.2, 101, 101.5, 10))
	store.Append(bar(9, 101.5, 102.8, 100.2, 102, 10))
	store.Append(bar(10, 102, 103.6, 100, 101, 10))
	store.Append(bar(11, 101.5, 103.9, 101.3, 103.5, 30))
	store.Append(bar(12, 103, 103.2, 100, 99.5, 10))
	store.Append(bar(13, 99, 99.5, 97, 98, 10))
	return store, base
}

func trackerFinderConfig() pattern.Config {
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

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "setup-" + strconv.Itoa(n)
	}
}

func TestTracker_ScanSessionOpen_SpawnsAndReplaysPipeline(t *testing.T) {
	store, base := trackerScenario()
	finder := pattern.New(trackerFinderConfig())
	cb := &recordingCallbacks{}
	tracker := statemachine.New(finder, cb, sequentialIDs())

	spawned := tracker.ScanSessionOpen(store, 0, store.Len(), base)

	require.Len(t, spawned, 1)
	m := spawned[0]
	assert.Equal(t, domain.StateEntryArmed, m.Setup().State)
	assert.Equal(t, "setup-1", m.Setup().ID)
	assert.Equal(t, 13, m.Setup().EntryIdx)

	// LSE_READY -> LIQ1 -> FORMING -> CONFIRMED -> NOWICK -> ENTRY_ARMED:
	// five replayed transitions for the one spawned setup.
	assert.Len(t, cb.transitions, 5)
	assert.Len(t, cb.persisted, 5)

	got, ok := tracker.Get("setup-1")
	require.True(t, ok)
	assert.Same(t, m, got)

	active := tracker.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "setup-1", active[0].Setup().ID)
}

func TestTracker_Sweep_EvictsOnlyTerminalMachines(t *testing.T) {
	store, base := trackerScenario()
	finder := pattern.New(trackerFinderConfig())
	cb := &recordingCallbacks{}
	tracker := statemachine.New(finder, cb, sequentialIDs())

	spawned := tracker.ScanSessionOpen(store, 0, store.Len(), base)
	require.Len(t, spawned, 1)
	m := spawned[0]

	tracker.Sweep()
	assert.Len(t, tracker.Active(), 1, "non-terminal machine must survive a sweep")

	now := time.Unix(5000, 0)
	require.NoError(t, m.AdvanceToOrderSubmitted(now))
	require.NoError(t, m.AdvanceToInTrade(now))
	require.NoError(t, m.Complete(now))
	require.True(t, m.Terminal())

	tracker.Sweep()
	assert.Empty(t, tracker.Active())
	_, ok := tracker.Get("setup-1")
	assert.False(t, ok)
}

func TestTracker_ScanSessionOpen_NoSetupSpawnsNothing(t *testing.T) {
	store, base := trackerScenario()
	cfg := trackerFinderConfig()
	cfg.Liquidity.MinScore = 1.1 // unreachable
	finder := pattern.New(cfg)
	cb := &recordingCallbacks{}
	tracker := statemachine.New(finder, cb, sequentialIDs())

	spawned := tracker.ScanSessionOpen(store, 0, store.Len(), base)
	assert.Empty(t, spawned)
	assert.Empty(t, tracker.Active())
}
