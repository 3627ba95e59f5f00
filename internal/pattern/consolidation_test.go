package pattern_test

import (
	"testing"
	"time"

	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func consolTestConfig() pattern.ConsolidationConfig {
	return pattern.ConsolidationConfig{
		ATRPeriod: 3, ATRLookback: 10,
		KMin: 0.5, KMax: 3.0,
		MinDuration: 3, MaxDuration: 6,
		TrendThreshold: 0.5, TouchTolerance: 1.0,
	}
}

func TestFindConsolidation_AcceptsFirstValidWindow(t *testing.T) {
	store, _ := buildScenario(t)
	consol, ok := pattern.FindConsolidation(store, 6, consolTestConfig())
	require.True(t, ok)
	assert.Equal(t, 6, consol.Start)
	assert.Equal(t, 11, consol.End)
	assert.Equal(t, 103.6, consol.High)
	assert.Equal(t, 100.0, consol.Low)
	assert.GreaterOrEqual(t, consol.HighTouches, 2)
}

func TestFindConsolidation_InsufficientATRHistoryFails(t *testing.T) {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	store := barstore.New()
	store.Append(domain.Bar{Timestamp: base, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10})

	_, ok := pattern.FindConsolidation(store, 0, consolTestConfig())
	assert.False(t, ok)
}

func TestFindConsolidation_TrendingWindowIsRejected(t *testing.T) {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bar := func(i int, o, h, l, c, v float64) domain.Bar {
		return domain.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: v}
	}
	store := barstore.New()
	// Flat bars to seed an ATR, then a steadily climbing run with no
	// oscillation — a trend, not a consolidation. The per-bar climb (0.5)
	// keeps each window's range inside the ATR bounds so the rejection is
	// actually the trend check, not the range check.
	for i := 0; i < 6; i++ {
		store.Append(bar(i, 100, 101, 99, 100, 10))
	}
	for i, px := 6, 100.0; i < 14; i, px = i+1, px+0.5 {
		store.Append(bar(i, px, px+1, px-0.2, px+0.9, 10))
	}

	cfg := consolTestConfig()
	cfg.TrendThreshold = 0.15
	_, ok := pattern.FindConsolidation(store, 6, cfg)
	assert.False(t, ok)
}
