package pattern_test

import (
	"testing"
	"time"

	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/pattern"
	"github.com/stretchr/testify/assert"
)

func liquidityStore() *barstore.Store {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bar := func(i int, o, h, l, c, v float64) domain.Bar {
		return domain.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: v}
	}
	store := barstore.New()
	for i := 0; i < 5; i++ {
		store.Append(bar(i, 100, 101, 99, 100, 10))
	}
	return store
}

func TestLiquidityDetect_LevelNotBrokenIsUndetected(t *testing.T) {
	store := liquidityStore()
	store.Append(domain.Bar{Open: 100, High: 100.5, Low: 99, Close: 100, Volume: 10})
	cfg := pattern.LiquidityConfig{Lookback: 10, VolumeThreshold: 1.2, MinScore: 0.6}

	sig := pattern.Detect(store, 5, 101, pattern.BreakUp, cfg)
	assert.False(t, sig.Detected)
	assert.Zero(t, sig.Score)
}

func TestLiquidityDetect_VolumeAndRejectionReachesThreshold(t *testing.T) {
	store := liquidityStore()
	// Small poke above the level with a close back below it: volume spike
	// + rejection fire (0.4 + 0.3), the wick stays too small relative to
	// range for the reversal component to add in.
	store.Append(domain.Bar{Open: 99.7, High: 101.5, Low: 99.5, Close: 100.5, Volume: 50})
	cfg := pattern.LiquidityConfig{Lookback: 10, VolumeThreshold: 1.2, MinScore: 0.6}

	sig := pattern.Detect(store, 5, 101, pattern.BreakUp, cfg)
	assert.True(t, sig.Detected)
	assert.True(t, sig.VolumeSpike)
	assert.True(t, sig.HasRejection)
	assert.InDelta(t, 0.7, sig.Score, 1e-9)
}

func TestLiquidityDetect_VolumeAloneMissesThreshold(t *testing.T) {
	store := liquidityStore()
	// Breaks the level, big volume, but closes above level (no rejection)
	// with a tiny wick (no reversal) — only the 0.4 volume component fires.
	store.Append(domain.Bar{Open: 100, High: 105, Low: 99.5, Close: 104.9, Volume: 50})
	cfg := pattern.LiquidityConfig{Lookback: 10, VolumeThreshold: 1.2, MinScore: 0.6}

	sig := pattern.Detect(store, 5, 101, pattern.BreakUp, cfg)
	assert.False(t, sig.Detected)
	assert.InDelta(t, 0.4, sig.Score, 1e-9)
}

func TestLiquidityFindInWindow_ReturnsFirstDetection(t *testing.T) {
	store := liquidityStore()
	store.Append(domain.Bar{Open: 100, High: 100.5, Low: 99, Close: 100, Volume: 10}) // idx5, no break
	store.Append(domain.Bar{Open: 100, High: 110, Low: 99.5, Close: 100.5, Volume: 50}) // idx6, detected
	cfg := pattern.LiquidityConfig{Lookback: 10, VolumeThreshold: 1.2, MinScore: 0.6}

	idx, sig, ok := pattern.FindInWindow(store, 5, store.Len(), 101, pattern.BreakUp, cfg)
	assert.True(t, ok)
	assert.Equal(t, 6, idx)
	assert.True(t, sig.Detected)
}
