// Package pattern implements the deterministic, no-look-ahead pattern
// recognition primitives: ConsolidationDetector, NoWickDetector,
// LiquidityDetector, and the PatternFinder that orchestrates them.
// Grounded on original_source/slob/patterns/*.py, re-expressed as pure
// Go functions over a barstore.Store slice instead of a pandas
// DataFrame, with "no setup here" modeled as a (result, ok) pair rather
// than a returned None sentinel, per the Design Notes' Result/Option
// re-architecture.
package pattern

import (
	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
)

// ConsolidationConfig parameterizes ConsolidationDetector.
type ConsolidationConfig struct {
	ATRPeriod      int
	ATRLookback    int
	KMin, KMax     float64
	MinDuration    int
	MaxDuration    int
	TrendThreshold float64 // fraction of ATR per bar; default 0.15
	TouchTolerance float64 // points
}

// FindConsolidation returns the first Consolidation satisfying all
// invariants starting at index s, or ok=false if none exists in
// [MinDuration, MaxDuration].
func FindConsolidation(store *barstore.Store, s int, cfg ConsolidationConfig) (domain.Consolidation, bool) {
	atr := barstore.ATR(store, s, cfg.ATRPeriod, cfg.ATRLookback)
	if !atr.Sufficient || atr.Value <= 0 {
		return domain.Consolidation{}, false
	}

	minRange := atr.Value * cfg.KMin
	maxRange := atr.Value * cfg.KMax

	for d := cfg.MinDuration; d <= cfg.MaxDuration; d++ {
		end := s + d
		if end > store.Len() {
			break
		}
		window := store.Slice(s, end)
		if len(window) < cfg.MinDuration {
			continue
		}

		high, low := windowHighLow(window)
		rng := high - low
		if rng == 0 {
			continue
		}
		if rng < minRange || rng > maxRange {
			continue
		}
		if isTrending(window, atr.Value, cfg.TrendThreshold) {
			continue
		}

		highTouches, lowTouches := countTouches(window, high, low, cfg.TouchTolerance)
		if highTouches < 2 && lowTouches < 2 {
			continue
		}

		return domain.Consolidation{
			Start:       s,
			End:         end,
			High:        high,
			Low:         low,
			ATRAtStart:  atr.Value,
			HighTouches: highTouches,
			LowTouches:  lowTouches,
			Quality:     assessQuality(window, atr.Value, highTouches, lowTouches),
		}, true
	}

	return domain.Consolidation{}, false
}

func windowHighLow(window []domain.Bar) (high, low float64) {
	high = window[0].High
	low = window[0].Low
	for _, b := range window[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low
}

// isTrending rejects a window whose close-series slope, normalized by
// ATR, exceeds the configured per-bar threshold.
func isTrending(window []domain.Bar, atr, threshold float64) bool {
	if len(window) < 2 || atr <= 0 {
		return false
	}
	slope := linearSlope(closes(window))
	return absf(slope)/atr > threshold
}

func linearSlope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func closes(window []domain.Bar) []float64 {
	out := make([]float64, len(window))
	for i, b := range window {
		out[i] = b.Close
	}
	return out
}

func countTouches(window []domain.Bar, high, low, tolerance float64) (highTouches, lowTouches int) {
	for _, b := range window {
		if b.High >= high-tolerance {
			highTouches++
		}
		if b.Low <= low+tolerance {
			lowTouches++
		}
	}
	return highTouches, lowTouches
}

func assessQuality(window []domain.Bar, atr float64, highTouches, lowTouches int) domain.ConsolidationQuality {
	half := len(window) / 2
	if half == 0 {
		return domain.ConsolidationQuality{Score: 1.0}
	}
	firstHigh, firstLow := windowHighLow(window[:half])
	secondHigh, secondLow := windowHighLow(window[half:])
	firstRange := firstHigh - firstLow
	secondRange := secondHigh - secondLow

	tightness := 0.0
	if firstRange > 0 {
		tightness = 1 - (secondRange / firstRange)
		if tightness < 0 {
			tightness = 0
		}
		if tightness > 1 {
			tightness = 1
		}
	}

	volCompressed := meanVolume(window[half:]) < meanVolume(window[:half])

	last := window[len(window)-1]
	high, low := windowHighLow(window)
	rng := high - low
	breakoutReady := false
	if rng > 0 {
		breakoutReady = (high-last.Close)/rng < 0.25 || (last.Close-low)/rng < 0.25
	}

	score := 1.0 // all valid consolidations score 1.0 for acceptance purposes (whitepaper rule)
	return domain.ConsolidationQuality{
		Tightness:        tightness,
		VolumeCompressed: volCompressed,
		BreakoutReady:    breakoutReady,
		Score:            score,
	}
}

func meanVolume(window []domain.Bar) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, b := range window {
		sum += b.Volume
	}
	return sum / float64(len(window))
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
