package pattern

import (
	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
)

// LiquidityConfig parameterizes LiquidityDetector.
type LiquidityConfig struct {
	Lookback        int     // default 50
	VolumeThreshold float64 // default 1.5
	MinScore        float64 // default 0.6
}

// Direction of the break being scored, up (level broken to the upside) or
// down (broken to the downside).
type BreakDirection int

const (
	BreakUp BreakDirection = iota
	BreakDown
)

// Detect computes the LiquiditySignal at bar i against level, in the
// given break direction. Pre-condition: the bar's extreme must cross
// level, otherwise Detected is false and every sub-flag is zero.
func Detect(store *barstore.Store, i int, level float64, dir BreakDirection, cfg LiquidityConfig) domain.LiquiditySignal {
	bar := store.At(i)

	var levelBroken bool
	var breakDistance float64
	if dir == BreakUp {
		levelBroken = bar.High > level
		if levelBroken {
			breakDistance = bar.High - level
		}
	} else {
		levelBroken = bar.Low < level
		if levelBroken {
			breakDistance = level - bar.Low
		}
	}
	if !levelBroken {
		return domain.LiquiditySignal{}
	}

	start := i - cfg.Lookback
	if start < 0 {
		start = 0
	}
	window := store.Slice(start, i)

	volumeSpike := false
	if len(window) > 0 {
		avgVol := meanVolume(window)
		if avgVol > 0 {
			volumeSpike = bar.Volume > avgVol*cfg.VolumeThreshold
		}
	}

	var hasRejection bool
	if dir == BreakUp {
		hasRejection = bar.High > level && bar.Close < level
	} else {
		hasRejection = bar.Low < level && bar.Close > level
	}

	wickReversal := false
	rng := bar.Range()
	if rng > 0 {
		var wickRatio float64
		if dir == BreakUp {
			wickRatio = bar.UpperWick() / rng
		} else {
			wickRatio = bar.LowerWick() / rng
		}
		wickReversal = wickRatio > 0.5
	}

	score := 0.0
	if volumeSpike {
		score += 0.4
	}
	if hasRejection {
		score += 0.3
	}
	if wickReversal {
		score += 0.3
	}

	return domain.LiquiditySignal{
		Detected:      score >= cfg.MinScore,
		Score:         score,
		BreakDistance: breakDistance,
		VolumeSpike:   volumeSpike,
		HasRejection:  hasRejection,
		WickReversal:  wickReversal,
	}
}

// FindInWindow scans [start, end) for the first detected LiquiditySignal
// against level in the given direction.
func FindInWindow(store *barstore.Store, start, end int, level float64, dir BreakDirection, cfg LiquidityConfig) (idx int, signal domain.LiquiditySignal, ok bool) {
	if end > store.Len() {
		end = store.Len()
	}
	for i := start; i < end; i++ {
		s := Detect(store, i, level, dir, cfg)
		if s.Detected {
			return i, s, true
		}
	}
	return 0, domain.LiquiditySignal{}, false
}

// BestInWindow scans [start, end) and returns the bar with the highest
// score against level, regardless of whether it crosses MinScore.
func BestInWindow(store *barstore.Store, start, end int, level float64, dir BreakDirection, cfg LiquidityConfig) (idx int, signal domain.LiquiditySignal, ok bool) {
	if end > store.Len() {
		end = store.Len()
	}
	best := -1.0
	for i := start; i < end; i++ {
		s := Detect(store, i, level, dir, cfg)
		if s.Score > best {
			best = s.Score
			idx = i
			signal = s
			ok = true
		}
	}
	return idx, signal, ok
}
