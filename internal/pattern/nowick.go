package pattern

import (
	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
)

// NoWickConfig parameterizes NoWickDetector.
type NoWickConfig struct {
	Lookback       int     // population size, default 100
	WickPercentile float64 // default 10: dominant wick smaller than this pct of population
	BodyMinPct     float64 // default 30
	BodyMaxPct     float64 // default 70
	Strict         bool    // validation mode: tighter wick/body ratio, rejects tiny bodies
}

// Classify scores bar i as a "no-wick" candle in direction dir, using the
// population of the prior Lookback bars.
func Classify(store *barstore.Store, i int, dir domain.Direction, cfg NoWickConfig) domain.NoWickResult {
	bar := store.At(i)

	directionOK := (dir == domain.Short && bar.Bullish()) || (dir == domain.Long && bar.Bearish())
	if !directionOK {
		return domain.NoWickResult{Idx: i, Strict: cfg.Strict}
	}

	start := i - cfg.Lookback
	if start < 0 {
		start = 0
	}
	population := store.Slice(start, i)
	if len(population) == 0 {
		return domain.NoWickResult{Idx: i, Strict: cfg.Strict}
	}

	dominantWick := bar.UpperWick()
	if dir == domain.Long {
		dominantWick = bar.LowerWick()
	}
	body := bar.Body()
	rng := bar.Range()
	if rng == 0 {
		return domain.NoWickResult{Idx: i, Strict: cfg.Strict}
	}

	wickPop := make([]float64, len(population))
	bodyPop := make([]float64, len(population))
	volPop := make([]float64, len(population))
	for idx, b := range population {
		w := b.UpperWick()
		if dir == domain.Long {
			w = b.LowerWick()
		}
		wickPop[idx] = w
		bodyPop[idx] = b.Body()
		volPop[idx] = b.Volume
	}

	wickPctRank := percentileRank(wickPop, dominantWick)
	bodyPctRank := percentileRank(bodyPop, body)
	volPctRank := percentileRank(volPop, bar.Volume)
	wickThreshold := percentileValue(wickPop, cfg.WickPercentile)

	maxWickRatio := 0.4
	minBody := 0.0
	if cfg.Strict {
		maxWickRatio = 0.2
		minBody = 0.5
	}

	wickRatio := dominantWick / rng
	bodyOK := bodyPctRank >= cfg.BodyMinPct && bodyPctRank <= cfg.BodyMaxPct
	wickSmallEnough := dominantWick <= wickThreshold && wickRatio <= maxWickRatio
	bodyLargeEnough := body >= minBody

	qualifies := bodyOK && wickSmallEnough && bodyLargeEnough

	bodyCentrality := 1 - absf(bodyPctRank-50)/50
	score := 0.4*(1-wickPctRank/100) + 0.3*bodyCentrality + 0.3*(volPctRank/100)

	return domain.NoWickResult{
		Idx:          i,
		Qualifies:    qualifies,
		Score:        clamp01(score),
		BodySize:     body,
		DominantWick: dominantWick,
		Strict:       cfg.Strict,
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
