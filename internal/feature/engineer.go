// Package feature converts a completed Setup into the fixed-order,
// price-scale-invariant feature vector the ML gate consumes. Grounded on
// original_source/slob/features/feature_engineer.py, re-expressed as a
// struct-returning Go function instead of a dict-builder.
package feature

import (
	"math"
	"time"

	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
)

// Config parameterizes the engineer's lookback windows.
type Config struct {
	ATRPeriod      int
	ATRLookback    int
	VolumeLookback int
}

// Build derives a FeatureVector from a completed Setup and the BarStore it
// was found in. Every distance/size is expressed as a ratio (to entry
// price, to ATR, or to bar range) so that scaling all prices by a
// constant factor leaves every feature unchanged within numerical noise.
func Build(store *barstore.Store, s domain.Setup, cfg Config) domain.FeatureVector {
	entryPrice := s.EntryPrice
	if entryPrice == 0 {
		entryPrice = 1 // defend against division by zero on malformed input
	}

	noWickBar := store.At(s.NoWick.Idx)

	volLookback := cfg.VolumeLookback
	if volLookback <= 0 {
		volLookback = 50
	}

	liq1VolRatio := volumeRatio(store, s.LIQ1.Idx, volLookback)
	liq2VolRatio := volumeRatio(store, s.LIQ2.Idx, volLookback)
	entryVolRatio := volumeRatio(store, s.EntryIdx, volLookback)
	noWickVolRatio := volumeRatio(store, s.NoWick.Idx, volLookback)

	consolWindow := store.Slice(s.Consolidation.Start, s.Consolidation.End)
	consolVolSlope := volumeSlope(consolWindow)
	consolVolMeanRatio := meanVolumeRatio(consolWindow, store, s.Consolidation.Start, volLookback)
	maxSpike, skew := volumeSpikeAndSkew(consolWindow)

	atr := barstore.ATR(store, s.EntryIdx, cfg.ATRPeriod, cfg.ATRLookback)
	atrRelative := safeDiv(atr.Value, entryPrice)
	atrPercentile := atrPercentileRank(store, s.EntryIdx, cfg.ATRPeriod, cfg.ATRLookback)
	consolRangeATR := safeDiv(s.Consolidation.Range(), atr.Value)
	bollinger := bollingerBandwidth(consolWindow)
	cv := coefficientOfVariation(closesOf(consolWindow))
	atrChange := atrChangeRate(store, s.EntryIdx, cfg.ATRPeriod, cfg.ATRLookback)

	weekdayOneHot := [5]float64{}
	wd := s.EntryTime.Weekday()
	if wd >= time.Monday && wd <= time.Friday {
		weekdayOneHot[int(wd)-1] = 1
	}

	fv := domain.FeatureVector{
		VolLIQ1Ratio:       liq1VolRatio,
		VolLIQ2Ratio:       liq2VolRatio,
		VolEntryRatio:      entryVolRatio,
		VolNoWickRatio:     noWickVolRatio,
		VolConsolSlope:     consolVolSlope,
		VolConsolMeanRatio: consolVolMeanRatio,
		VolMaxSpike:        maxSpike,
		VolSkew:            skew,

		ATRRelative:        atrRelative,
		ATRPercentileRank:  atrPercentile,
		ConsolRangeATR:     consolRangeATR,
		BollingerBandwidth: bollinger,
		ConsolTightness:    s.Consolidation.Quality.Tightness,
		ConsolCV:           cv,
		ATRChangeRate:      atrChange,

		Hour:             float64(s.EntryTime.Hour()),
		Minute:           float64(s.EntryTime.Minute()),
		DowMon:           weekdayOneHot[0],
		DowTue:           weekdayOneHot[1],
		DowWed:           weekdayOneHot[2],
		DowThu:           weekdayOneHot[3],
		DowFri:           weekdayOneHot[4],
		MinutesSinceOpen: s.EntryTime.Sub(s.SessionDate).Minutes(),
		ConsolDuration:   float64(s.Consolidation.Duration()),
		BarsLIQ1ToEntry:  float64(s.EntryIdx - s.LIQ1.Idx),

		DistLSEHigh:            absf(entryPrice-s.LSEHigh) / entryPrice,
		DistLSELow:             absf(entryPrice-s.LSELow) / entryPrice,
		RiskRewardRatio:        s.RiskRewardRatio,
		NoWickBodyRange:        safeDiv(noWickBar.Body(), noWickBar.Range()),
		NoWickWickRange:        safeDiv(s.NoWick.DominantWick, noWickBar.Range()),
		LIQ2ConsolExtremeDelta: safeDiv(s.LIQ2.Level-s.Consolidation.FarExtreme(s.Direction), s.Consolidation.FarExtreme(s.Direction)),
		EntryPosInConsol:       entryPositionInConsol(entryPrice, s.Consolidation),
		LSERangeRatio:          safeDiv(s.LSEHigh-s.LSELow, s.LSELow),

		ConsolQuality:  s.Consolidation.Quality.Score,
		LIQ1Confidence: s.LIQ1.Confidence,
		LIQ2Confidence: s.LIQ2.Confidence,
		QualityMean:    (s.Consolidation.Quality.Score + s.LIQ1.Confidence + s.LIQ2.Confidence) / 3,
	}

	return fv
}

func volumeRatio(store *barstore.Store, idx, lookback int) float64 {
	start := idx - lookback
	if start < 0 {
		start = 0
	}
	window := store.Slice(start, idx)
	avg := meanVolumeOf(window)
	if avg == 0 {
		return 0
	}
	return store.At(idx).Volume / avg
}

func meanVolumeOf(window []domain.Bar) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, b := range window {
		sum += b.Volume
	}
	return sum / float64(len(window))
}

func volumeSlope(window []domain.Bar) float64 {
	if len(window) < 2 {
		return 0
	}
	ys := make([]float64, len(window))
	for i, b := range window {
		ys[i] = b.Volume
	}
	return linearSlope(ys)
}

func linearSlope(ys []float64) float64 {
	n := float64(len(ys))
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

func meanVolumeRatio(consolWindow []domain.Bar, store *barstore.Store, consolStart, lookback int) float64 {
	start := consolStart - lookback
	if start < 0 {
		start = 0
	}
	prior := store.Slice(start, consolStart)
	priorAvg := meanVolumeOf(prior)
	if priorAvg == 0 {
		return 0
	}
	return meanVolumeOf(consolWindow) / priorAvg
}

func volumeSpikeAndSkew(window []domain.Bar) (maxSpike, skew float64) {
	if len(window) == 0 {
		return 0, 0
	}
	mean := meanVolumeOf(window)
	var maxV float64
	var sumCube, sumSq float64
	for _, b := range window {
		if b.Volume > maxV {
			maxV = b.Volume
		}
		d := b.Volume - mean
		sumSq += d * d
		sumCube += d * d * d
	}
	n := float64(len(window))
	variance := sumSq / n
	std := math.Sqrt(variance)
	if std > 0 {
		skew = (sumCube / n) / (std * std * std)
	}
	if mean > 0 {
		maxSpike = maxV / mean
	}
	return maxSpike, skew
}

func atrPercentileRank(store *barstore.Store, idx, period, lookback int) float64 {
	start := idx - lookback
	if start < 0 {
		start = 0
	}
	current := barstore.ATR(store, idx, period, lookback)
	if !current.Sufficient {
		return 0
	}
	var below int
	var total int
	for i := start + period; i < idx; i++ {
		r := barstore.ATR(store, i, period, lookback)
		if !r.Sufficient {
			continue
		}
		total++
		if r.Value < current.Value {
			below++
		}
	}
	if total == 0 {
		return 0
	}
	return 100 * float64(below) / float64(total)
}

func atrChangeRate(store *barstore.Store, idx, period, lookback int) float64 {
	mid := idx - lookback/2
	if mid <= 0 {
		return 0
	}
	firstHalf := barstore.ATR(store, mid, period, lookback)
	secondHalf := barstore.ATR(store, idx, period, lookback)
	if !firstHalf.Sufficient || firstHalf.Value == 0 {
		return 0
	}
	return (secondHalf.Value - firstHalf.Value) / firstHalf.Value
}

func bollingerBandwidth(window []domain.Bar) float64 {
	closes := closesOf(window)
	if len(closes) == 0 {
		return 0
	}
	mean := 0.0
	for _, c := range closes {
		mean += c
	}
	mean /= float64(len(closes))
	var variance float64
	for _, c := range closes {
		d := c - mean
		variance += d * d
	}
	variance /= float64(len(closes))
	std := math.Sqrt(variance)
	if mean == 0 {
		return 0
	}
	return (4 * std) / mean // (upper-lower)/mid with 2-sigma bands
}

func coefficientOfVariation(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	mean := 0.0
	for _, c := range closes {
		mean += c
	}
	mean /= float64(len(closes))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, c := range closes {
		d := c - mean
		variance += d * d
	}
	variance /= float64(len(closes))
	return math.Sqrt(variance) / mean
}

func closesOf(window []domain.Bar) []float64 {
	out := make([]float64, len(window))
	for i, b := range window {
		out[i] = b.Close
	}
	return out
}

func entryPositionInConsol(entryPrice float64, c domain.Consolidation) float64 {
	rng := c.Range()
	if rng == 0 {
		return 0.5
	}
	pos := (entryPrice - c.Low) / rng
	return clamp01(pos)
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

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
