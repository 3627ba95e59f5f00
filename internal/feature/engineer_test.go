package feature

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
)

// buildScaledBars returns a deterministic, varied one-minute series with
// every price field multiplied by scale. Volume is left untouched —
// volume-family features are defined independently of price.
func buildScaledBars(scale float64) []domain.Bar {
	base := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	n := 30
	bars := make([]domain.Bar, n)
	for i := 0; i < n; i++ {
		mid := 100 + 3*math.Sin(float64(i)/2.3) + 0.5*float64(i%7)
		o := mid + 0.2*float64(i%3)
		c := o + 0.4*float64((i%5)-2)
		h := o + 1.5 + 0.3*float64(i%4)
		l := o - 1.2 - 0.2*float64(i%3)
		bars[i] = domain.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      o * scale,
			High:      h * scale,
			Low:       l * scale,
			Close:     c * scale,
			Volume:    100 + 15*float64(i%6),
		}
	}
	return bars
}

// buildScaledSetup constructs a Setup referencing the bars from
// buildScaledBars(scale), deriving every price-domain field either
// directly from the scaled bars or as a multiple of EntryPrice (itself a
// scaled bar price) so that it scales exactly with scale. Already-
// dimensionless score fields (confidences, quality, risk/reward) are held
// constant across scales, matching how Build treats them as pass-through
// Setup fields rather than prices it derives ratios from.
func buildScaledSetup(bars []domain.Bar, scale float64) domain.Setup {
	liq1Idx, consolStart, consolEnd, liq2Idx, entryIdx := 5, 6, 14, 15, 18

	consolHigh, consolLow := bars[consolStart].High, bars[consolStart].Low
	for _, b := range bars[consolStart:consolEnd] {
		if b.High > consolHigh {
			consolHigh = b.High
		}
		if b.Low < consolLow {
			consolLow = b.Low
		}
	}

	entryPrice := bars[entryIdx].Close
	noWickBar := bars[liq2Idx]

	setup := domain.Setup{
		Direction:   domain.Short,
		SessionDate: bars[0].Timestamp.Truncate(24 * time.Hour),

		LSEHigh: entryPrice * 1.05,
		LSELow:  entryPrice * 0.90,

		LIQ1: domain.LiquidityEvent{Idx: liq1Idx, Level: bars[liq1Idx].High, Confidence: 0.8},
		LIQ2: domain.LiquidityEvent{Idx: liq2Idx, Level: bars[liq2Idx].High, Confidence: 0.75},

		Consolidation: domain.Consolidation{
			Start: consolStart, End: consolEnd,
			High: consolHigh, Low: consolLow,
			ATRAtStart: (consolHigh - consolLow) / 2,
			Quality:    domain.ConsolidationQuality{Tightness: 0.6, Score: 0.7},
		},

		NoWick: domain.NoWickResult{
			Idx:          liq2Idx,
			Qualifies:    true,
			BodySize:     noWickBar.Body(),
			DominantWick: noWickBar.UpperWick(),
		},

		EntryIdx:   entryIdx,
		EntryTime:  bars[entryIdx].Timestamp,
		EntryPrice: entryPrice,

		SLPrice: entryPrice * 1.02,
		TPPrice: entryPrice * 0.95,
	}
	setup.RiskPoints = setup.SLPrice - setup.EntryPrice
	setup.RewardPoints = setup.EntryPrice - setup.TPPrice
	setup.RiskRewardRatio = setup.RewardPoints / setup.RiskPoints
	return setup
}

// TestBuild_ScaleInvariant proves spec §8's feature-stationarity
// property: scaling every input price by a constant factor leaves every
// feature field unchanged (within a small tolerance for floating-point
// and percentile-bucketing noise).
func TestBuild_ScaleInvariant(t *testing.T) {
	cfg := Config{ATRPeriod: 3, ATRLookback: 10, VolumeLookback: 10}

	baseBars := buildScaledBars(1)
	baseStore := barstore.New()
	for _, b := range baseBars {
		baseStore.Append(b)
	}
	baseSetup := buildScaledSetup(baseBars, 1)
	baseFV := Build(baseStore, baseSetup, cfg)

	const lambda = 2.0
	scaledBars := buildScaledBars(lambda)
	scaledStore := barstore.New()
	for _, b := range scaledBars {
		scaledStore.Append(b)
	}
	scaledSetup := buildScaledSetup(scaledBars, lambda)
	scaledFV := Build(scaledStore, scaledSetup, cfg)

	baseValues := baseFV.Values()
	scaledValues := scaledFV.Values()

	const tolerance = 0.05
	for i, name := range domain.FeatureNames {
		base := baseValues[i]
		scaled := scaledValues[i]
		if math.Abs(base) < 1e-9 {
			assert.InDeltaf(t, base, scaled, 1e-6, "feature %q: expected near-zero to stay near-zero, got base=%v scaled=%v", name, base, scaled)
			continue
		}
		rel := math.Abs(scaled-base) / math.Abs(base)
		assert.LessOrEqualf(t, rel, tolerance, "feature %q: base=%v scaled=%v relative diff=%v exceeds %v%% envelope", name, base, scaled, rel, tolerance*100)
	}
}

// TestBuild_ScaleInvariant_MultipleFactors sanity-checks a few other
// scale factors beyond 2x to make sure the invariant isn't an artifact
// of one particular lambda.
func TestBuild_ScaleInvariant_MultipleFactors(t *testing.T) {
	cfg := Config{ATRPeriod: 3, ATRLookback: 10, VolumeLookback: 10}

	baseBars := buildScaledBars(1)
	baseStore := barstore.New()
	for _, b := range baseBars {
		baseStore.Append(b)
	}
	baseSetup := buildScaledSetup(baseBars, 1)
	baseFV := Build(baseStore, baseSetup, cfg)
	baseValues := baseFV.Values()

	for _, lambda := range []float64{0.5, 3, 10} {
		t.Run(fmt.Sprintf("lambda=%v", lambda), func(t *testing.T) {
			bars := buildScaledBars(lambda)
			store := barstore.New()
			for _, b := range bars {
				store.Append(b)
			}
			setup := buildScaledSetup(bars, lambda)
			fv := Build(store, setup, cfg)
			values := fv.Values()

			const tolerance = 0.05
			for i, name := range domain.FeatureNames {
				base := baseValues[i]
				scaled := values[i]
				if math.Abs(base) < 1e-9 {
					assert.InDeltaf(t, base, scaled, 1e-6, "feature %q at lambda=%v", name, lambda)
					continue
				}
				rel := math.Abs(scaled-base) / math.Abs(base)
				assert.LessOrEqualf(t, rel, tolerance, "feature %q at lambda=%v: base=%v scaled=%v relative diff=%v", name, lambda, base, scaled, rel)
			}
		})
	}
}
