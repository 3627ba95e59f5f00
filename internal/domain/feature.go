package domain

// FeatureNames is the fixed, deterministic order of the feature vector —
// the stable contract between training and inference (spec §6). Index i
// of FeatureNames names index i of every FeatureVector.Values() slice.
var FeatureNames = []string{
	// Volume (8)
	"vol_liq1_ratio", "vol_liq2_ratio", "vol_entry_ratio", "vol_nowick_ratio",
	"vol_consol_slope", "vol_consol_mean_ratio", "vol_max_spike", "vol_skew",
	// Volatility (7)
	"atr_relative", "atr_percentile_rank", "consol_range_atr", "bollinger_bandwidth",
	"consol_tightness", "consol_cv", "atr_change_rate",
	// Temporal (10)
	"hour", "minute", "dow_mon", "dow_tue", "dow_wed", "dow_thu", "dow_fri",
	"minutes_since_open", "consol_duration", "bars_liq1_to_entry",
	// Price action (8)
	"dist_lse_high", "dist_lse_low", "risk_reward_ratio", "nowick_body_range",
	"nowick_wick_range", "liq2_consol_extreme_delta", "entry_pos_in_consol", "lse_range_ratio",
	// Pattern quality (4)
	"consol_quality", "liq1_confidence", "liq2_confidence", "quality_mean",
}

// FeatureVector is a fixed-order stationary feature vector built from a
// completed Setup. All fields are price-scale invariant (ratios, not
// absolute points).
type FeatureVector struct {
	// Volume
	VolLIQ1Ratio      float64
	VolLIQ2Ratio      float64
	VolEntryRatio     float64
	VolNoWickRatio    float64
	VolConsolSlope    float64
	VolConsolMeanRatio float64
	VolMaxSpike       float64
	VolSkew           float64

	// Volatility
	ATRRelative        float64
	ATRPercentileRank  float64
	ConsolRangeATR     float64
	BollingerBandwidth float64
	ConsolTightness    float64
	ConsolCV           float64
	ATRChangeRate      float64

	// Temporal
	Hour              float64
	Minute            float64
	DowMon, DowTue, DowWed, DowThu, DowFri float64
	MinutesSinceOpen  float64
	ConsolDuration    float64
	BarsLIQ1ToEntry   float64

	// Price action
	DistLSEHigh           float64
	DistLSELow            float64
	RiskRewardRatio       float64
	NoWickBodyRange       float64
	NoWickWickRange       float64
	LIQ2ConsolExtremeDelta float64
	EntryPosInConsol      float64
	LSERangeRatio         float64

	// Pattern quality
	ConsolQuality   float64
	LIQ1Confidence  float64
	LIQ2Confidence  float64
	QualityMean     float64
}

// Values returns the feature vector as a slice in FeatureNames order.
func (f FeatureVector) Values() []float64 {
	return []float64{
		f.VolLIQ1Ratio, f.VolLIQ2Ratio, f.VolEntryRatio, f.VolNoWickRatio,
		f.VolConsolSlope, f.VolConsolMeanRatio, f.VolMaxSpike, f.VolSkew,

		f.ATRRelative, f.ATRPercentileRank, f.ConsolRangeATR, f.BollingerBandwidth,
		f.ConsolTightness, f.ConsolCV, f.ATRChangeRate,

		f.Hour, f.Minute, f.DowMon, f.DowTue, f.DowWed, f.DowThu, f.DowFri,
		f.MinutesSinceOpen, f.ConsolDuration, f.BarsLIQ1ToEntry,

		f.DistLSEHigh, f.DistLSELow, f.RiskRewardRatio, f.NoWickBodyRange,
		f.NoWickWickRange, f.LIQ2ConsolExtremeDelta, f.EntryPosInConsol, f.LSERangeRatio,

		f.ConsolQuality, f.LIQ1Confidence, f.LIQ2Confidence, f.QualityMean,
	}
}
