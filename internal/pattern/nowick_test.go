package pattern_test

import (
	"testing"
	"time"

	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/pattern"
	"github.com/stretchr/testify/assert"
)

func nowickStore(extra domain.Bar) *barstore.Store {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bar := func(i int, o, h, l, c, v float64) domain.Bar {
		return domain.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: v}
	}
	store := barstore.New()
	for i := 0; i < 10; i++ {
		store.Append(bar(i, 100, 101.5, 99, 100.5, 20))
	}
	store.Append(extra)
	return store
}

func permissiveNoWickConfig() pattern.NoWickConfig {
	return pattern.NoWickConfig{Lookback: 10, WickPercentile: 50, BodyMinPct: 0, BodyMaxPct: 100, Strict: false}
}

func TestNoWickClassify_WrongDirectionNeverQualifies(t *testing.T) {
	// Bearish bar offered against a SHORT setup, which needs a bullish
	// sweep candle.
	store := nowickStore(domain.Bar{Open: 100.5, High: 101, Low: 98, Close: 99})
	r := pattern.Classify(store, 10, domain.Short, permissiveNoWickConfig())
	assert.False(t, r.Qualifies)
}

func TestNoWickClassify_SmallWickLargeBodyQualifies(t *testing.T) {
	store := nowickStore(domain.Bar{Open: 100, High: 103.2, Low: 99.8, Close: 103})
	r := pattern.Classify(store, 10, domain.Short, permissiveNoWickConfig())
	assert.True(t, r.Qualifies)
	assert.InDelta(t, 3.0, r.BodySize, 1e-9)
}

func TestNoWickClassify_OversizedWickFailsRatioCheck(t *testing.T) {
	store := nowickStore(domain.Bar{Open: 100, High: 110, Low: 99.8, Close: 101})
	r := pattern.Classify(store, 10, domain.Short, permissiveNoWickConfig())
	assert.False(t, r.Qualifies)
}

func TestNoWickClassify_StrictModeRejectsTinyBody(t *testing.T) {
	cfg := permissiveNoWickConfig()
	cfg.Strict = true
	store := nowickStore(domain.Bar{Open: 100, High: 100.3, Low: 99.9, Close: 100.1})
	r := pattern.Classify(store, 10, domain.Short, cfg)
	assert.False(t, r.Qualifies)
	assert.True(t, r.Strict)
}
