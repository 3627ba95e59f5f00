package barstore

import "github.com/benagen/slobtrading/internal/domain"

// ATRResult carries the rolling ATR value and whether enough history
// existed to compute it.
type ATRResult struct {
	Value      float64
	Sufficient bool
}

// ATR returns the rolling Average True Range over the N bars strictly
// prior to index i (default N=14), using a bounded lookback window
// (default 30) so live and backtest replay see identical results. If
// fewer than N prior bars exist, returns {0, false}.
func ATR(store *Store, i, period, lookback int) ATRResult {
	if i <= 0 || period <= 0 {
		return ATRResult{}
	}
	start := i - lookback
	if start < 0 {
		start = 0
	}
	if i-start < period {
		return ATRResult{}
	}

	window := store.Slice(start, i)
	trueRanges := make([]float64, 0, len(window))
	var prevClose float64
	for idx, bar := range window {
		if idx == 0 {
			if start == 0 {
				trueRanges = append(trueRanges, bar.Range())
				prevClose = bar.Close
				continue
			}
			prevClose = store.At(start - 1).Close
		}
		tr := trueRange(bar, prevClose)
		trueRanges = append(trueRanges, tr)
		prevClose = bar.Close
	}

	if len(trueRanges) < period {
		return ATRResult{}
	}

	tail := trueRanges[len(trueRanges)-period:]
	var sum float64
	for _, v := range tail {
		sum += v
	}
	return ATRResult{Value: sum / float64(period), Sufficient: true}
}

func trueRange(bar domain.Bar, prevClose float64) float64 {
	a := bar.High - bar.Low
	b := absf(bar.High - prevClose)
	c := absf(bar.Low - prevClose)
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
