package risk

import "math"

// tradingDaysPerYear is the annualization factor the source uses for
// Sharpe/Sortino when the equity curve is sampled once per trading day.
const tradingDaysPerYear = 252

// Metrics is the full risk-metrics report, mirroring calculate_metrics.
type Metrics struct {
	SharpeRatio         float64
	SortinoRatio        float64
	CalmarRatio         float64
	MaxDrawdown         float64
	MaxDrawdownDuration int
	CurrentDrawdown     float64
	TotalReturn         float64
	WinRate             float64
	ProfitFactor        float64
	TotalTrades         int
}

// Metrics computes the comprehensive risk report over the manager's
// full equity curve and trade history.
func (m *Manager) Metrics() Metrics {
	if len(m.equityCurve) < 2 {
		return Metrics{}
	}

	returns := percentChanges(m.equityCurve)
	sharpe := sharpeRatio(returns)
	sortino := sortinoRatio(returns)
	maxDD, maxDDDuration := maxDrawdown(m.equityCurve)

	totalReturn := 0.0
	if m.cfg.InitialCapital > 0 {
		totalReturn = (m.currentCapital - m.cfg.InitialCapital) / m.cfg.InitialCapital
	}

	calmar := 0.0
	if maxDD != 0 {
		calmar = totalReturn / math.Abs(maxDD)
	}

	winRate, profitFactor := m.tradeStats()

	return Metrics{
		SharpeRatio:         sharpe,
		SortinoRatio:        sortino,
		CalmarRatio:         calmar,
		MaxDrawdown:         maxDD,
		MaxDrawdownDuration: maxDDDuration,
		CurrentDrawdown:     m.currentDrawdown,
		TotalReturn:         totalReturn,
		WinRate:             winRate,
		ProfitFactor:        profitFactor,
		TotalTrades:         len(m.trades),
	}
}

func (m *Manager) tradeStats() (winRate, profitFactor float64) {
	if len(m.trades) == 0 {
		return 0, 0
	}
	var wins int
	var grossProfit, grossLoss float64
	for _, t := range m.trades {
		switch {
		case t.PnLCash > 0:
			wins++
			grossProfit += t.PnLCash
		case t.PnLCash < 0:
			grossLoss += -t.PnLCash
		}
	}
	winRate = float64(wins) / float64(len(m.trades))
	if grossLoss > 0 {
		profitFactor = grossProfit / grossLoss
	}
	return winRate, profitFactor
}

func percentChanges(equity []float64) []float64 {
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (equity[i]-prev)/prev)
	}
	return out
}

func sharpeRatio(returns []float64) float64 {
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

func sortinoRatio(returns []float64) float64 {
	mean, _ := meanStd(returns)
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return 0
	}
	_, downsideStd := meanStd(downside)
	if downsideStd == 0 {
		return 0
	}
	return mean / downsideStd * math.Sqrt(tradingDaysPerYear)
}

func meanStd(xs []float64) (mean, std float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= n
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= n
	return mean, math.Sqrt(variance)
}

// maxDrawdown returns the deepest (equity-running_max)/running_max dip
// and the longest run (in samples) spent continuously underwater.
func maxDrawdown(equity []float64) (maxDD float64, maxDuration int) {
	runningMax := equity[0]
	var currentRun int
	for _, e := range equity {
		if e > runningMax {
			runningMax = e
		}
		dd := 0.0
		if runningMax > 0 {
			dd = (e - runningMax) / runningMax
		}
		if dd < maxDD {
			maxDD = dd
		}
		if dd < 0 {
			currentRun++
			if currentRun > maxDuration {
				maxDuration = currentRun
			}
		} else {
			currentRun = 0
		}
	}
	return maxDD, maxDuration
}
