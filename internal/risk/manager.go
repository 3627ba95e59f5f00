package risk

import (
	"math"

	"github.com/benagen/slobtrading/config"
	"github.com/benagen/slobtrading/internal/domain"
)

// Manager tracks equity, drawdown, and trading-enabled state, and is the
// single source of truth for how large a new position may be. Grounded
// on RiskManager in risk_manager.py: current_capital/peak_equity/
// current_drawdown/trades_history/trading_enabled/risk_reduction_active
// carry over one-to-one.
type Manager struct {
	cfg config.RiskConfig

	currentCapital      float64
	peakEquity          float64
	currentDrawdown     float64
	equityCurve         []float64
	trades              []domain.Trade
	tradingEnabled      bool
	riskReductionActive bool
}

// NewManager returns a Manager seeded at cfg.InitialCapital.
func NewManager(cfg config.RiskConfig) *Manager {
	return &Manager{
		cfg:            cfg,
		currentCapital: cfg.InitialCapital,
		peakEquity:     cfg.InitialCapital,
		equityCurve:    []float64{cfg.InitialCapital},
		tradingEnabled: true,
	}
}

// Size computes the position for a setup with the given entry/stop and,
// when ATR sizing is in play, ATR value. Sizing method priority mirrors
// the source's branch order: Kelly (once enough history exists) beats
// ATR-based, which beats plain fixed-fractional risk. Returns a zero
// Sizing with MethodDisabled if trading has been halted by drawdown.
func (m *Manager) Size(entry, sl, atr float64) Sizing {
	if !m.tradingEnabled {
		return Sizing{Method: MethodDisabled}
	}

	riskPct := m.cfg.RiskPctPerTrade
	if m.riskReductionActive {
		riskPct *= 0.5
	}

	if m.cfg.UseHalfKelly && len(m.trades) >= m.cfg.MinTradesForKelly {
		winRate, avgWin, avgLoss := m.winLossStats()
		if avgLoss > 0 && winRate > 0 {
			sizing := KellyCriterion(m.currentCapital, winRate, avgWin, avgLoss, 0.5)
			if sizing.PositionSize > 0 {
				slDistance := math.Abs(entry - sl)
				if slDistance > 0 {
					sizing.Contracts = int(sizing.PositionSize / entry)
					sizing.RiskAmount = float64(sizing.Contracts) * slDistance
				}
				return sizing
			}
		}
	}

	if m.cfg.UseATRSizing && atr > 0 {
		return ATRBased(m.currentCapital, riskPct, entry, atr)
	}

	return FixedRisk(m.currentCapital, riskPct, entry, sl)
}

// winLossStats computes the win rate, average win, and average loss
// (absolute value) over every completed trade in history.
func (m *Manager) winLossStats() (winRate, avgWin, avgLoss float64) {
	if len(m.trades) == 0 {
		return 0, 0, 0
	}
	var wins, losses int
	var sumWin, sumLoss float64
	for _, t := range m.trades {
		switch {
		case t.PnLCash > 0:
			wins++
			sumWin += t.PnLCash
		case t.PnLCash < 0:
			losses++
			sumLoss += -t.PnLCash
		}
	}
	if wins == 0 || losses == 0 {
		return 0, 0, 0
	}
	winRate = float64(wins) / float64(len(m.trades))
	avgWin = sumWin / float64(wins)
	avgLoss = sumLoss / float64(losses)
	return winRate, avgWin, avgLoss
}

// RecordTrade updates capital, the equity curve, drawdown, and the
// trading-enabled / risk-reduction-active gates after a trade closes.
func (m *Manager) RecordTrade(t domain.Trade) {
	m.currentCapital += t.PnLCash
	m.equityCurve = append(m.equityCurve, m.currentCapital)
	m.trades = append(m.trades, t)

	if m.currentCapital > m.peakEquity {
		m.peakEquity = m.currentCapital
	}
	if m.peakEquity > 0 {
		m.currentDrawdown = (m.peakEquity - m.currentCapital) / m.peakEquity
	}

	m.riskReductionActive = m.currentDrawdown >= m.cfg.ReduceThreshold
	if m.currentDrawdown >= m.cfg.HardStop {
		m.tradingEnabled = false
	}
}

// State is a snapshot of the manager's current gating status.
type State struct {
	CurrentCapital      float64
	PeakEquity          float64
	CurrentDrawdown     float64
	TradingEnabled      bool
	RiskReductionActive bool
	TotalTrades         int
	TotalReturn         float64
}

// CurrentState returns a snapshot, mirroring get_current_state.
func (m *Manager) CurrentState() State {
	totalReturn := 0.0
	if m.cfg.InitialCapital > 0 {
		totalReturn = (m.currentCapital - m.cfg.InitialCapital) / m.cfg.InitialCapital
	}
	return State{
		CurrentCapital:      m.currentCapital,
		PeakEquity:          m.peakEquity,
		CurrentDrawdown:     m.currentDrawdown,
		TradingEnabled:      m.tradingEnabled,
		RiskReductionActive: m.riskReductionActive,
		TotalTrades:         len(m.trades),
		TotalReturn:         totalReturn,
	}
}

// Reset restores the manager to its initial-capital state, keeping
// configuration but discarding all trade history.
func (m *Manager) Reset() {
	m.currentCapital = m.cfg.InitialCapital
	m.peakEquity = m.cfg.InitialCapital
	m.currentDrawdown = 0
	m.equityCurve = []float64{m.cfg.InitialCapital}
	m.trades = nil
	m.tradingEnabled = true
	m.riskReductionActive = false
}
