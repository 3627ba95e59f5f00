package risk_test

import (
	"testing"

	"github.com/benagen/slobtrading/config"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.RiskConfig {
	return config.RiskConfig{
		InitialCapital:    50000,
		RiskPctPerTrade:   0.02,
		MinTradesForKelly: 10,
		ReduceThreshold:   0.15,
		HardStop:          0.25,
		PointValue:        50,
	}
}

func TestManager_FixedRiskSizing(t *testing.T) {
	m := risk.NewManager(testConfig())
	sizing := m.Size(4800, 4815, 0)

	require.Equal(t, risk.MethodFixedRisk, sizing.Method)
	assert.Equal(t, 1000.0, sizing.RiskAmount) // 2% of 50000
	assert.Equal(t, 66, sizing.Contracts)      // 1000 / 15
}

func TestManager_ATRSizing(t *testing.T) {
	cfg := testConfig()
	cfg.UseATRSizing = true
	m := risk.NewManager(cfg)

	sizing := m.Size(4800, 4815, 12)
	require.Equal(t, risk.MethodATRBased, sizing.Method)
	assert.Greater(t, sizing.Contracts, 0)
}

func TestManager_DrawdownReducesAndHalts(t *testing.T) {
	m := risk.NewManager(testConfig())

	m.RecordTrade(domain.Trade{PnLCash: -8000}) // DD = 16% -> reduction active
	assert.True(t, m.CurrentState().RiskReductionActive)
	assert.True(t, m.CurrentState().TradingEnabled)

	m.RecordTrade(domain.Trade{PnLCash: -6000}) // cumulative DD > 25% -> halt
	state := m.CurrentState()
	assert.False(t, state.TradingEnabled)

	sizing := m.Size(4800, 4815, 0)
	assert.Equal(t, risk.MethodDisabled, sizing.Method)
}

func TestManager_RecoveryDeactivatesReduction(t *testing.T) {
	m := risk.NewManager(testConfig())
	m.RecordTrade(domain.Trade{PnLCash: -8000})
	require.True(t, m.CurrentState().RiskReductionActive)

	m.RecordTrade(domain.Trade{PnLCash: 8000})
	assert.False(t, m.CurrentState().RiskReductionActive)
}

func TestManager_Metrics(t *testing.T) {
	m := risk.NewManager(testConfig())
	m.RecordTrade(domain.Trade{PnLCash: 500})
	m.RecordTrade(domain.Trade{PnLCash: -300})
	m.RecordTrade(domain.Trade{PnLCash: 400})

	metrics := m.Metrics()
	assert.Equal(t, 3, metrics.TotalTrades)
	assert.InDelta(t, 2.0/3.0, metrics.WinRate, 1e-9)
	assert.Greater(t, metrics.ProfitFactor, 0.0)
}

func TestManager_Reset(t *testing.T) {
	m := risk.NewManager(testConfig())
	m.RecordTrade(domain.Trade{PnLCash: -8000})
	m.Reset()

	state := m.CurrentState()
	assert.Equal(t, 50000.0, state.CurrentCapital)
	assert.Equal(t, 0, state.TotalTrades)
	assert.True(t, state.TradingEnabled)
}
