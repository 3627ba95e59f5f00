package engine

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics served at /metrics, grounded on the pack's
// coinbase bot metrics.go (bot_orders_total, bot_trades_total, etc.):
// one counter/gauge per observable, registered once in init.
var (
	setupsFound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slob_setups_found_total",
			Help: "Pattern setups found, by direction.",
		},
		[]string{"direction"},
	)

	setupsInvalidated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slob_setups_invalidated_total",
			Help: "Setups invalidated, by reason.",
		},
		[]string{"reason"},
	)

	ordersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slob_orders_submitted_total",
			Help: "Bracket orders submitted, by leg.",
		},
		[]string{"leg"},
	)

	ordersRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slob_orders_rejected_total",
			Help: "Bracket orders refused at or after submission.",
		},
	)

	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slob_trades_total",
			Help: "Completed trades, by result (win|loss|breakeven).",
		},
		[]string{"result"},
	)

	currentDrawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slob_current_drawdown",
			Help: "Current drawdown from peak equity, as a fraction.",
		},
	)

	currentEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slob_current_equity",
			Help: "Current account equity.",
		},
	)

	tradingEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slob_trading_enabled",
			Help: "1 if trading is enabled, 0 if halted by drawdown or broker error.",
		},
	)

	reconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slob_reconnect_attempts_total",
			Help: "Broker gateway reconnect attempts.",
		},
	)

	mlShadowDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slob_ml_shadow_decisions_total",
			Help: "ML gate shadow decisions, by agreement with the rule-only decision.",
		},
		[]string{"agreement"},
	)
)

func init() {
	prometheus.MustRegister(
		setupsFound, setupsInvalidated, ordersSubmitted, ordersRejected,
		tradesTotal, currentDrawdown, currentEquity, tradingEnabled,
		reconnectAttempts, mlShadowDecisions,
	)
}
