package domain

import "time"

// ExitReason classifies how a Trade left the market.
type ExitReason string

const (
	ExitTP             ExitReason = "TP"
	ExitSL             ExitReason = "SL"
	ExitManual         ExitReason = "MANUAL"
	ExitEOD            ExitReason = "EOD"
	ExitExternalClose  ExitReason = "EXTERNAL_CLOSE"
	ExitTimeout        ExitReason = "TIMEOUT"
)

// TradeResult is the realized outcome of a Trade.
type TradeResult string

const (
	ResultWin       TradeResult = "WIN"
	ResultLoss      TradeResult = "LOSS"
	ResultBreakeven TradeResult = "BREAKEVEN"
	ResultOpen      TradeResult = "OPEN"
)

// Trade records an executed setup.
type Trade struct {
	SetupID    string
	EntryTime  time.Time
	EntryPrice float64
	ExitTime   time.Time
	ExitPrice  float64
	ExitReason ExitReason
	Size       int // contracts
	PnLPoints  float64
	PnLCash    float64
	Result     TradeResult
}

// MLDecision is the classifier's gate decision for a setup.
type MLDecision string

const (
	DecisionTake MLDecision = "TAKE"
	DecisionSkip MLDecision = "SKIP"
)

// ShadowPrediction records the ML gate's decision for a setup even when
// filtering is disabled, so its historical performance can be compared
// against rule-only trading.
type ShadowPrediction struct {
	SetupID        string
	MLProbability  float64
	MLDecision     MLDecision
	RuleDecision   MLDecision
	Agreement      bool
	ActualOutcome  TradeResult
	ActualPnL      float64
	PredictedAt    time.Time
}

// Session is daily trading metadata.
type Session struct {
	Date            time.Time
	StartedAt       time.Time
	EndedAt         time.Time
	StartingCapital float64
	EndingCapital   float64
	SetupsFound     int
	TradesTaken     int
	DailyPnL        float64
	SafeMode        bool
}
