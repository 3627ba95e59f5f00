package domain

import "time"

// SetupState is the lifecycle of a SetupStateMachine.
type SetupState string

const (
	StateLSEReady               SetupState = "LSE_READY"
	StateLIQ1Detected           SetupState = "LIQ1_DETECTED"
	StateConsolidationForming   SetupState = "CONSOLIDATION_FORMING"
	StateConsolidationConfirmed SetupState = "CONSOLIDATION_CONFIRMED"
	StateNoWickSweepFound       SetupState = "NOWICK_SWEEP_FOUND"
	StateEntryArmed             SetupState = "ENTRY_ARMED"
	StateOrderSubmitted         SetupState = "ORDER_SUBMITTED"
	StateInTrade                SetupState = "IN_TRADE"
	StateCompleted              SetupState = "COMPLETED"
	StateInvalidated            SetupState = "INVALIDATED"
)

// Terminal reports whether no further transitions are possible from this
// state.
func (s SetupState) Terminal() bool {
	return s == StateCompleted || s == StateInvalidated
}

// InvalidationReason is a typed rejection code threaded through the
// pattern pipeline so "no setup here" and "this specific rule failed" are
// distinguishable for telemetry, per the Result/Option re-architecture
// note: no exceptions for control flow.
type InvalidationReason string

const (
	ReasonNone                    InvalidationReason = ""
	ReasonNoOpeningWindow         InvalidationReason = "no_opening_window"
	ReasonNoLIQ1                  InvalidationReason = "no_liq1"
	ReasonLIQ1DuringOpeningWindow InvalidationReason = "liq1_during_opening_window"
	ReasonNoConsolidation         InvalidationReason = "no_consolidation"
	ReasonConsolidationTrending   InvalidationReason = "consolidation_trending"
	ReasonNoLIQ2                  InvalidationReason = "no_liq2"
	ReasonNoEntryTrigger          InvalidationReason = "no_entry_trigger"
	ReasonMaxRetracement          InvalidationReason = "max_retracement_breach"
	ReasonMLSkip                  InvalidationReason = "ml_skip"
	ReasonRiskHalted              InvalidationReason = "risk_trading_disabled"
	ReasonBrokerRejected          InvalidationReason = "broker_rejected"
	ReasonSessionClosedNoFill     InvalidationReason = "session_closed_no_fill"
	ReasonDuplicateOrder          InvalidationReason = "duplicate_order"
)

// Setup is a completed (or in-progress) six-stage pattern. Ownership is
// exclusive to a SetupStateMachine while it moves through its lifecycle;
// on completion it is copied into a durable record and the machine is
// retired.
type Setup struct {
	ID        string
	Direction Direction
	State     SetupState

	SessionDate time.Time // the trading day this setup belongs to

	LSEHigh, LSELow float64

	LIQ1         LiquidityEvent
	LIQ1Time     time.Time
	Consolidation Consolidation

	// LIQ2 is the single bar that both sweeps the consolidation's far
	// extreme and qualifies as a no-wick candle. NoWick and LIQ2 are the
	// same candle, kept as distinct fields for clarity per spec.
	LIQ2     LiquidityEvent
	NoWick   NoWickResult
	LIQ2Time time.Time

	EntryTriggerIdx  int
	EntryTriggerTime time.Time

	EntryIdx   int
	EntryTime  time.Time
	EntryPrice float64

	SLPrice float64
	TPPrice float64

	RiskPoints      float64
	RewardPoints    float64
	RiskRewardRatio float64

	Invalidation     InvalidationReason
	InvalidatedAt    time.Time
	CreatedAt        time.Time
	LastUpdated      time.Time
}

// NoWickResult is the classification outcome for the combined sweep +
// no-wick bar (see NoWickDetector).
type NoWickResult struct {
	Idx          int
	Qualifies    bool
	Score        float64
	BodySize     float64
	DominantWick float64
	Strict       bool
}

// DirectionConsistent reports the direction-consistency invariant: for SHORT,
// sl > entry > tp; for LONG, sl < entry < tp.
func (s Setup) DirectionConsistent() bool {
	if s.Direction == Short {
		return s.SLPrice > s.EntryPrice && s.EntryPrice > s.TPPrice
	}
	return s.SLPrice < s.EntryPrice && s.EntryPrice < s.TPPrice
}
