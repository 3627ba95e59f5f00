package domain

// LiquiditySignal scores whether a bar "grabbed liquidity" at a price
// level in a given direction. Weights: volume 0.4, rejection 0.3,
// wick 0.3 — see LiquidityDetector.
type LiquiditySignal struct {
	Detected      bool
	Score         float64
	BreakDistance float64
	VolumeSpike   bool
	HasRejection  bool
	WickReversal  bool
}

// LiquidityEvent anchors a detected LiquiditySignal to a bar index and the
// level it was scored against. Used for LIQ1 and LIQ2 (the no-wick+sweep
// bar) in a Setup.
type LiquidityEvent struct {
	Idx        int
	Level      float64
	Confidence float64 // LiquiditySignal.Score at detection
}
