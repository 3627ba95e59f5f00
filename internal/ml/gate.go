package ml

import (
	"time"

	"github.com/benagen/slobtrading/internal/domain"
)

// Gate wraps a Model with the enabled/shadow/threshold policy
// SPEC_FULL.md's ML section describes: when disabled, every setup is
// taken but a ShadowPrediction is still recorded so the gate's would-be
// performance can be measured against the rule-only baseline.
type Gate struct {
	model     *Model
	enabled   bool
	threshold float64
}

// NewGate returns a Gate over model, applying the filter only when
// enabled is true and always recording a shadow decision.
func NewGate(model *Model, enabled bool, threshold float64) *Gate {
	return &Gate{model: model, enabled: enabled, threshold: threshold}
}

// Evaluate scores features and returns both the binding decision (TAKE
// unconditionally when the gate is disabled) and the shadow prediction
// that would have applied had filtering been on.
func (g *Gate) Evaluate(setupID string, features []float64, now time.Time) (decision domain.MLDecision, shadow domain.ShadowPrediction) {
	prob := g.model.PredictProba(features)

	ruleDecision := domain.DecisionTake
	mlDecision := domain.DecisionSkip
	if prob >= g.threshold {
		mlDecision = domain.DecisionTake
	}

	shadow = domain.ShadowPrediction{
		SetupID:       setupID,
		MLProbability: prob,
		MLDecision:    mlDecision,
		RuleDecision:  ruleDecision,
		Agreement:     mlDecision == ruleDecision,
		ActualOutcome: domain.ResultOpen,
		PredictedAt:   now,
	}

	if !g.enabled {
		return domain.DecisionTake, shadow
	}
	return mlDecision, shadow
}
