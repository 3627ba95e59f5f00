// Package ml implements the win-probability gate that sits between a
// completed pattern Setup and order submission. Grounded on
// original_source/slob/ml/setup_classifier.py (XGBoost + StandardScaler)
// and continual_learner.py (River online logistic regression): no
// gradient-boosting or online-learning library exists anywhere in the
// retrieved corpus, so both the batch classifier and the online updater
// are expressed as a single logistic-regression model — the same
// decision-boundary role XGBoost fills there, trained with batched
// gradient descent instead of boosted trees, and updated one sample at a
// time the way River's learn_one does.
package ml

import "math"

// Model is a standardized logistic-regression classifier: every feature
// is scaled by (x-mean)/std before the linear combination, matching the
// scaler+model pipeline pattern.
type Model struct {
	FeatureNames []string
	Mean         []float64
	Std          []float64
	Weights      []float64
	Bias         float64
	Trained      bool
}

// NewModel returns an untrained model sized for the given feature names,
// with an identity scaler (mean 0, std 1) until Train or Update runs.
func NewModel(featureNames []string) *Model {
	n := len(featureNames)
	std := make([]float64, n)
	for i := range std {
		std[i] = 1
	}
	return &Model{
		FeatureNames: append([]string(nil), featureNames...),
		Mean:         make([]float64, n),
		Std:          std,
		Weights:      make([]float64, n),
	}
}

func (m *Model) scale(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		s := m.Std[i]
		if s == 0 {
			s = 1
		}
		out[i] = (v - m.Mean[i]) / s
	}
	return out
}

// PredictProba returns the model's win probability for one feature
// vector, in FeatureNames order. An untrained model returns 0.5 (no
// information), matching ContinualLearner.predict_probability's
// cold-start fallback.
func (m *Model) PredictProba(x []float64) float64 {
	if !m.Trained {
		return 0.5
	}
	z := m.Bias
	scaled := m.scale(x)
	for i, v := range scaled {
		z += m.Weights[i] * v
	}
	return sigmoid(z)
}

// Predict applies threshold to PredictProba.
func (m *Model) Predict(x []float64, threshold float64) bool {
	return m.PredictProba(x) >= threshold
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// EvalMetrics mirrors SetupClassifier.evaluate's return shape: AUC,
// accuracy, precision, recall, F1, plus the raw confusion counts.
type EvalMetrics struct {
	AUC       float64
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	TP, FP, TN, FN int
}

// Evaluate scores the model against a labeled test set (true = WIN).
func (m *Model) Evaluate(xs [][]float64, ys []bool, threshold float64) EvalMetrics {
	var metrics EvalMetrics
	probs := make([]float64, len(xs))
	for i, x := range xs {
		probs[i] = m.PredictProba(x)
		pred := probs[i] >= threshold
		switch {
		case pred && ys[i]:
			metrics.TP++
		case pred && !ys[i]:
			metrics.FP++
		case !pred && !ys[i]:
			metrics.TN++
		default:
			metrics.FN++
		}
	}

	total := metrics.TP + metrics.FP + metrics.TN + metrics.FN
	if total > 0 {
		metrics.Accuracy = float64(metrics.TP+metrics.TN) / float64(total)
	}
	if metrics.TP+metrics.FP > 0 {
		metrics.Precision = float64(metrics.TP) / float64(metrics.TP+metrics.FP)
	}
	if metrics.TP+metrics.FN > 0 {
		metrics.Recall = float64(metrics.TP) / float64(metrics.TP+metrics.FN)
	}
	if metrics.Precision+metrics.Recall > 0 {
		metrics.F1 = 2 * metrics.Precision * metrics.Recall / (metrics.Precision + metrics.Recall)
	}
	metrics.AUC = rocAUC(probs, ys)
	return metrics
}

// rocAUC computes AUC via the Mann-Whitney U equivalence: the fraction
// of (positive, negative) pairs the model ranks correctly.
func rocAUC(probs []float64, ys []bool) float64 {
	var pos, neg []float64
	for i, p := range probs {
		if ys[i] {
			pos = append(pos, p)
		} else {
			neg = append(neg, p)
		}
	}
	if len(pos) == 0 || len(neg) == 0 {
		return 0.5
	}
	var wins float64
	for _, p := range pos {
		for _, n := range neg {
			switch {
			case p > n:
				wins++
			case p == n:
				wins += 0.5
			}
		}
	}
	return wins / float64(len(pos)*len(neg))
}
