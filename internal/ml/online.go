package ml

// OnlineUpdater wraps a Model with the single-sample SGD update and the
// running metric trackers ContinualLearner keeps (accuracy, precision,
// recall) — so a live trading engine can adapt the gate between
// sessions without a full retrain.
type OnlineUpdater struct {
	model *Model
	rate  float64

	nUpdates       int
	tp, fp, tn, fn int
}

// NewOnlineUpdater wraps model for incremental updates at the given
// per-sample learning rate (the teacher's River pipeline has no
// explicit rate; this exposes one since plain SGD needs it).
func NewOnlineUpdater(model *Model, rate float64) *OnlineUpdater {
	return &OnlineUpdater{model: model, rate: rate}
}

// Update performs predict-then-learn on one sample: score the pending
// prediction for the running metrics first, then take one SGD step
// against the realized outcome, mirroring continual_learner.py's
// update() ordering (predict before learn, so the metric reflects
// genuine out-of-sample performance).
func (u *OnlineUpdater) Update(features []float64, outcome bool) {
	m := u.model
	if len(m.Mean) == 0 {
		m.fitScaler([][]float64{features})
		m.Trained = true
	}

	prob := m.PredictProba(features)
	pred := prob >= 0.5
	switch {
	case pred && outcome:
		u.tp++
	case pred && !outcome:
		u.fp++
	case !pred && !outcome:
		u.tn++
	default:
		u.fn++
	}

	label := 0.0
	if outcome {
		label = 1
	}
	scaled := m.scale(features)
	z := m.Bias
	for i, v := range scaled {
		z += m.Weights[i] * v
	}
	err := sigmoid(z) - label
	for i, v := range scaled {
		m.Weights[i] -= u.rate * err * v
	}
	m.Bias -= u.rate * err
	m.Trained = true
	u.nUpdates++
}

// Metrics mirrors ContinualLearner.get_metrics' fields (minus AUC, which
// needs the full score history to compute and isn't tracked online).
type Metrics struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	NUpdates  int
}

// GetMetrics returns the running classification metrics.
func (u *OnlineUpdater) GetMetrics() Metrics {
	var mtr Metrics
	mtr.NUpdates = u.nUpdates
	total := u.tp + u.fp + u.tn + u.fn
	if total > 0 {
		mtr.Accuracy = float64(u.tp+u.tn) / float64(total)
	}
	if u.tp+u.fp > 0 {
		mtr.Precision = float64(u.tp) / float64(u.tp+u.fp)
	}
	if u.tp+u.fn > 0 {
		mtr.Recall = float64(u.tp) / float64(u.tp+u.fn)
	}
	return mtr
}

// ResetMetrics clears the running counters but keeps the model weights,
// matching ContinualLearner.reset_metrics.
func (u *OnlineUpdater) ResetMetrics() {
	u.tp, u.fp, u.tn, u.fn = 0, 0, 0, 0
}
