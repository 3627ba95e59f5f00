package ml

import "math"

// TrainConfig mirrors SetupClassifier.train's hyperparameters, minus the
// tree-specific ones (n_estimators, max_depth) that have no meaning for
// a linear model.
type TrainConfig struct {
	Epochs       int
	LearningRate float64
	L2           float64
}

// DefaultTrainConfig matches the teacher's learning_rate=0.1 default,
// with an epoch count and L2 penalty suited to full-batch gradient
// descent over a 37-feature vector.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{Epochs: 300, LearningRate: 0.1, L2: 0.001}
}

// TrainResult mirrors the dict SetupClassifier.train returns: no
// cross-validation folds here (there is no tree ensemble to average
// over), just the final training-set AUC as a sanity signal.
type TrainResult struct {
	TrainAUC float64
}

// Train fits the scaler (mean/std per feature) then runs full-batch
// gradient descent to minimize logistic loss with L2 regularization.
// X is row-major, one row per sample, columns in m.FeatureNames order.
// y is WIN=true / LOSS=false, mirroring the teacher's 1/0 label.
func (m *Model) Train(X [][]float64, y []bool, cfg TrainConfig) TrainResult {
	n := len(X)
	if n == 0 {
		return TrainResult{}
	}
	nf := len(m.FeatureNames)

	m.fitScaler(X)
	scaled := make([][]float64, n)
	for i, row := range X {
		scaled[i] = m.scale(row)
	}

	labels := make([]float64, n)
	for i, b := range y {
		if b {
			labels[i] = 1
		}
	}

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		gradW := make([]float64, nf)
		var gradB float64
		for i, row := range scaled {
			z := m.Bias
			for j, v := range row {
				z += m.Weights[j] * v
			}
			pred := sigmoid(z)
			err := pred - labels[i]
			for j, v := range row {
				gradW[j] += err * v
			}
			gradB += err
		}
		for j := range m.Weights {
			grad := gradW[j]/float64(n) + cfg.L2*m.Weights[j]
			m.Weights[j] -= cfg.LearningRate * grad
		}
		m.Bias -= cfg.LearningRate * gradB / float64(n)
	}

	m.Trained = true

	probs := make([]float64, n)
	for i, row := range X {
		probs[i] = m.PredictProba(row)
	}
	return TrainResult{TrainAUC: rocAUC(probs, y)}
}

func (m *Model) fitScaler(X [][]float64) {
	n := float64(len(X))
	nf := len(m.FeatureNames)
	mean := make([]float64, nf)
	for _, row := range X {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= n
	}

	variance := make([]float64, nf)
	for _, row := range X {
		for j, v := range row {
			d := v - mean[j]
			variance[j] += d * d
		}
	}
	std := make([]float64, nf)
	for j := range std {
		v := variance[j] / n
		if v <= 0 {
			std[j] = 1
		} else {
			std[j] = math.Sqrt(v)
		}
	}

	m.Mean = mean
	m.Std = std
}
