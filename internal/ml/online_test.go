package ml_test

import (
	"testing"

	"github.com/benagen/slobtrading/internal/ml"
	"github.com/stretchr/testify/assert"
)

func TestOnlineUpdater_ImprovesWithRepeatedSignal(t *testing.T) {
	m := ml.NewModel([]string{"f1"})
	u := ml.NewOnlineUpdater(m, 0.3)

	for i := 0; i < 200; i++ {
		u.Update([]float64{5}, true)
		u.Update([]float64{-5}, false)
	}

	assert.True(t, m.Predict([]float64{5}, 0.5))
	assert.False(t, m.Predict([]float64{-5}, 0.5))

	metrics := u.GetMetrics()
	assert.Equal(t, 400, metrics.NUpdates)
	assert.Greater(t, metrics.Accuracy, 0.8)
}

func TestOnlineUpdater_ResetMetricsKeepsWeights(t *testing.T) {
	m := ml.NewModel([]string{"f1"})
	u := ml.NewOnlineUpdater(m, 0.3)
	u.Update([]float64{1}, true)

	weightsBefore := append([]float64(nil), m.Weights...)
	u.ResetMetrics()

	assert.Equal(t, weightsBefore, m.Weights)
	assert.Equal(t, 0.0, u.GetMetrics().Accuracy)
	assert.Equal(t, 1, u.GetMetrics().NUpdates)
}
