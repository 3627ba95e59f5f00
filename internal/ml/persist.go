package ml

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// modelFile is the on-disk representation of a Model. No serialization
// library appears anywhere in the retrieved corpus (the teacher persists
// everything through SQLite or YAML), so the model artifact uses
// encoding/json directly rather than introducing a new dependency for a
// single struct dump — joblib's role, reduced to the stdlib's own
// serialization format.
type modelFile struct {
	FeatureNames []string  `json:"feature_names"`
	Mean         []float64 `json:"mean"`
	Std          []float64 `json:"std"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	Trained      bool      `json:"trained"`
}

// Save writes the model to path as JSON, creating parent directories as
// needed, mirroring SetupClassifier.save's mkdir-then-dump behavior.
func (m *Model) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(modelFile{
		FeatureNames: m.FeatureNames,
		Mean:         m.Mean,
		Std:          m.Std,
		Weights:      m.Weights,
		Bias:         m.Bias,
		Trained:      m.Trained,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadModel reads a model artifact previously written by Save.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, err
	}
	return &Model{
		FeatureNames: mf.FeatureNames,
		Mean:         mf.Mean,
		Std:          mf.Std,
		Weights:      mf.Weights,
		Bias:         mf.Bias,
		Trained:      mf.Trained,
	}, nil
}
