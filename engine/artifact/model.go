package artifact

import (
	"encoding/json"
	"fmt"
	"math"
)

// LinearModel is an ordinary least squares model: intercept plus one
// coefficient per named feature.
type LinearModel struct {
	Intercept    float64
	Coefficients []float64
	features     []string
}

// NewLinearModel builds a linear model. features and coefficients must align.
func NewLinearModel(features []string, intercept float64, coefficients []float64) (*LinearModel, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("linear: no features")
	}
	if len(features) != len(coefficients) {
		return nil, fmt.Errorf("linear: %d features, %d coefficients", len(features), len(coefficients))
	}
	for i, c := range coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("linear: coefficient %s is not finite", features[i])
		}
	}
	return &LinearModel{
		Intercept:    intercept,
		Coefficients: append([]float64(nil), coefficients...),
		features:     append([]string(nil), features...),
	}, nil
}

// FeatureNames returns the trained column order.
func (m *LinearModel) FeatureNames() []string { return append([]string(nil), m.features...) }

// Predict returns intercept + coefficients·row.
func (m *LinearModel) Predict(row []float64) (float64, error) {
	if len(row) != len(m.Coefficients) {
		return 0, fmt.Errorf("linear: row has %d values, want %d", len(row), len(m.Coefficients))
	}
	y := m.Intercept
	for i, x := range row {
		y += m.Coefficients[i] * x
	}
	return y, nil
}

type linearDoc struct {
	header
	FeatureNames []string  `json:"feature_names"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// MarshalJSON writes the artifact document.
func (m *LinearModel) MarshalJSON() ([]byte, error) {
	return json.Marshal(linearDoc{
		header:       header{Kind: KindLinearModel, Version: FormatVersion},
		FeatureNames: m.features,
		Intercept:    m.Intercept,
		Coefficients: m.Coefficients,
	})
}

// DecodeModel parses a model document. It accepts the linear format written
// by the trainer and a native XGBoost JSON model (a document with a top-level
// "learner" object).
func DecodeModel(data []byte) (Regressor, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if _, ok := probe["learner"]; ok {
		return DecodeXGBoost(data)
	}
	h, err := readHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Version > FormatVersion {
		return nil, fmt.Errorf("model: unsupported version %d", h.Version)
	}
	switch h.Kind {
	case KindLinearModel:
		var doc linearDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode linear model: %w", err)
		}
		return NewLinearModel(doc.FeatureNames, doc.Intercept, doc.Coefficients)
	case KindXGBoostModel:
		var wrapped struct {
			Model json.RawMessage `json:"model"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode xgboost wrapper: %w", err)
		}
		return DecodeXGBoost(wrapped.Model)
	default:
		return nil, fmt.Errorf("model: unknown kind %q", h.Kind)
	}
}
