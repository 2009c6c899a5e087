package pricing

import (
	"fmt"

	"github.com/WessleyAI/wessley-pricing/engine/artifact"
	"github.com/WessleyAI/wessley-pricing/engine/domain"
)

// Matrix is a single encoded feature row with its column names.
type Matrix struct {
	Columns []string  `json:"columns"`
	Values  []float64 `json:"values"`
	// Fallbacks lists label columns whose value was unseen and replaced by
	// the vocabulary's first class.
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// Lookup returns the value of a named column.
func (m Matrix) Lookup(column string) (float64, bool) {
	for i, c := range m.Columns {
		if c == column {
			return m.Values[i], true
		}
	}
	return 0, false
}

// Encoder turns a validated record into the feature row the model was
// trained on. It holds no state; the same record and artifacts always
// produce the same Matrix.
type Encoder struct{}

// Encode lays out domain.BaseColumns (label columns replaced by their
// indices) followed by the one-hot indicators in encoder order.
func (Encoder) Encode(r domain.VehicleRecord, oh *artifact.OneHotEncoder, le *artifact.LabelEncoders) (Matrix, error) {
	indicators, err := oh.Transform(r.Category)
	if err != nil {
		return Matrix{}, fmt.Errorf("pricing: encode: %w", err)
	}

	ohNames := oh.FeatureNames()
	m := Matrix{
		Columns: make([]string, 0, len(domain.BaseColumns)+len(ohNames)),
		Values:  make([]float64, 0, len(domain.BaseColumns)+len(indicators)),
	}
	for _, col := range domain.BaseColumns {
		v, err := baseValue(r, col, le, &m)
		if err != nil {
			return Matrix{}, fmt.Errorf("pricing: encode: %w", err)
		}
		m.Columns = append(m.Columns, col)
		m.Values = append(m.Values, v)
	}
	m.Columns = append(m.Columns, ohNames...)
	m.Values = append(m.Values, indicators...)
	return m, nil
}

func baseValue(r domain.VehicleRecord, col string, le *artifact.LabelEncoders, m *Matrix) (float64, error) {
	if v, ok := r.Numeric(col); ok {
		return v, nil
	}
	s, ok := r.Category(col)
	if !ok {
		return 0, fmt.Errorf("no value for column %s", col)
	}
	idx, fellBack, err := le.Transform(col, s)
	if err != nil {
		return 0, err
	}
	if fellBack {
		m.Fallbacks = append(m.Fallbacks, col)
	}
	return float64(idx), nil
}
