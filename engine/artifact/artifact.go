// Package artifact holds the three immutable objects produced by training:
// the regression model, the one-hot encoder and the label encoders. It knows
// their on-disk JSON formats and guarantees each is deserialized at most once
// per process.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrArtifactCorrupt  = errors.New("artifact corrupt")
	ErrUnseenCategory   = errors.New("unseen one-hot category")
)

// Artifact kinds written in the "kind" field of every document.
const (
	KindOneHotEncoder = "one_hot_encoder"
	KindLabelEncoder  = "label_encoder"
	KindLinearModel   = "linear"
	KindXGBoostModel  = "xgboost"
)

// FormatVersion is the current document version.
const FormatVersion = 1

// UnseenCategoryError reports a one-hot column value outside the fitted vocabulary.
type UnseenCategoryError struct {
	Column string
	Value  string
}

func (e *UnseenCategoryError) Error() string {
	return fmt.Sprintf("%s: column %s: value %q", ErrUnseenCategory, e.Column, e.Value)
}

func (e *UnseenCategoryError) Unwrap() error { return ErrUnseenCategory }

// Regressor is a trained model. Predict takes one row laid out exactly as
// FeatureNames and returns one value.
type Regressor interface {
	Predict(row []float64) (float64, error)
	FeatureNames() []string
}

// header is the envelope shared by all artifact documents.
type header struct {
	Kind    string `json:"kind"`
	Version int    `json:"version"`
}

func readHeader(data []byte) (header, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func expectKind(data []byte, kind string) error {
	h, err := readHeader(data)
	if err != nil {
		return err
	}
	if h.Kind != kind {
		return fmt.Errorf("kind %q, want %q", h.Kind, kind)
	}
	if h.Version > FormatVersion {
		return fmt.Errorf("unsupported version %d", h.Version)
	}
	return nil
}
