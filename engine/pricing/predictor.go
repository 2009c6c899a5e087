// Package pricing turns a vehicle record into a price estimate: it validates
// the record, encodes it with the fitted encoders and runs the trained model.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/WessleyAI/wessley-pricing/engine/artifact"
	"github.com/WessleyAI/wessley-pricing/engine/domain"
	"github.com/WessleyAI/wessley-pricing/pkg/fn"
	"github.com/WessleyAI/wessley-pricing/pkg/metrics"
)

// Artifacts supplies the trained objects. *artifact.Store implements it.
type Artifacts interface {
	Model(ctx context.Context) (artifact.Regressor, error)
	OneHot(ctx context.Context) (*artifact.OneHotEncoder, error)
	Labels(ctx context.Context) (*artifact.LabelEncoders, error)
}

// Estimate is the result of one prediction.
type Estimate struct {
	Value   float64
	Rounded decimal.Decimal
	Matrix  Matrix
}

// Predictor runs the validate → load → encode → infer pipeline. It is safe
// for concurrent use.
type Predictor struct {
	artifacts Artifacts
	encoder   Encoder
	logger    *slog.Logger
	pipeline  fn.Stage[domain.VehicleRecord, Estimate]

	predictions *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// loaded carries the record and the artifacts between stages.
type loaded struct {
	record domain.VehicleRecord
	model  artifact.Regressor
	oneHot *artifact.OneHotEncoder
	labels *artifact.LabelEncoders
}

type encoded struct {
	model  artifact.Regressor
	matrix Matrix
}

// NewPredictor creates a Predictor. reg and logger may be nil.
func NewPredictor(arts Artifacts, reg *metrics.Registry, logger *slog.Logger) *Predictor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Predictor{artifacts: arts, logger: logger}
	if reg != nil {
		p.predictions = reg.Counter("predictions_total", "Price predictions by outcome.", "outcome")
		p.fallbacks = reg.Counter("label_fallbacks_total", "Unseen label values replaced by the first class.", "column")
		p.latency = reg.Histogram("predict_duration_seconds", "Time spent in Predict.", nil, "outcome")
	}
	p.pipeline = fn.Then(
		fn.Then(
			fn.TracedStage("pricing.validate", p.validate),
			fn.TracedStage("pricing.load", p.load),
		),
		fn.Then(
			fn.TracedStage("pricing.encode", p.encode),
			fn.TracedStage("pricing.infer", p.infer),
		),
	)
	return p
}

// Predict validates r, encodes it and returns the model's estimate. Schema
// errors are returned before any artifact is loaded.
func (p *Predictor) Predict(ctx context.Context, r domain.VehicleRecord) (Estimate, error) {
	start := time.Now()
	est, err := p.pipeline(ctx, r).Unwrap()
	p.observe(start, err)
	if err != nil {
		return Estimate{}, err
	}
	return est, nil
}

func (p *Predictor) validate(_ context.Context, r domain.VehicleRecord) fn.Result[domain.VehicleRecord] {
	if err := domain.ValidateRecord(r); err != nil {
		return fn.Err[domain.VehicleRecord](err)
	}
	return fn.Ok(r)
}

func (p *Predictor) load(ctx context.Context, r domain.VehicleRecord) fn.Result[loaded] {
	m, err := p.artifacts.Model(ctx)
	if err != nil {
		return fn.Err[loaded](err)
	}
	oh, err := p.artifacts.OneHot(ctx)
	if err != nil {
		return fn.Err[loaded](err)
	}
	le, err := p.artifacts.Labels(ctx)
	if err != nil {
		return fn.Err[loaded](err)
	}
	return fn.Ok(loaded{record: r, model: m, oneHot: oh, labels: le})
}

func (p *Predictor) encode(_ context.Context, in loaded) fn.Result[encoded] {
	m, err := p.encoder.Encode(in.record, in.oneHot, in.labels)
	if err != nil {
		return fn.Err[encoded](err)
	}
	for _, col := range m.Fallbacks {
		v, _ := in.record.Category(col)
		p.logger.Debug("unseen label value, using first class", "column", col, "value", v)
		if p.fallbacks != nil {
			p.fallbacks.WithLabelValues(col).Inc()
		}
	}
	if want := in.model.FeatureNames(); !slices.Equal(want, m.Columns) {
		return fn.Err[encoded](fmt.Errorf("pricing: %w: model expects %v, encoder produced %v", ErrLayoutMismatch, want, m.Columns))
	}
	return fn.Ok(encoded{model: in.model, matrix: m})
}

func (p *Predictor) infer(_ context.Context, in encoded) fn.Result[Estimate] {
	y, err := in.model.Predict(in.matrix.Values)
	if err != nil {
		return fn.Err[Estimate](fmt.Errorf("pricing: infer: %w", err))
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return fn.Err[Estimate](fmt.Errorf("pricing: %w: %v", ErrNonFinite, y))
	}
	return fn.Ok(Estimate{
		Value:   y,
		Rounded: decimal.NewFromFloat(y).Round(2),
		Matrix:  in.matrix,
	})
}

func (p *Predictor) observe(start time.Time, err error) {
	if p.predictions == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = Classify(err).String() + "_error"
	}
	p.predictions.WithLabelValues(outcome).Inc()
	metrics.Since(p.latency.WithLabelValues(outcome), start)
}
