package training

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/WessleyAI/wessley-pricing/engine/artifact"
	"github.com/WessleyAI/wessley-pricing/engine/pricing"
)

// Artifact file names written to Config.OutDir.
const (
	ModelFile  = "model.json"
	OneHotFile = "one_hot_encoder.json"
	LabelFile  = "label_encoder.json"
)

// Config controls a training run.
type Config struct {
	DataPath    string
	OutDir      string
	TestSize    float64
	Seed        uint64
	Workers     int
	DropColumns []string
	Ranges      map[string]Range
}

// DefaultConfig returns the standard cleaning rules and a 20% test split.
func DefaultConfig() Config {
	return Config{
		OutDir:      "ml_models",
		TestSize:    0.2,
		Seed:        1234,
		Workers:     runtime.NumCPU(),
		DropColumns: DefaultDropColumns,
		Ranges:      DefaultRanges,
	}
}

// Report summarizes a training run.
type Report struct {
	Clean    CleanReport    `json:"clean"`
	Train    int            `json:"train_rows"`
	Test     int            `json:"test_rows"`
	Features []string       `json:"features"`
	Scores   Scores         `json:"scores"`
	Paths    artifact.Paths `json:"artifacts"`
	Duration time.Duration  `json:"duration"`
}

// Run reads cfg.DataPath, fits and evaluates a model and writes the three
// artifacts to cfg.OutDir.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TestSize <= 0 || cfg.TestSize >= 1 {
		return nil, fmt.Errorf("training: test size %v must be in (0,1)", cfg.TestSize)
	}
	start := time.Now()

	f, err := os.Open(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("training: open dataset: %w", err)
	}
	table, err := ReadCSV(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	logger.Info("dataset read", "path", cfg.DataPath, "rows", table.Len(), "columns", len(table.Header))

	samples, cleanRep, err := Clean(ctx, table, cfg.DropColumns, cfg.Ranges)
	if err != nil {
		return nil, err
	}
	logger.Info("dataset cleaned", "kept", cleanRep.Kept, "dropped_dash", cleanRep.DroppedDash,
		"dropped_poa", cleanRep.DroppedPOA, "dropped_parse", cleanRep.DroppedParse, "dropped_range", cleanRep.DroppedRange)
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: %d rows left after cleaning", ErrNoSamples, len(samples))
	}

	oh, le, err := FitEncoders(samples)
	if err != nil {
		return nil, err
	}

	var enc pricing.Encoder
	x := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	var names []string
	for i, s := range samples {
		m, err := enc.Encode(s.Record, oh, le)
		if err != nil {
			return nil, fmt.Errorf("training: encode row %d: %w", i, err)
		}
		x[i], y[i], names = m.Values, s.Price, m.Columns
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trainIdx, testIdx := Split(len(samples), cfg.TestSize, cfg.Seed)
	xTrain, yTrain := gather(x, y, trainIdx)
	xTest, yTest := gather(x, y, testIdx)

	model, err := FitLinear(names, xTrain, yTrain)
	if err != nil {
		return nil, err
	}
	scores, err := Evaluate(model, xTest, yTest, cfg.Workers)
	if err != nil {
		return nil, err
	}
	logger.Info("model evaluated", "mse", scores.MSE, "mae", scores.MAE, "rmse", scores.RMSE, "r2", scores.R2)

	paths := artifact.Paths{
		Model:  filepath.Join(cfg.OutDir, ModelFile),
		OneHot: filepath.Join(cfg.OutDir, OneHotFile),
		Labels: filepath.Join(cfg.OutDir, LabelFile),
	}
	if err := artifact.Save(paths.OneHot, oh); err != nil {
		return nil, err
	}
	if err := artifact.Save(paths.Labels, le); err != nil {
		return nil, err
	}
	if err := artifact.Save(paths.Model, model); err != nil {
		return nil, err
	}

	return &Report{
		Clean:    cleanRep,
		Train:    len(trainIdx),
		Test:     len(testIdx),
		Features: names,
		Scores:   scores,
		Paths:    paths,
		Duration: time.Since(start),
	}, nil
}

// Split shuffles 0..n-1 with seed and returns train and test indices. The
// test set gets round(n*testSize) rows, at least one and at most n-1.
func Split(n int, testSize float64, seed uint64) (train, test []int) {
	perm := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).Perm(n)
	k := int(float64(n)*testSize + 0.5)
	k = max(1, min(k, n-1))
	return perm[k:], perm[:k]
}

func gather(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	gx := make([][]float64, len(idx))
	gy := make([]float64, len(idx))
	for i, j := range idx {
		gx[i], gy[i] = x[j], y[j]
	}
	return gx, gy
}
