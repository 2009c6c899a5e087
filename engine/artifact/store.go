package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/WessleyAI/wessley-pricing/pkg/metrics"
)

// Paths locates the three artifacts on disk.
type Paths struct {
	Model  string
	OneHot string
	Labels string
}

// Stats reports how many times each artifact has been deserialized.
type Stats struct {
	ModelLoads  int64 `json:"model_loads"`
	OneHotLoads int64 `json:"one_hot_loads"`
	LabelLoads  int64 `json:"label_loads"`
}

// Ready reports whether all three artifacts are in memory.
func (s Stats) Ready() bool {
	return s.ModelLoads > 0 && s.OneHotLoads > 0 && s.LabelLoads > 0
}

// slot holds one lazily loaded artifact. Reads after the first successful
// load are a single atomic load; the first load runs under mu.
type slot[T any] struct {
	kind  string
	path  string
	dec   func([]byte) (T, error)
	mu    sync.Mutex
	val   atomic.Pointer[T]
	loads atomic.Int64
}

// Store loads each artifact at most once per process and hands out the
// cached, immutable instance afterwards. A Store is safe for concurrent use.
type Store struct {
	model  *slot[Regressor]
	oneHot *slot[*OneHotEncoder]
	labels *slot[*LabelEncoders]

	logger    *slog.Logger
	loadTotal *prometheus.CounterVec
	loadTime  *prometheus.HistogramVec
}

// NewStore creates a Store reading from paths. Nothing is read until the
// first accessor call. reg may be nil.
func NewStore(paths Paths, reg *metrics.Registry, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		model:  &slot[Regressor]{kind: "model", path: paths.Model, dec: DecodeModel},
		oneHot: &slot[*OneHotEncoder]{kind: "one_hot_encoder", path: paths.OneHot, dec: DecodeOneHotEncoder},
		labels: &slot[*LabelEncoders]{kind: "label_encoder", path: paths.Labels, dec: DecodeLabelEncoders},
		logger: logger,
	}
	if reg != nil {
		s.loadTotal = reg.Counter("artifact_loads_total", "Artifact deserializations by kind and result.", "kind", "result")
		s.loadTime = reg.Histogram("artifact_load_duration_seconds", "Time spent reading and decoding an artifact.", nil, "kind")
	}
	return s
}

// Model returns the trained regressor, loading it on first call.
func (s *Store) Model(ctx context.Context) (Regressor, error) {
	return load(ctx, s, s.model)
}

// OneHot returns the one-hot encoder, loading it on first call.
func (s *Store) OneHot(ctx context.Context) (*OneHotEncoder, error) {
	return load(ctx, s, s.oneHot)
}

// Labels returns the label encoders, loading them on first call.
func (s *Store) Labels(ctx context.Context) (*LabelEncoders, error) {
	return load(ctx, s, s.labels)
}

// EnsureLoaded loads all three artifacts. It stops at the first error.
func (s *Store) EnsureLoaded(ctx context.Context) error {
	if _, err := s.Model(ctx); err != nil {
		return err
	}
	if _, err := s.OneHot(ctx); err != nil {
		return err
	}
	if _, err := s.Labels(ctx); err != nil {
		return err
	}
	return nil
}

// Stats returns the per-artifact load counters.
func (s *Store) Stats() Stats {
	return Stats{
		ModelLoads:  s.model.loads.Load(),
		OneHotLoads: s.oneHot.loads.Load(),
		LabelLoads:  s.labels.loads.Load(),
	}
}

func load[T any](ctx context.Context, s *Store, sl *slot[T]) (T, error) {
	if p := sl.val.Load(); p != nil {
		return *p, nil
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if p := sl.val.Load(); p != nil {
		return *p, nil
	}

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("artifact: load %s: %w", sl.kind, err)
	}

	start := time.Now()
	v, err := readSlot(sl)
	s.observe(sl.kind, start, err)
	if err != nil {
		s.logger.Error("artifact load failed", "kind", sl.kind, "path", sl.path, "err", err)
		return zero, err
	}

	sl.loads.Add(1)
	sl.val.Store(&v)
	s.logger.Info("artifact loaded", "kind", sl.kind, "path", sl.path, "duration", time.Since(start))
	return v, nil
}

func readSlot[T any](sl *slot[T]) (T, error) {
	var zero T
	data, err := os.ReadFile(sl.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return zero, fmt.Errorf("artifact: %s %q: %w", sl.kind, sl.path, ErrArtifactNotFound)
		}
		return zero, fmt.Errorf("artifact: read %s %q: %w", sl.kind, sl.path, err)
	}
	v, err := sl.dec(data)
	if err != nil {
		return zero, fmt.Errorf("artifact: %s %q: %w: %w", sl.kind, sl.path, ErrArtifactCorrupt, err)
	}
	return v, nil
}

func (s *Store) observe(kind string, start time.Time, err error) {
	if s.loadTotal == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, ErrArtifactNotFound):
		result = "not_found"
	case errors.Is(err, ErrArtifactCorrupt):
		result = "corrupt"
	case err != nil:
		result = "error"
	}
	s.loadTotal.WithLabelValues(kind, result).Inc()
	metrics.Since(s.loadTime.WithLabelValues(kind), start)
}
