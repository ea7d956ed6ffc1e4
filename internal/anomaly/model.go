package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/coastal-sensor-service/internal/domain"
	"github.com/hed1ad/goguardml/pkg/detectors/iforest"
)

var (
	// ErrInsufficientData is returned when a fit receives too few samples.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrNonFinite is returned when a fit receives NaN or infinite values.
	ErrNonFinite = errors.New("non-finite training value")
)

// ModelState is the training state of a category.
type ModelState uint8

const (
	Untrained ModelState = iota
	Trained
)

func (s ModelState) String() string {
	if s == Trained {
		return "trained"
	}
	return "untrained"
}

func (s ModelState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Detector scores a single value for one category. Every category slot
// holds exactly one Detector: a fitted *Model or a Fallback.
type Detector interface {
	Score(value float64) (domain.AnomalyResult, domain.ScoringPath)
	State() ModelState
}

// Fallback scores values against the category's fixed plausibility range.
// Values of Category outside the enumeration always score {0, false}.
type Fallback struct {
	Category domain.Category
}

func (f Fallback) Score(value float64) (domain.AnomalyResult, domain.ScoringPath) {
	p, ok := domain.ProfileFor(f.Category)
	if !ok {
		return domain.AnomalyResult{}, domain.PathFallback
	}
	anomalous := !p.Plausible.Contains(value)
	score := math.Min(1.0, math.Abs(value-p.Center)/p.Spread)
	return domain.NewAnomalyResult(score, anomalous), domain.PathFallback
}

func (Fallback) State() ModelState { return Untrained }

type forestConfig struct {
	trees         int
	sampleSize    int
	contamination float64
	seed          int64
}

// ForestOption configures the isolation forest behind a Model.
type ForestOption func(*forestConfig)

// WithTrees sets the ensemble size. Defaults to 100.
func WithTrees(n int) ForestOption {
	return func(c *forestConfig) { c.trees = n }
}

// WithSampleSize sets the per-tree subsample size. It is capped at the
// training set size. Defaults to 256.
func WithSampleSize(n int) ForestOption {
	return func(c *forestConfig) { c.sampleSize = n }
}

// WithContamination sets the expected outlier fraction in (0, 0.5].
// Defaults to 0.1.
func WithContamination(v float64) ForestOption {
	return func(c *forestConfig) { c.contamination = v }
}

// WithSeed fixes the forest's random source. Defaults to 42.
func WithSeed(seed int64) ForestOption {
	return func(c *forestConfig) { c.seed = seed }
}

func newForestConfig(opts []ForestOption) (forestConfig, error) {
	cfg := forestConfig{trees: 100, sampleSize: 256, contamination: 0.1, seed: 42}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.trees < 1 || cfg.sampleSize < 2 {
		return cfg, fmt.Errorf("invalid forest parameters: trees=%d sample=%d", cfg.trees, cfg.sampleSize)
	}
	if cfg.contamination <= 0 || cfg.contamination > 0.5 {
		return cfg, fmt.Errorf("contamination %v outside (0, 0.5]", cfg.contamination)
	}
	return cfg, nil
}

// Model is a fitted scaler and isolation forest for one category. A Model is
// immutable once Train returns it.
type Model struct {
	Category  domain.Category
	Samples   int
	TrainedAt time.Time

	scaler StandardScaler
	forest *iforest.IsolationForest

	// Scaled training range and the margin past it beyond which a value is an
	// outlier regardless of the forest. Tied extremes share a leaf the forest
	// cannot split, so it cannot rank values past them.
	lo, hi, margin float64
}

// Train fits a scaler over values, then an isolation forest over the scaled
// values. ctx bounds the fit.
func Train(ctx context.Context, c domain.Category, values []float64, now time.Time, opts ...ForestOption) (*Model, error) {
	cfg, err := newForestConfig(opts)
	if err != nil {
		return nil, err
	}
	if len(values) < 2 {
		return nil, ErrInsufficientData
	}
	scaler, err := FitScaler(values)
	if err != nil {
		return nil, err
	}

	rows := make([][]float64, len(values))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range values {
		z := scaler.Transform(v)
		rows[i] = []float64{z}
		lo = math.Min(lo, z)
		hi = math.Max(hi, z)
	}

	forest := iforest.New(
		iforest.WithTrees(cfg.trees),
		iforest.WithSampleSize(cfg.sampleSize),
		iforest.WithContamination(cfg.contamination),
		iforest.WithSeed(cfg.seed),
	)
	if err := fitForest(ctx, forest, rows); err != nil {
		return nil, err
	}

	return &Model{
		Category:  c,
		Samples:   len(values),
		TrainedAt: now,
		scaler:    scaler,
		forest:    forest,
		lo:        lo,
		hi:        hi,
		margin:    math.Max(hi-lo, 1),
	}, nil
}

// fitForest runs Fit on its own goroutine so ctx can abandon it. An
// abandoned fit finishes in the background and is discarded.
func fitForest(ctx context.Context, forest *iforest.IsolationForest, rows [][]float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fit isolation forest: %w", err)
	}
	done := make(chan error, 1)
	go func() { done <- forest.Fit(rows) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("fit isolation forest: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("fit isolation forest: %w", ctx.Err())
	}
}

// Score reports the amount by which the forest's anomaly score exceeds its
// contamination threshold. Values far outside the training range are
// outliers scored by the raw forest score. A value that cannot be rescaled
// or scored is handled by the fallback for this call only.
func (m *Model) Score(value float64) (domain.AnomalyResult, domain.ScoringPath) {
	z := m.scaler.Transform(value)
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return Fallback{Category: m.Category}.Score(value)
	}
	raw, err := m.forest.PredictOne([]float64{z})
	if err != nil || math.IsNaN(raw) {
		return Fallback{Category: m.Category}.Score(value)
	}

	if z < m.lo-m.margin || z > m.hi+m.margin {
		return domain.NewAnomalyResult(raw, true), domain.PathModel
	}
	threshold := m.forest.Threshold()
	return domain.NewAnomalyResult(raw-threshold, raw > threshold), domain.PathModel
}

func (*Model) State() ModelState { return Trained }
