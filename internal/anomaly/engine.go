// Package anomaly scores sensor values against a rolling per-category
// history. Each category is scored by a fitted isolation forest once enough
// history exists, and by fixed plausibility ranges otherwise.
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/coastal-sensor-service/internal/domain"
	"github.com/couchcryptid/coastal-sensor-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// RetrainPolicy decides which categories are refit when a retrain fires.
type RetrainPolicy uint8

const (
	// PolicyCategory refits only the category that received the value, every
	// RetrainEvery appends to that category.
	PolicyCategory RetrainPolicy = iota
	// PolicyAll refits every category whenever the scored category's history
	// length is a multiple of RetrainEvery. Once a history is full this fires
	// on every append.
	PolicyAll
)

func (p RetrainPolicy) String() string {
	if p == PolicyAll {
		return "all"
	}
	return "category"
}

// ParseRetrainPolicy maps "category" or "all" to a policy.
func ParseRetrainPolicy(s string) (RetrainPolicy, error) {
	switch s {
	case "category":
		return PolicyCategory, nil
	case "all":
		return PolicyAll, nil
	default:
		return 0, fmt.Errorf("unknown retrain policy %q", s)
	}
}

// ModelStatus is a point-in-time view of one category.
type ModelStatus struct {
	Category    domain.Category `json:"category"`
	State       ModelState      `json:"state"`
	HistorySize int             `json:"history_size"`
	Appends     uint64          `json:"appends"`
	TrainedOn   int             `json:"trained_on,omitempty"`
	TrainedAt   *time.Time      `json:"trained_at,omitempty"`
}

// published wraps the detector so slots can swap it atomically.
type published struct {
	detector Detector
}

type slot struct {
	category domain.Category

	mu         sync.Mutex // guards history, appends and generation
	history    *HistoryBuffer
	appends    uint64
	generation uint64 // bumped by Reset; fits from older generations are dropped

	current  atomic.Pointer[published]
	training atomic.Bool
}

func (s *slot) detector() Detector {
	return s.current.Load().detector
}

func (s *slot) publish(d Detector) {
	s.current.Store(&published{detector: d})
}

// snapshot returns a copy of the history and the generation it belongs to.
func (s *slot) snapshot() ([]float64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Values(), s.generation
}

// publishFor publishes d only if no Reset happened since gen was captured.
func (s *slot) publishFor(gen uint64, d Detector) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.publish(d)
	return true
}

// Engine classifies values per category and maintains the models behind
// those decisions. Score is safe for concurrent use.
type Engine struct {
	slots map[domain.Category]*slot

	historyCapacity int
	retrainEvery    int
	minSamples      int
	policy          RetrainPolicy
	async           bool
	fitTimeout      time.Duration
	forestOpts      []ForestOption

	baselineRand *rand.Rand
	baselineSize int
	baselineMu   sync.Mutex

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	wg sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistoryCapacity bounds each category's history. Defaults to 200.
func WithHistoryCapacity(n int) Option {
	return func(e *Engine) { e.historyCapacity = n }
}

// WithRetrainEvery sets the retrain interval in appends. Defaults to 50.
func WithRetrainEvery(n int) Option {
	return func(e *Engine) { e.retrainEvery = n }
}

// WithMinSamples sets the history size a category must exceed before a model
// is fitted. Defaults to 10.
func WithMinSamples(n int) Option {
	return func(e *Engine) { e.minSamples = n }
}

// WithRetrainPolicy selects which categories a retrain refits.
func WithRetrainPolicy(p RetrainPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithAsyncTraining moves periodic refits onto background goroutines. Callers
// keep being scored by the previous detector until the new one is published.
func WithAsyncTraining(enabled bool) Option {
	return func(e *Engine) { e.async = enabled }
}

// WithFitTimeout bounds a single fit. Zero disables the bound.
func WithFitTimeout(d time.Duration) Option {
	return func(e *Engine) { e.fitTimeout = d }
}

// WithForestOptions forwards options to every isolation forest the engine fits.
func WithForestOptions(opts ...ForestOption) Option {
	return func(e *Engine) { e.forestOpts = append(e.forestOpts, opts...) }
}

// WithBaseline seeds every category with n clipped normal samples drawn from
// r and fits initial models, so scoring starts on the model path.
func WithBaseline(r *rand.Rand, n int) Option {
	return func(e *Engine) {
		e.baselineRand = r
		e.baselineSize = n
	}
}

// WithClock sets the time source for training timestamps and durations.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records scoring and training metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine with one slot per known category.
func New(opts ...Option) *Engine {
	e := &Engine{
		historyCapacity: DefaultHistoryCapacity,
		retrainEvery:    50,
		minSamples:      10,
		clock:           clockwork.NewRealClock(),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retrainEvery < 1 {
		e.retrainEvery = 1
	}

	e.slots = make(map[domain.Category]*slot, len(domain.Categories))
	for _, c := range domain.Categories {
		s := &slot{category: c, history: NewHistoryBuffer(e.historyCapacity)}
		s.publish(Fallback{Category: c})
		e.slots[c] = s
	}

	e.seedBaseline()
	return e
}

// Score classifies value for category c. It never fails: unknown categories
// score {0, false} without touching any history, and non-finite values score
// {0, false} without being recorded.
func (e *Engine) Score(value float64, c domain.Category) domain.AnomalyResult {
	res, _ := e.ScoreWithPath(value, c)
	return res
}

// ScoreType is Score for a category given by its wire name.
func (e *Engine) ScoreType(value float64, category string) domain.AnomalyResult {
	c, ok := domain.ParseCategory(category)
	if !ok {
		return domain.AnomalyResult{}
	}
	return e.Score(value, c)
}

// ScoreWithPath is Score that also reports which detector produced the result.
func (e *Engine) ScoreWithPath(value float64, c domain.Category) (domain.AnomalyResult, domain.ScoringPath) {
	s, ok := e.slots[c]
	if !ok {
		return Fallback{Category: c}.Score(value)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		e.logger.Warn("rejecting non-finite value", "category", c.String(), "value", value)
		e.observeScore(c, domain.AnomalyResult{}, domain.PathRejected)
		return domain.AnomalyResult{}, domain.PathRejected
	}

	s.mu.Lock()
	s.history.Push(value)
	s.appends++
	size := s.history.Len()
	retrain := e.retrainDue(s, size)
	s.mu.Unlock()

	if e.metrics != nil {
		e.metrics.HistorySize.WithLabelValues(c.String()).Set(float64(size))
	}

	if retrain {
		if e.policy == PolicyAll {
			for _, other := range domain.Categories {
				e.scheduleFit(e.slots[other])
			}
		} else {
			e.scheduleFit(s)
		}
	}

	res, path := s.detector().Score(value)
	e.observeScore(c, res, path)
	return res, path
}

// retrainDue decides whether the append that produced size triggers a refit.
// Callers hold s.mu.
func (e *Engine) retrainDue(s *slot, size int) bool {
	if e.policy == PolicyAll {
		return size%e.retrainEvery == 0
	}
	if s.appends%uint64(e.retrainEvery) == 0 {
		return true
	}
	// First model for an untrained category as soon as history allows it.
	return size == e.minSamples+1 && s.detector().State() == Untrained
}

// scheduleFit refits s unless a fit is already running for it.
func (e *Engine) scheduleFit(s *slot) {
	if !s.training.CompareAndSwap(false, true) {
		return
	}
	values, gen := s.snapshot()

	if !e.async {
		defer s.training.Store(false)
		e.fit(context.Background(), s, values, gen)
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer s.training.Store(false)
		e.fit(context.Background(), s, values, gen)
	}()
}

// fit trains a model over values and publishes it. Any failure publishes the
// fallback detector instead. Nothing is published when the slot was reset
// after values were captured at generation gen.
func (e *Engine) fit(ctx context.Context, s *slot, values []float64, gen uint64) ModelState {
	name := s.category.String()

	if len(values) <= e.minSamples {
		if !s.publishFor(gen, Fallback{Category: s.category}) {
			return e.discardStale(s)
		}
		e.observeTraining(s.category, "insufficient", 0, Untrained)
		e.logger.Debug("not enough history to train", "category", name, "samples", len(values))
		return Untrained
	}

	if e.fitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.fitTimeout)
		defer cancel()
	}

	start := e.clock.Now()
	model, err := Train(ctx, s.category, values, start, e.forestOpts...)
	elapsed := e.clock.Since(start)
	if err != nil {
		if !s.publishFor(gen, Fallback{Category: s.category}) {
			return e.discardStale(s)
		}
		e.observeTraining(s.category, "failure", elapsed, Untrained)
		e.logger.Warn("model training failed, using fallback scoring",
			"category", name,
			"samples", len(values),
			"error", err,
		)
		return Untrained
	}

	if !s.publishFor(gen, model) {
		return e.discardStale(s)
	}
	e.observeTraining(s.category, "success", elapsed, Trained)
	e.logger.Debug("model trained", "category", name, "samples", len(values), "duration", elapsed)
	return Trained
}

// discardStale drops the result of a fit that raced a Reset and reports the
// state the slot holds now.
func (e *Engine) discardStale(s *slot) ModelState {
	e.logger.Debug("discarding fit from before reset", "category", s.category.String())
	if e.metrics != nil {
		e.metrics.ModelTrainings.WithLabelValues(s.category.String(), "stale").Inc()
	}
	return s.detector().State()
}

// Retrain synchronously refits category c from its current history and
// reports the resulting state. Unknown categories report Untrained.
func (e *Engine) Retrain(ctx context.Context, c domain.Category) ModelState {
	s, ok := e.slots[c]
	if !ok {
		return Untrained
	}
	values, gen := s.snapshot()
	return e.fit(ctx, s, values, gen)
}

// RetrainAll synchronously refits every category.
func (e *Engine) RetrainAll(ctx context.Context) {
	for _, c := range domain.Categories {
		e.Retrain(ctx, c)
	}
}

// Reset clears every history and model, then reseeds the baseline when one
// is configured. Fits started from pre-reset history, including ones still
// running in the background, never publish afterwards. Reset is safe to call
// while other goroutines score.
func (e *Engine) Reset() {
	for _, c := range domain.Categories {
		s := e.slots[c]
		s.mu.Lock()
		s.history.Reset()
		s.appends = 0
		s.generation++
		s.publish(Fallback{Category: c})
		s.mu.Unlock()
		if e.metrics != nil {
			e.metrics.HistorySize.WithLabelValues(c.String()).Set(0)
			e.metrics.ModelTrained.WithLabelValues(c.String()).Set(0)
		}
	}
	e.wg.Wait()
	e.seedBaseline()
}

// Wait blocks until background fits have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// History returns a copy of c's buffered values, oldest first.
func (e *Engine) History(c domain.Category) []float64 {
	s, ok := e.slots[c]
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Values()
}

// State reports whether c is currently scored by a fitted model.
func (e *Engine) State(c domain.Category) ModelState {
	s, ok := e.slots[c]
	if !ok {
		return Untrained
	}
	return s.detector().State()
}

// Status returns one ModelStatus per category in domain.Categories order.
func (e *Engine) Status() []ModelStatus {
	out := make([]ModelStatus, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		s := e.slots[c]
		s.mu.Lock()
		st := ModelStatus{Category: c, HistorySize: s.history.Len(), Appends: s.appends}
		s.mu.Unlock()

		d := s.detector()
		st.State = d.State()
		if m, ok := d.(*Model); ok {
			trainedAt := m.TrainedAt
			st.TrainedOn = m.Samples
			st.TrainedAt = &trainedAt
		}
		out = append(out, st)
	}
	return out
}

// seedBaseline fills each history with clipped normal draws and fits the
// initial models. Seeding is synchronous so the engine is ready on return.
func (e *Engine) seedBaseline() {
	if e.baselineRand == nil || e.baselineSize <= 0 {
		return
	}
	e.baselineMu.Lock()
	defer e.baselineMu.Unlock()

	for _, c := range domain.Categories {
		p, _ := domain.ProfileFor(c)
		s := e.slots[c]
		s.mu.Lock()
		for i := 0; i < e.baselineSize; i++ {
			v := e.baselineRand.NormFloat64()*p.BaselineStdDev + p.BaselineMean
			s.history.Push(p.BaselineClip.Clamp(v))
		}
		values, gen := s.history.Values(), s.generation
		s.mu.Unlock()
		e.fit(context.Background(), s, values, gen)
	}
}

func (e *Engine) observeScore(c domain.Category, res domain.AnomalyResult, path domain.ScoringPath) {
	if e.metrics == nil {
		return
	}
	name := c.String()
	e.metrics.ReadingsScored.WithLabelValues(name, string(path)).Inc()
	if path == domain.PathRejected {
		return
	}
	e.metrics.AnomalyScore.WithLabelValues(name).Observe(res.Score)
	if res.IsAnomaly {
		e.metrics.AnomaliesDetected.WithLabelValues(name, string(path)).Inc()
	}
}

func (e *Engine) observeTraining(c domain.Category, outcome string, elapsed time.Duration, state ModelState) {
	if e.metrics == nil {
		return
	}
	name := c.String()
	e.metrics.ModelTrainings.WithLabelValues(name, outcome).Inc()
	if outcome != "insufficient" {
		e.metrics.ModelTrainingDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
	trained := 0.0
	if state == Trained {
		trained = 1
	}
	e.metrics.ModelTrained.WithLabelValues(name).Set(trained)
}
