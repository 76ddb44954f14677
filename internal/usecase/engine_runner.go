package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SessionBreak/internal/domain/models"
	drepo "SessionBreak/internal/domain/repository"
	"SessionBreak/internal/services/features"
	"SessionBreak/pkg/logger"
)

// QuoteListener is told about every quote before the engine sees it.
type QuoteListener interface {
	OnQuote(q models.Quote)
}

type RunnerOption func(*EngineRunner)

func WithBarStore(s drepo.BarStore) RunnerOption {
	return func(r *EngineRunner) { r.store = s }
}

func WithJournal(j drepo.Journal) RunnerOption {
	return func(r *EngineRunner) { r.journal = j }
}

func WithStateStore(s drepo.StateStore) RunnerOption {
	return func(r *EngineRunner) { r.states = s }
}

func WithQuoteListener(l QuoteListener) RunnerOption {
	return func(r *EngineRunner) {
		if l != nil {
			r.listeners = append(r.listeners, l)
		}
	}
}

func WithRunnerLogger(l *logger.Logger) RunnerOption {
	return func(r *EngineRunner) {
		if l != nil {
			r.log = l
		}
	}
}

func WithRunnerMetrics(m drepo.Metrics) RunnerOption {
	return func(r *EngineRunner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// EngineRunner hosts the strategy engine: it turns quotes into closed bars,
// drives the engine one event at a time and persists what the engine decided.
type EngineRunner struct {
	mu        sync.Mutex
	engine    *StrategyEngine
	series    *features.BarSeries
	builder   *features.BarBuilder
	symbol    string
	store     drepo.BarStore
	journal   drepo.Journal
	states    drepo.StateStore
	listeners []QuoteListener
	log       *logger.Logger
	metrics   drepo.Metrics

	last      models.Quote
	persisted []models.SessionSnapshot
}

// NewEngineRunner wires a runner around engine. series must be the BarFeed the
// engine was built with.
func NewEngineRunner(engine *StrategyEngine, series *features.BarSeries, tf drepo.Timeframe, opts ...RunnerOption) *EngineRunner {
	symbol := engine.Config().Symbol
	r := &EngineRunner{
		engine:  engine,
		series:  series,
		builder: features.NewBarBuilder(symbol, tf),
		symbol:  symbol,
		log:     logger.Nop(),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Warmup seeds the series and trend filter with up to n stored bars and
// restores the persisted session state. Missing collaborators are skipped.
func (r *EngineRunner) Warmup(ctx context.Context, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store != nil && n > 0 {
		bars, err := r.store.GetLatestBars(ctx, r.symbol, n, r.builder.Timeframe())
		if err != nil {
			return fmt.Errorf("warmup bars: %w", err)
		}
		loaded := 0
		for _, b := range bars {
			if err := r.series.Append(b); err != nil {
				continue
			}
			r.engine.OnBar(b)
			loaded++
		}
		r.log.Info("warmup bars loaded", logger.Int("bars", loaded), logger.String("symbol", r.symbol))
	}

	if r.states != nil {
		snaps, err := r.states.Load(ctx, r.symbol)
		if err != nil {
			return fmt.Errorf("warmup state: %w", err)
		}
		if len(snaps) > 0 {
			r.engine.Restore(snaps)
			r.persisted = r.engine.Snapshots()
			r.log.Info("session state restored", logger.Int("sessions", len(snaps)))
		}
	}
	return nil
}

// HandleQuote runs one tick. Errors are logged and counted; the returned error
// is informational and the runner stays usable.
func (r *EngineRunner) HandleQuote(ctx context.Context, q models.Quote) (*TickResult, error) {
	if q.Symbol != "" && q.Symbol != r.symbol {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	if closed, ok := r.builder.Add(q); ok {
		r.closeBar(closed)
	}
	for _, l := range r.listeners {
		l.OnQuote(q)
	}
	r.last = q
	r.metrics.RecordLastPrice(r.symbol, q.Bid)

	res, err := r.engine.OnTick(ctx, q)
	if err != nil {
		r.metrics.RecordError("tick")
		if errors.Is(err, ErrFeedUnavailable) {
			r.log.Warn("tick skipped", logger.Error(err))
			return nil, err
		}
		r.log.Error("tick completed with venue errors", logger.Error(err))
	}
	r.metrics.RecordLatency("tick", time.Since(start).Seconds())

	if res != nil && len(res.Decisions) > 0 && r.journal != nil {
		if jerr := r.journal.Record(ctx, res.Decisions); jerr != nil {
			r.metrics.RecordError("journal")
			r.log.Warn("decisions not journaled", logger.Int("count", len(res.Decisions)), logger.Error(jerr))
		}
	}
	r.persist(ctx)
	return res, err
}

func (r *EngineRunner) closeBar(b models.Bar) {
	if err := r.series.Append(b); err != nil {
		r.metrics.RecordError("bar_append")
		r.log.Warn("closed bar rejected", logger.Time("time", b.Time), logger.Error(err))
		return
	}
	r.engine.OnBar(b)
}

func (r *EngineRunner) persist(ctx context.Context) {
	if r.states == nil {
		return
	}
	snaps := r.engine.Snapshots()
	if !snapshotsChanged(r.persisted, snaps) {
		return
	}
	if err := r.states.Save(ctx, r.symbol, snaps); err != nil {
		r.metrics.RecordError("state_save")
		r.log.Warn("session state not saved", logger.Error(err))
		return
	}
	r.persisted = snaps
}

// snapshotsChanged ignores the fields that move on every tick.
func snapshotsChanged(prev, next []models.SessionSnapshot) bool {
	if len(prev) != len(next) {
		return true
	}
	for i := range next {
		a, b := prev[i], next[i]
		if a.Label != b.Label || a.State != b.State || !a.Occurrence.Equal(b.Occurrence) ||
			a.Range != b.Range || a.Evaluated != b.Evaluated || a.Entries != b.Entries {
			return true
		}
	}
	return false
}

// Flush closes the forming bar, used at the end of a replay.
func (r *EngineRunner) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.builder.Flush(); ok {
		r.closeBar(b)
	}
}

func (r *EngineRunner) Snapshots() []models.SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.Snapshots()
}

// Snapshot returns the state of one session, false for an unknown or disabled label.
func (r *EngineRunner) Snapshot(label string) (models.SessionSnapshot, bool) {
	for _, s := range r.Snapshots() {
		if s.Label == label {
			return s, true
		}
	}
	return models.SessionSnapshot{}, false
}

func (r *EngineRunner) TrendValue() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.TrendValue()
}

func (r *EngineRunner) LastQuote() models.Quote {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Labels lists the enabled session labels in configuration order.
func (r *EngineRunner) Labels() []string {
	snaps := r.Snapshots()
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.Label)
	}
	return out
}

// Size answers a sizing question with the engine's sizer. A zero risk uses the configured one.
func (r *EngineRunner) Size(req models.SizingRequest) (models.SizingResult, error) {
	sizer := r.engine.Sizer()
	risk := req.RiskAmount
	if risk <= 0 {
		risk = sizer.RiskAmount()
	}
	vol, err := sizer.QuantityFor(risk, req.StopLossPips)
	if err != nil {
		return models.SizingResult{}, err
	}
	return models.SizingResult{StopLossPips: req.StopLossPips, RiskAmount: risk, Volume: vol}, nil
}

func (r *EngineRunner) Symbol() string { return r.symbol }

func (r *EngineRunner) Timeframe() drepo.Timeframe { return r.builder.Timeframe() }

func (r *EngineRunner) Series() *features.BarSeries { return r.series }
