package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SessionBreak/internal/domain/models"
	drepo "SessionBreak/internal/domain/repository"
	"SessionBreak/internal/services/features"
	"SessionBreak/internal/services/risk"
	"SessionBreak/internal/services/session"
	"SessionBreak/pkg/logger"
)

// ErrFeedUnavailable wraps any failure to read bars for a tick. Only that tick is aborted.
var ErrFeedUnavailable = errors.New("strategy: bar feed unavailable")

// SessionConfig names one recurring trading window.
type SessionConfig struct {
	Label     string
	Enabled   bool
	StartHour int
	EndHour   int
}

// EngineConfig is fixed at start.
type EngineConfig struct {
	Symbol         string
	Sessions       []SessionConfig
	TimeZoneOffset int
	RiskAmount     float64
	Instrument     models.Instrument

	UseTrendFilter bool
	TrendPeriod    int

	MoveToBreakEven   bool
	BreakEvenMultiple float64 // favorable pips / stop pips needed, 2 when zero

	StopLossRatio   float64 // of the range width, 0.5 when zero
	TakeProfitRatio float64 // of the range width, 3 when zero
	MinRange        float64 // price units

	// MaxEntriesPerOccurrence caps entries per session occurrence; 0 leaves only the label guard.
	MaxEntriesPerOccurrence int
}

const (
	defaultBreakEvenMultiple = 2.0
	defaultStopLossRatio     = 0.5
	defaultTakeProfitRatio   = 3.0
)

// TickResult lists what the engine decided during one tick.
type TickResult struct {
	Time      time.Time
	Decisions []models.Decision
}

type sessionState struct {
	cfg        SessionConfig
	window     *session.Window
	occurrence time.Time
	state      models.SessionState
	rng        models.Range
	forming    models.Range
	evaluated  bool
	inside     bool
	entries    int
	updatedAt  time.Time
}

func (s *sessionState) reset(occ time.Time) {
	s.occurrence = occ
	s.state = models.StateNoRangeSet
	s.rng = models.Range{}
	s.forming = models.Range{}
	s.evaluated = false
	s.entries = 0
}

type EngineOption func(*StrategyEngine)

func WithEngineLogger(l *logger.Logger) EngineOption {
	return func(e *StrategyEngine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithEngineMetrics(m drepo.Metrics) EngineOption {
	return func(e *StrategyEngine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// StrategyEngine runs one session state machine per configured session and
// shares the trend filter and sizer between them. It holds no locks: callers
// must deliver OnBar and OnTick one at a time.
type StrategyEngine struct {
	cfg      EngineConfig
	feed     drepo.BarFeed
	venue    drepo.Venue
	sizer    *risk.Sizer
	ema      *features.EMA
	sessions []*sessionState
	log      *logger.Logger
	metrics  drepo.Metrics
}

// NewStrategyEngine validates the whole configuration. Any error is fatal.
func NewStrategyEngine(cfg EngineConfig, feed drepo.BarFeed, venue drepo.Venue, opts ...EngineOption) (*StrategyEngine, error) {
	if feed == nil || venue == nil {
		return nil, fmt.Errorf("%w: feed and venue are required", session.ErrInvalidConfig)
	}
	if cfg.BreakEvenMultiple <= 0 {
		cfg.BreakEvenMultiple = defaultBreakEvenMultiple
	}
	if cfg.StopLossRatio <= 0 {
		cfg.StopLossRatio = defaultStopLossRatio
	}
	if cfg.TakeProfitRatio <= 0 {
		cfg.TakeProfitRatio = defaultTakeProfitRatio
	}
	if cfg.MinRange < 0 {
		return nil, fmt.Errorf("%w: negative minimum range %v", session.ErrInvalidConfig, cfg.MinRange)
	}
	if cfg.Instrument.Symbol == "" {
		cfg.Instrument.Symbol = cfg.Symbol
	}

	sizer, err := risk.NewSizer(cfg.RiskAmount, cfg.Instrument)
	if err != nil {
		return nil, err
	}

	e := &StrategyEngine{
		cfg:     cfg,
		feed:    feed,
		venue:   venue,
		sizer:   sizer,
		log:     logger.Nop(),
		metrics: nopMetrics{},
	}
	if cfg.UseTrendFilter {
		if e.ema, err = features.NewEMA(cfg.TrendPeriod); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{}, len(cfg.Sessions))
	for _, sc := range cfg.Sessions {
		if sc.Label == "" {
			return nil, fmt.Errorf("%w: session without label", session.ErrInvalidConfig)
		}
		if _, dup := seen[sc.Label]; dup {
			return nil, fmt.Errorf("%w: duplicate session label %q", session.ErrInvalidConfig, sc.Label)
		}
		seen[sc.Label] = struct{}{}
		w, err := session.New(sc.StartHour, sc.EndHour, cfg.TimeZoneOffset)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", sc.Label, err)
		}
		if !sc.Enabled {
			continue
		}
		e.sessions = append(e.sessions, &sessionState{cfg: sc, window: w, state: models.StateNoRangeSet})
	}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// OnBar feeds one closed bar into the trend filter.
func (e *StrategyEngine) OnBar(b models.Bar) {
	if e.ema != nil {
		e.ema.Update(b.Close)
	}
}

// OnTick evaluates every enabled session against q and then manages open positions.
// Venue errors are returned joined; they never stop other sessions.
func (e *StrategyEngine) OnTick(ctx context.Context, q models.Quote) (*TickResult, error) {
	bars, err := e.feed.ClosedBars()
	if err != nil {
		e.metrics.RecordError("feed_read")
		return nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}

	res := &TickResult{Time: q.Time}
	var errs []error
	for _, s := range e.sessions {
		if err := e.evaluate(ctx, s, q, bars, res); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.cfg.Label, err))
		}
	}
	if e.cfg.MoveToBreakEven {
		errs = append(errs, e.manageBreakEven(ctx, q, res)...)
	}
	return res, errors.Join(errs...)
}

func (e *StrategyEngine) evaluate(ctx context.Context, s *sessionState, q models.Quote, bars []models.Bar, res *TickResult) error {
	occ := s.window.Occurrence(q.Time)
	if !occ.Equal(s.occurrence) {
		s.reset(occ)
		e.metrics.RecordSessionState(s.cfg.Label, s.state)
	}
	s.updatedAt = q.Time
	s.inside = s.window.Contains(q.Time)

	if s.inside {
		f := session.ComputeRange(barsSince(bars, occ), s.window)
		if q.Bid > 0 {
			f = session.Extend(f, q.Bid, q.Bid)
		}
		s.forming = f
		return nil
	}

	if s.state == models.StateNoRangeSet && !s.evaluated {
		s.evaluated = true
		r := session.ComputeRange(occurrenceBars(bars, occ, occ.Add(s.window.Duration())), s.window)
		switch {
		case !r.IsSet:
			e.log.Debug("no bars in session, range unset",
				logger.String("label", s.cfg.Label),
				logger.Time("occurrence", occ),
			)
		case !session.IsValidRange(r, e.cfg.MinRange):
			e.log.Info("range below minimum, session skipped",
				logger.String("label", s.cfg.Label),
				logger.Float64("width", r.Width()),
				logger.Float64("min_range", e.cfg.MinRange),
			)
		default:
			s.rng = r
			s.state = models.StateRangeConfirmed
			e.metrics.RecordRange(s.cfg.Label, r)
			e.metrics.RecordSessionState(s.cfg.Label, s.state)
			res.Decisions = append(res.Decisions, models.Decision{
				Time:      q.Time,
				Symbol:    e.cfg.Symbol,
				Label:     s.cfg.Label,
				Kind:      models.DecisionRangeConfirmed,
				RangeHigh: r.High,
				RangeLow:  r.Low,
			})
			e.log.Info("range confirmed",
				logger.String("label", s.cfg.Label),
				logger.Float64("high", r.High),
				logger.Float64("low", r.Low),
			)
		}
	}

	if s.state != models.StateRangeConfirmed {
		return nil
	}
	return e.checkBreakout(ctx, s, q, bars, res)
}

func (e *StrategyEngine) checkBreakout(ctx context.Context, s *sessionState, q models.Quote, bars []models.Bar, res *TickResult) error {
	var dir models.Direction
	switch {
	case q.Ask > s.rng.High:
		dir = models.Buy
	case q.Bid < s.rng.Low:
		dir = models.Sell
	default:
		return nil
	}
	if e.cfg.MaxEntriesPerOccurrence > 0 && s.entries >= e.cfg.MaxEntriesPerOccurrence {
		return nil
	}
	if !e.trendAllows(dir, bars) {
		return nil
	}

	open, err := e.venue.FindOpenPosition(ctx, s.cfg.Label)
	if err != nil {
		e.metrics.RecordError("venue_find")
		return err
	}
	if open != nil {
		return nil
	}

	width := s.rng.Width()
	slPips := e.cfg.Instrument.PriceToPips(width * e.cfg.StopLossRatio)
	tpPips := e.cfg.Instrument.PriceToPips(width * e.cfg.TakeProfitRatio)

	volume, err := e.sizer.Quantity(slPips)
	if err != nil {
		e.metrics.RecordError("sizing")
		e.log.Warn("entry not sized",
			logger.String("label", s.cfg.Label),
			logger.Float64("stop_loss_pips", slPips),
			logger.Error(err),
		)
		res.Decisions = append(res.Decisions, models.Decision{
			Time:         q.Time,
			Symbol:       e.cfg.Symbol,
			Label:        s.cfg.Label,
			Kind:         models.DecisionSizingRejected,
			Direction:    dir,
			StopLossPips: slPips,
			RangeHigh:    s.rng.High,
			RangeLow:     s.rng.Low,
			Detail:       err.Error(),
		})
		return nil
	}

	req := models.OrderRequest{
		ID:             uuid.New().String(),
		Symbol:         e.cfg.Symbol,
		Label:          s.cfg.Label,
		Direction:      dir,
		Volume:         volume,
		StopLossPips:   slPips,
		TakeProfitPips: tpPips,
		Time:           q.Time,
	}
	if _, err := e.venue.SubmitMarketOrder(ctx, req); err != nil {
		e.metrics.RecordError("venue_order")
		return err
	}
	s.entries++
	e.metrics.RecordEntry(s.cfg.Label, dir)

	price := q.Ask
	if dir == models.Sell {
		price = q.Bid
	}
	res.Decisions = append(res.Decisions, models.Decision{
		Time:           q.Time,
		Symbol:         e.cfg.Symbol,
		Label:          s.cfg.Label,
		Kind:           models.DecisionEntry,
		Direction:      dir,
		Volume:         volume,
		Price:          price,
		StopLossPips:   slPips,
		TakeProfitPips: tpPips,
		RangeHigh:      s.rng.High,
		RangeLow:       s.rng.Low,
	})
	e.log.Info("breakout entry requested",
		logger.String("label", s.cfg.Label),
		logger.String("direction", string(dir)),
		logger.Float64("volume", volume),
		logger.Float64("price", price),
		logger.Float64("stop_loss_pips", slPips),
		logger.Float64("take_profit_pips", tpPips),
	)
	return nil
}

// trendAllows compares the last closed close with the EMA. Without a value the filter blocks.
func (e *StrategyEngine) trendAllows(dir models.Direction, bars []models.Bar) bool {
	if !e.cfg.UseTrendFilter {
		return true
	}
	v, ok := e.ema.Value()
	if !ok || len(bars) == 0 {
		return false
	}
	last := bars[len(bars)-1].Close
	if dir == models.Buy {
		return last > v
	}
	return last < v
}

func (e *StrategyEngine) manageBreakEven(ctx context.Context, q models.Quote, res *TickResult) []error {
	var errs []error
	pipSize := e.cfg.Instrument.PipSize
	for _, s := range e.sessions {
		pos, err := e.venue.FindOpenPosition(ctx, s.cfg.Label)
		if err != nil {
			e.metrics.RecordError("venue_find")
			errs = append(errs, fmt.Errorf("break-even %s: %w", s.cfg.Label, err))
			continue
		}
		if pos == nil || pos.Status != models.PositionOpen || pos.StopLossPips <= 0 {
			continue
		}
		if pos.Pips < e.cfg.BreakEvenMultiple*pos.StopLossPips {
			continue
		}
		tp := 0.0
		if pos.TakeProfitPips > 0 {
			tp = pos.TakeProfitPrice(pipSize)
		}
		if err := e.venue.ModifyPosition(ctx, *pos, pos.EntryPrice, tp); err != nil {
			e.metrics.RecordError("venue_modify")
			errs = append(errs, fmt.Errorf("break-even %s: %w", s.cfg.Label, err))
			continue
		}
		e.metrics.RecordBreakEven(s.cfg.Label)
		res.Decisions = append(res.Decisions, models.Decision{
			Time:         q.Time,
			Symbol:       e.cfg.Symbol,
			Label:        s.cfg.Label,
			Kind:         models.DecisionBreakEven,
			Direction:    pos.Direction,
			Volume:       pos.Volume,
			Price:        pos.EntryPrice,
			StopLossPips: pos.StopLossPips,
			Detail:       pos.ID,
		})
		e.log.Info("stop moved to break-even",
			logger.String("label", s.cfg.Label),
			logger.String("position", pos.ID),
			logger.Float64("pips", pos.Pips),
		)
	}
	return errs
}

// Snapshots exports the state of every enabled session in configuration order.
func (e *StrategyEngine) Snapshots() []models.SessionSnapshot {
	out := make([]models.SessionSnapshot, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, models.SessionSnapshot{
			Label:      s.cfg.Label,
			State:      s.state,
			Occurrence: s.occurrence,
			Range:      s.rng,
			Forming:    s.forming,
			Evaluated:  s.evaluated,
			Inside:     s.inside,
			Entries:    s.entries,
			UpdatedAt:  s.updatedAt,
		})
	}
	return out
}

// Restore loads previously exported state. Unknown labels are ignored; a stale
// occurrence is discarded by the next tick.
func (e *StrategyEngine) Restore(snaps []models.SessionSnapshot) {
	byLabel := make(map[string]models.SessionSnapshot, len(snaps))
	for _, sn := range snaps {
		byLabel[sn.Label] = sn
	}
	for _, s := range e.sessions {
		sn, ok := byLabel[s.cfg.Label]
		if !ok {
			continue
		}
		if sn.State == models.StateRangeConfirmed && !sn.Range.IsSet {
			continue
		}
		s.occurrence = sn.Occurrence
		s.state = sn.State
		s.rng = sn.Range
		s.forming = sn.Forming
		s.evaluated = sn.Evaluated
		s.inside = sn.Inside
		s.entries = sn.Entries
		s.updatedAt = sn.UpdatedAt
	}
}

// TrendValue exposes the EMA for status reporting.
func (e *StrategyEngine) TrendValue() (float64, bool) {
	if e.ema == nil {
		return 0, false
	}
	return e.ema.Value()
}

func (e *StrategyEngine) Sizer() *risk.Sizer   { return e.sizer }
func (e *StrategyEngine) Config() EngineConfig { return e.cfg }

// occurrenceBars keeps the bars opened in [from, to), so bars closed after the
// session do not cut the range scan short.
func occurrenceBars(bars []models.Bar, from, to time.Time) []models.Bar {
	out := barsSince(bars, from)
	i := len(out)
	for i > 0 && !out[i-1].Time.Before(to) {
		i--
	}
	return out[:i]
}

func barsSince(bars []models.Bar, from time.Time) []models.Bar {
	i := len(bars)
	for i > 0 && !bars[i-1].Time.Before(from) {
		i--
	}
	return bars[i:]
}

type nopMetrics struct{}

func (nopMetrics) RecordMessageSent(string, string)               {}
func (nopMetrics) RecordError(string)                             {}
func (nopMetrics) RecordLastPrice(string, float64)                {}
func (nopMetrics) RecordLatency(string, float64)                  {}
func (nopMetrics) RecordEntry(string, models.Direction)           {}
func (nopMetrics) RecordBreakEven(string)                         {}
func (nopMetrics) RecordRange(string, models.Range)               {}
func (nopMetrics) RecordSessionState(string, models.SessionState) {}
