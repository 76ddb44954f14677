package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SessionBreak/internal/domain/models"
	"SessionBreak/internal/services/features"
	"SessionBreak/internal/services/risk"
	"SessionBreak/internal/services/session"
)

type fakeFeed struct {
	bars []models.Bar
	err  error
}

func (f *fakeFeed) ClosedBars() ([]models.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

type modifyCall struct {
	pos        models.Position
	stopLoss   float64
	takeProfit float64
}

type fakeVenue struct {
	mu        sync.Mutex
	open      map[string]*models.Position
	orders    []models.OrderRequest
	modifies  []modifyCall
	submitErr map[string]error
	findErr   error
	modifyErr error
	fillPrice float64
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{open: map[string]*models.Position{}, submitErr: map[string]error{}}
}

func (v *fakeVenue) SubmitMarketOrder(ctx context.Context, req models.OrderRequest) (*models.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.submitErr[req.Label]; err != nil {
		return nil, err
	}
	v.orders = append(v.orders, req)
	p := &models.Position{
		ID:             req.ID,
		Label:          req.Label,
		Symbol:         req.Symbol,
		Direction:      req.Direction,
		Volume:         req.Volume,
		EntryPrice:     v.fillPrice,
		StopLossPips:   req.StopLossPips,
		TakeProfitPips: req.TakeProfitPips,
		Status:         models.PositionOpen,
	}
	v.open[req.Label] = p
	out := *p
	return &out, nil
}

func (v *fakeVenue) FindOpenPosition(ctx context.Context, label string) (*models.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.findErr != nil {
		return nil, v.findErr
	}
	p, ok := v.open[label]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (v *fakeVenue) ModifyPosition(ctx context.Context, pos models.Position, stopLoss, takeProfit float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.modifyErr != nil {
		return v.modifyErr
	}
	v.modifies = append(v.modifies, modifyCall{pos: pos, stopLoss: stopLoss, takeProfit: takeProfit})
	return nil
}

func sessionBars() []models.Bar {
	start := time.Date(2024, time.March, 5, 16, 0, 0, 0, time.UTC)
	ohlc := [][4]float64{
		{2317.5, 2318.0, 2315.5, 2317.6},
		{2317.6, 2319.5, 2317.2, 2318.6},
		{2318.6, 2319.7, 2318.2, 2319.1},
		{2319.0, 2320.5, 2318.8, 2319.0},
		{2319.1, 2320.0, 2318.5, 2319.4},
		{2319.3, 2319.8, 2318.9, 2319.7},
	}
	out := make([]models.Bar, len(ohlc))
	for i, v := range ohlc {
		out[i] = models.Bar{
			Symbol: "XAUUSD",
			Time:   start.Add(time.Duration(i) * 30 * time.Minute),
			Open:   v[0], High: v[1], Low: v[2], Close: v[3],
		}
	}
	return out
}

func goldInstrument() models.Instrument {
	return models.Instrument{
		Symbol:     "XAUUSD",
		PipSize:    1,
		PipValue:   10,
		LotSize:    1000,
		VolumeStep: 1000,
		VolumeMin:  1000,
		VolumeMax:  10_000_000,
	}
}

func baseConfig() EngineConfig {
	return EngineConfig{
		Symbol:     "XAUUSD",
		Sessions:   []SessionConfig{{Label: "GoldenEye", Enabled: true, StartHour: 16, EndHour: 19}},
		RiskAmount: 1000,
		Instrument: goldInstrument(),
	}
}

func afterSession(minute int) time.Time {
	return time.Date(2024, time.March, 5, 19, minute, 5, 0, time.UTC)
}

func kinds(res *TickResult) []models.DecisionKind {
	out := make([]models.DecisionKind, 0, len(res.Decisions))
	for _, d := range res.Decisions {
		out = append(out, d.Kind)
	}
	return out
}

func TestStrategyEngine_BreakoutLongEntry(t *testing.T) {
	venue := newFakeVenue()
	e, err := NewStrategyEngine(baseConfig(), &fakeFeed{bars: sessionBars()}, venue)
	require.NoError(t, err)

	res, err := e.OnTick(context.Background(), models.Quote{Symbol: "XAUUSD", Bid: 2320.8, Ask: 2321.0, Time: afterSession(0)})
	require.NoError(t, err)
	assert.Equal(t, []models.DecisionKind{models.DecisionRangeConfirmed, models.DecisionEntry}, kinds(res))

	require.Len(t, venue.orders, 1)
	o := venue.orders[0]
	assert.Equal(t, "GoldenEye", o.Label)
	assert.Equal(t, models.Buy, o.Direction)
	assert.InDelta(t, 2.5, o.StopLossPips, 1e-9)
	assert.InDelta(t, 15.0, o.TakeProfitPips, 1e-9)
	assert.Equal(t, 40000.0, o.Volume)
	assert.NotEmpty(t, o.ID)

	snaps := e.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, models.StateRangeConfirmed, snaps[0].State)
	assert.Equal(t, 2320.5, snaps[0].Range.High)
	assert.Equal(t, 2315.5, snaps[0].Range.Low)

	// label guard: the open position blocks a second entry
	res, err = e.OnTick(context.Background(), models.Quote{Bid: 2321.0, Ask: 2321.2, Time: afterSession(1)})
	require.NoError(t, err)
	assert.Empty(t, res.Decisions)
	assert.Len(t, venue.orders, 1)
}

func TestStrategyEngine_RangeIgnoresBarsAfterSession(t *testing.T) {
	bars := append(sessionBars(), models.Bar{
		Symbol: "XAUUSD",
		Time:   time.Date(2024, time.March, 5, 19, 0, 0, 0, time.UTC),
		Open:   2319.7, High: 2320.9, Low: 2319.5, Close: 2320.8,
	})
	venue := newFakeVenue()
	e, err := NewStrategyEngine(baseConfig(), &fakeFeed{bars: bars}, venue)
	require.NoError(t, err)

	res, err := e.OnTick(context.Background(), models.Quote{Bid: 2320.8, Ask: 2321.0, Time: afterSession(31)})
	require.NoError(t, err)
	assert.Equal(t, []models.DecisionKind{models.DecisionRangeConfirmed, models.DecisionEntry}, kinds(res))

	snaps := e.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, models.StateRangeConfirmed, snaps[0].State)
	assert.Equal(t, 2320.5, snaps[0].Range.High)
	assert.Equal(t, 2315.5, snaps[0].Range.Low)
	assert.Len(t, venue.orders, 1)
}

func TestStrategyEngine_NoBreakoutInsideRange(t *testing.T) {
	venue := newFakeVenue()
	e, err := NewStrategyEngine(baseConfig(), &fakeFeed{bars: sessionBars()}, venue)
	require.NoError(t, err)

	res, err := e.OnTick(context.Background(), models.Quote{Bid: 2318.0, Ask: 2318.2, Time: afterSession(0)})
	require.NoError(t, err)
	assert.Equal(t, []models.DecisionKind{models.DecisionRangeConfirmed}, kinds(res))
	assert.Empty(t, venue.orders)

	// range is not recomputed on later ticks
	res, err = e.OnTick(context.Background(), models.Quote{Bid: 2318.0, Ask: 2318.2, Time: afterSession(30)})
	require.NoError(t, err)
	assert.Empty(t, res.Decisions)
}

func TestStrategyEngine_ShortEntry(t *testing.T) {
	venue := newFakeVenue()
	e, err := NewStrategyEngine(baseConfig(), &fakeFeed{bars: sessionBars()}, venue)
	require.NoError(t, err)

	_, err = e.OnTick(context.Background(), models.Quote{Bid: 2315.0, Ask: 2315.2, Time: afterSession(0)})
	require.NoError(t, err)
	require.Len(t, venue.orders, 1)
	assert.Equal(t, models.Sell, venue.orders[0].Direction)
}

func TestStrategyEngine_InsideSessionOnlyTracksFormingRange(t *testing.T) {
	venue := newFakeVenue()
	bars := sessionBars()[:3]
	e, err := NewStrategyEngine(baseConfig(), &fakeFeed{bars: bars}, venue)
	require.NoError(t, err)

	res, err := e.OnTick(context.Background(), models.Quote{Bid: 2330, Ask: 2330.2, Time: time.Date(2024, 3, 5, 17, 40, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Empty(t, res.Decisions)
	assert.Empty(t, venue.orders)

	snap := e.Snapshots()[0]
	assert.True(t, snap.Inside)
	assert.Equal(t, models.StateNoRangeSet, snap.State)
	assert.Equal(t, models.Range{High: 2330, Low: 2315.5, IsSet: true}, snap.Forming)
	assert.False(t, snap.Range.IsSet)
}

func TestStrategyEngine_TrendFilter(t *testing.T) {
	cfg := baseConfig()
	cfg.UseTrendFilter = true
	cfg.TrendPeriod = 3

	t.Run("no value blocks entries", func(t *testing.T) {
		venue := newFakeVenue()
		e, err := NewStrategyEngine(cfg, &fakeFeed{bars: sessionBars()}, venue)
		require.NoError(t, err)
		_, err = e.OnTick(context.Background(), models.Quote{Bid: 2320.8, Ask: 2321.0, Time: afterSession(0)})
		require.NoError(t, err)
		assert.Empty(t, venue.orders)
	})

	t.Run("close above average allows long", func(t *testing.T) {
		venue := newFakeVenue()
		bars := sessionBars()
		e, err := NewStrategyEngine(cfg, &fakeFeed{bars: bars}, venue)
		require.NoError(t, err)
		for _, b := range bars {
			e.OnBar(b)
		}
		v, ok := e.TrendValue()
		require.True(t, ok)
		assert.InDelta(t, 2319.4, v, 1e-9)

		_, err = e.OnTick(context.Background(), models.Quote{Bid: 2320.8, Ask: 2321.0, Time: afterSession(0)})
		require.NoError(t, err)
		require.Len(t, venue.orders, 1)
		assert.Equal(t, models.Buy, venue.orders[0].Direction)
	})

	t.Run("close above average blocks short", func(t *testing.T) {
		venue := newFakeVenue()
		bars := sessionBars()
		e, err := NewStrategyEngine(cfg, &fakeFeed{bars: bars}, venue)
		require.NoError(t, err)
		for _, b := range bars {
			e.OnBar(b)
		}
		_, err = e.OnTick(context.Background(), models.Quote{Bid: 2315.0, Ask: 2315.2, Time: afterSession(0)})
		require.NoError(t, err)
		assert.Empty(t, venue.orders)
	})
}

func TestStrategyEngine_SizingRejectionIsLocal(t *testing.T) {
	cfg := baseConfig()
	cfg.Instrument.VolumeMin = 100_000
	venue := newFakeVenue()
	e, err := NewStrategyEngine(cfg, &fakeFeed{bars: sessionBars()}, venue)
	require.NoError(t, err)

	res, err := e.OnTick(context.Background(), models.Quote{Bid: 2320.8, Ask: 2321.0, Time: afterSession(0)})
	require.NoError(t, err)
	assert.Equal(t, []models.DecisionKind{models.DecisionRangeConfirmed, models.DecisionSizingRejected}, kinds(res))
	assert.Contains(t, res.Decisions[1].Detail, risk.ErrBelowMinimumVolume.Error())
	assert.Empty(t, venue.orders)
}

func TestStrategyEngine_VenueErrorDoesNotStopOtherSessions(t *testing.T) {
	cfg := baseConfig()
	cfg.Sessions = append(cfg.Sessions, SessionConfig{Label: "Wide", Enabled: true, StartHour: 15, EndHour: 19})
	venue := newFakeVenue()
	rejected := errors.New("order rejected: market closed")
	venue.submitErr["GoldenEye"] = rejected

	e, err := NewStrategyEngine(cfg, &fakeFeed{bars: sessionBars()}, venue)
	require.NoError(t, err)

	_, err = e.OnTick(context.Background(), models.Quote{Bid: 2320.8, Ask: 2321.0, Time: afterSession(0)})
	require.Error(t, err)
	assert.ErrorIs(t, err, rejected)

	require.Len(t, venue.orders, 1)
	assert.Equal(t, "Wide", venue.orders[0].Label)
}

func TestStrategyEngine_FeedFailureAbortsTick(t *testing.T) {
	venue := newFakeVenue()
	down := errors.New("connection reset")
	e, err := NewStrategyEngine(baseConfig(), &fakeFeed{err: down}, venue)
	require.NoError(t, err)

	res, err := e.OnTick(context.Background(), models.Quote{Bid: 2320.8, Ask: 2321.0, Time: afterSession(0)})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrFeedUnavailable)
	assert.ErrorIs(t, err, down)
	assert.Empty(t, venue.orders)
}

func TestStrategyEngine_BreakEven(t *testing.T) {
	cfg := baseConfig()
	cfg.MoveToBreakEven = true

	cases := []struct {
		name       string
		pos        models.Position
		wantModify bool
	}{
		{"at 2R", models.Position{ID: "p1", Label: "GoldenEye", Direction: models.Buy, EntryPrice: 2321, StopLossPips: 2.5, TakeProfitPips: 15, Pips: 5, Status: models.PositionOpen}, true},
		{"below 2R", models.Position{ID: "p2", Label: "GoldenEye", Direction: models.Buy, EntryPrice: 2321, StopLossPips: 2.5, TakeProfitPips: 15, Pips: 4.9, Status: models.PositionOpen}, false},
		{"already at entry", models.Position{ID: "p3", Label: "GoldenEye", Direction: models.Buy, EntryPrice: 2321, StopLossPips: 0, TakeProfitPips: 15, Pips: 9, Status: models.PositionOpen}, false},
		{"pending fill", models.Position{ID: "p4", Label: "GoldenEye", Direction: models.Buy, EntryPrice: 2321, StopLossPips: 2.5, Pips: 9, Status: models.PositionPending}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			venue := newFakeVenue()
			pos := tc.pos
			venue.open["GoldenEye"] = &pos
			e, err := NewStrategyEngine(cfg, &fakeFeed{}, venue)
			require.NoError(t, err)

			res, err := e.OnTick(context.Background(), models.Quote{Bid: 2326, Ask: 2326.2, Time: afterSession(10)})
			require.NoError(t, err)
			if !tc.wantModify {
				assert.Empty(t, venue.modifies)
				assert.Empty(t, res.Decisions)
				return
			}
			require.Len(t, venue.modifies, 1)
			assert.Equal(t, 2321.0, venue.modifies[0].stopLoss)
			assert.Equal(t, 2336.0, venue.modifies[0].takeProfit)
			assert.Equal(t, []models.DecisionKind{models.DecisionBreakEven}, kinds(res))
		})
	}
}

func TestStrategyEngine_BreakEvenShort(t *testing.T) {
	cfg := baseConfig()
	cfg.MoveToBreakEven = true
	venue := newFakeVenue()
	venue.open["GoldenEye"] = &models.Position{ID: "s1", Label: "GoldenEye", Direction: models.Sell, EntryPrice: 2315, StopLossPips: 2.5, TakeProfitPips: 15, Pips: 6, Status: models.PositionOpen}
	e, err := NewStrategyEngine(cfg, &fakeFeed{}, venue)
	require.NoError(t, err)

	_, err = e.OnTick(context.Background(), models.Quote{Bid: 2309, Ask: 2309.2, Time: afterSession(10)})
	require.NoError(t, err)
	require.Len(t, venue.modifies, 1)
	assert.Equal(t, 2315.0, venue.modifies[0].stopLoss)
	assert.Equal(t, 2300.0, venue.modifies[0].takeProfit)
}

func TestStrategyEngine_BreakEvenModifyErrorIsReturned(t *testing.T) {
	cfg := baseConfig()
	cfg.MoveToBreakEven = true
	venue := newFakeVenue()
	venue.modifyErr = errors.New("modify refused")
	venue.open["GoldenEye"] = &models.Position{ID: "p1", Label: "GoldenEye", Direction: models.Buy, EntryPrice: 2321, StopLossPips: 2.5, Pips: 6, Status: models.PositionOpen}
	e, err := NewStrategyEngine(cfg, &fakeFeed{}, venue)
	require.NoError(t, err)

	res, err := e.OnTick(context.Background(), models.Quote{Bid: 2327, Ask: 2327.2, Time: afterSession(10)})
	assert.ErrorIs(t, err, venue.modifyErr)
	require.NotNil(t, res)
	assert.Empty(t, res.Decisions)
}

func TestStrategyEngine_ResetsOnNewOccurrence(t *testing.T) {
	venue := newFakeVenue()
	feed := &fakeFeed{bars: sessionBars()}
	e, err := NewStrategyEngine(baseConfig(), feed, venue)
	require.NoError(t, err)

	_, err = e.OnTick(context.Background(), models.Quote{Bid: 2318, Ask: 2318.2, Time: afterSession(0)})
	require.NoError(t, err)
	require.Equal(t, models.StateRangeConfirmed, e.Snapshots()[0].State)

	next := time.Date(2024, time.March, 6, 16, 5, 0, 0, time.UTC)
	_, err = e.OnTick(context.Background(), models.Quote{Bid: 2330, Ask: 2330.2, Time: next})
	require.NoError(t, err)
	snap := e.Snapshots()[0]
	assert.Equal(t, models.StateNoRangeSet, snap.State)
	assert.Equal(t, next.Truncate(time.Hour), snap.Occurrence)
	assert.False(t, snap.Range.IsSet)
	// yesterday's bars are not part of today's forming range
	assert.Equal(t, models.Range{High: 2330, Low: 2330, IsSet: true}, snap.Forming)

	// after today's session, with no bars of its own, the range stays unset
	_, err = e.OnTick(context.Background(), models.Quote{Bid: 2400, Ask: 2400.2, Time: next.Add(3 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, models.StateNoRangeSet, e.Snapshots()[0].State)
	assert.Empty(t, venue.orders)
}

func TestStrategyEngine_MinRange(t *testing.T) {
	cfg := baseConfig()
	cfg.MinRange = 6
	venue := newFakeVenue()
	e, err := NewStrategyEngine(cfg, &fakeFeed{bars: sessionBars()}, venue)
	require.NoError(t, err)

	res, err := e.OnTick(context.Background(), models.Quote{Bid: 2320.8, Ask: 2321.0, Time: afterSession(0)})
	require.NoError(t, err)
	assert.Empty(t, res.Decisions)
	assert.Empty(t, venue.orders)
	assert.True(t, e.Snapshots()[0].Evaluated)
}

func TestStrategyEngine_MaxEntriesPerOccurrence(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxEntriesPerOccurrence = 1
	venue := newFakeVenue()
	e, err := NewStrategyEngine(cfg, &fakeFeed{bars: sessionBars()}, venue)
	require.NoError(t, err)

	_, err = e.OnTick(context.Background(), models.Quote{Bid: 2320.8, Ask: 2321.0, Time: afterSession(0)})
	require.NoError(t, err)
	require.Len(t, venue.orders, 1)

	// the position was stopped out; the occurrence already had its entry
	delete(venue.open, "GoldenEye")
	_, err = e.OnTick(context.Background(), models.Quote{Bid: 2321.8, Ask: 2322.0, Time: afterSession(40)})
	require.NoError(t, err)
	assert.Len(t, venue.orders, 1)
}

func TestStrategyEngine_SnapshotRestore(t *testing.T) {
	first, err := NewStrategyEngine(baseConfig(), &fakeFeed{bars: sessionBars()}, newFakeVenue())
	require.NoError(t, err)
	_, err = first.OnTick(context.Background(), models.Quote{Bid: 2318, Ask: 2318.2, Time: afterSession(0)})
	require.NoError(t, err)

	venue := newFakeVenue()
	second, err := NewStrategyEngine(baseConfig(), &fakeFeed{}, venue)
	require.NoError(t, err)
	second.Restore(first.Snapshots())

	res, err := second.OnTick(context.Background(), models.Quote{Bid: 2320.8, Ask: 2321.0, Time: afterSession(5)})
	require.NoError(t, err)
	assert.Equal(t, []models.DecisionKind{models.DecisionEntry}, kinds(res))
	require.Len(t, venue.orders, 1)
	assert.InDelta(t, 2.5, venue.orders[0].StopLossPips, 1e-9)
}

func TestNewStrategyEngine_ConfigErrors(t *testing.T) {
	feed, venue := &fakeFeed{}, newFakeVenue()

	cfg := baseConfig()
	cfg.Sessions[0].EndHour = 24
	_, err := NewStrategyEngine(cfg, feed, venue)
	assert.ErrorIs(t, err, session.ErrInvalidConfig)

	cfg = baseConfig()
	cfg.TimeZoneOffset = 13
	_, err = NewStrategyEngine(cfg, feed, venue)
	assert.ErrorIs(t, err, session.ErrInvalidConfig)

	cfg = baseConfig()
	cfg.RiskAmount = 0
	_, err = NewStrategyEngine(cfg, feed, venue)
	assert.ErrorIs(t, err, risk.ErrInvalidRiskAmount)

	cfg = baseConfig()
	cfg.UseTrendFilter = true
	_, err = NewStrategyEngine(cfg, feed, venue)
	assert.ErrorIs(t, err, features.ErrInvalidPeriod)

	cfg = baseConfig()
	cfg.Sessions = append(cfg.Sessions, cfg.Sessions[0])
	_, err = NewStrategyEngine(cfg, feed, venue)
	assert.ErrorIs(t, err, session.ErrInvalidConfig)

	// disabled sessions are still validated but not run
	cfg = baseConfig()
	cfg.Sessions = append(cfg.Sessions, SessionConfig{Label: "Area51", Enabled: false, StartHour: 0, EndHour: 2})
	e, err := NewStrategyEngine(cfg, feed, venue)
	require.NoError(t, err)
	assert.Len(t, e.Snapshots(), 1)
}
