package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SessionBreak/internal/domain/models"
)

type fakeProc struct {
	mu   sync.Mutex
	fail int
	got  []*models.Quote
}

func (f *fakeProc) Process(_ context.Context, q *models.Quote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("down")
	}
	f.got = append(f.got, q)
	return nil
}

func (f *fakeProc) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

type fakeMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func (m *fakeMetrics) RecordMessageSent(string, string)               {}
func (m *fakeMetrics) RecordLastPrice(string, float64)                {}
func (m *fakeMetrics) RecordLatency(string, float64)                  {}
func (m *fakeMetrics) RecordEntry(string, models.Direction)           {}
func (m *fakeMetrics) RecordBreakEven(string)                         {}
func (m *fakeMetrics) RecordRange(string, models.Range)               {}
func (m *fakeMetrics) RecordSessionState(string, models.SessionState) {}
func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
}

func (m *fakeMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func quote(bid, ask float64) *models.Quote {
	return &models.Quote{Symbol: "XAUUSD", Bid: bid, Ask: ask, Time: time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC)}
}

func TestValidateQuote(t *testing.T) {
	assert.NoError(t, validateQuote(quote(1, 1.1)))
	assert.NoError(t, validateQuote(quote(1, 1)))
	for _, q := range []*models.Quote{nil, quote(0, 1), quote(1, 0.9), {Symbol: "X", Bid: 1, Ask: 1}, {Bid: 1, Ask: 1, Time: time.Now()}} {
		assert.ErrorIs(t, validateQuote(q), ErrInvalidQuote)
	}
}

func TestPipeline_Throttles(t *testing.T) {
	proc := &fakeProc{}
	m := &fakeMetrics{}
	p := NewRealtimePipeline(proc, m, WithRateLimit(2, 0))

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Process(context.Background(), quote(1, 1.1)))
	}
	assert.Equal(t, 2, proc.count())
	assert.Equal(t, 3, m.count("pipeline_throttle"))
}

func TestPipeline_BuffersAndRetries(t *testing.T) {
	proc := &fakeProc{fail: 2}
	m := &fakeMetrics{}
	p := NewRealtimePipeline(proc, m, WithRateLimit(0, 0), WithBackoff(time.Millisecond, 5*time.Millisecond))

	err := p.Process(context.Background(), quote(1, 1.1))
	require.Error(t, err)
	assert.Equal(t, 1, p.Buffered())

	p.Start(context.Background())
	defer p.Stop()
	assert.Eventually(t, func() bool { return proc.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, m.count("pipeline_flush"))
}

func TestPipeline_RejectsInvalid(t *testing.T) {
	m := &fakeMetrics{}
	p := NewRealtimePipeline(&fakeProc{}, m)
	assert.ErrorIs(t, p.Process(context.Background(), quote(2, 1)), ErrInvalidQuote)
	assert.Equal(t, 1, m.count("pipeline_validate"))
}

func TestPipeline_Transform(t *testing.T) {
	proc := &fakeProc{}
	p := NewRealtimePipeline(proc, &fakeMetrics{}, WithTransform(func(q *models.Quote) *models.Quote {
		out := *q
		out.Symbol = "XAUUSD"
		return &out
	}))
	in := quote(1, 1.1)
	in.Symbol = "OANDA:XAU_USD"
	require.NoError(t, p.Process(context.Background(), in))
	require.Equal(t, 1, proc.count())
	assert.Equal(t, "XAUUSD", proc.got[0].Symbol)
	assert.Equal(t, "OANDA:XAU_USD", in.Symbol)
}
