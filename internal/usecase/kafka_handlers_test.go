package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SessionBreak/internal/domain/models"
	"SessionBreak/internal/repository"
	"SessionBreak/pkg/cache"
	pkgkafka "SessionBreak/pkg/kafka"
)

type recordingSink struct {
	quotes []models.Quote
	err    error
}

func (s *recordingSink) HandleQuote(_ context.Context, q models.Quote) (*TickResult, error) {
	s.quotes = append(s.quotes, q)
	return &TickResult{Time: q.Time}, s.err
}

func TestKafkaQuotesHandler(t *testing.T) {
	sink := &recordingSink{err: errors.New("venue down")}
	h := NewKafkaQuotesHandler("sessionbreak.quotes", sink, nil)
	assert.Equal(t, "sessionbreak.quotes", h.Topic())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"XAUUSD","bid":2320.1,"ask":2320.3,"t":1709665200000}`)))
	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"XAUUSD","bid":2320.1,"ask":2320.3,"t":1709665200}`)))
	require.Len(t, sink.quotes, 2)
	want := time.Date(2024, 3, 5, 19, 0, 0, 0, time.UTC)
	assert.Equal(t, want, sink.quotes[0].Time)
	assert.Equal(t, want, sink.quotes[1].Time)
	assert.Equal(t, 2320.3, sink.quotes[0].Ask)

	assert.Error(t, h.Handle(context.Background(), []byte(`{`)))

	var herr *pkgkafka.HookError
	require.ErrorAs(t, h.Handle(context.Background(), []byte(`{"symbol":"XAUUSD","bid":0,"ask":1,"t":1}`)), &herr)
	assert.Equal(t, "ERR_VALIDATION", herr.Code)
	assert.Len(t, sink.quotes, 2)
}

func TestKafkaExecutionsHandler(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	book := repository.NewCachePositionBook(mc, "XAUUSD", time.Hour)
	h := NewKafkaExecutionsHandler("sessionbreak.executions", book, nil, nil)

	require.NoError(t, book.Put(ctx, models.Position{ID: "p1", Label: "GoldenEye", Status: models.PositionPending}))

	open := `{"event":"open","position":{"id":"p1","label":"GoldenEye","symbol":"XAUUSD","direction":"buy","volume":1000,"entry_price":2321,"stop_loss_pips":2.5,"take_profit_pips":15}}`
	require.NoError(t, h.Handle(ctx, []byte(open)))
	got, err := book.Get(ctx, "GoldenEye")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.PositionOpen, got.Status)
	assert.Equal(t, 2321.0, got.EntryPrice)

	require.NoError(t, h.Handle(ctx, []byte(`{"event":"closed","position":{"id":"p1","label":"GoldenEye"},"reason":"stop"}`)))
	got, err = book.Get(ctx, "GoldenEye")
	require.NoError(t, err)
	assert.Nil(t, got)

	var herr *pkgkafka.HookError
	assert.ErrorAs(t, h.Handle(ctx, []byte(`{"event":"filled","position":{"label":"GoldenEye"}}`)), &herr)
	assert.ErrorAs(t, h.Handle(ctx, []byte(`{"event":"open","position":{}}`)), &herr)
	assert.Error(t, h.Handle(ctx, []byte(`nope`)))
}
