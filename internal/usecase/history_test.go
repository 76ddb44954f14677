package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	drepo "SessionBreak/internal/domain/repository"
)

func TestBarHistory_Latest(t *testing.T) {
	store := &memBarStore{bars: sessionBars()}
	h := NewBarHistory(store, "XAUUSD")

	res, err := h.Bars(context.Background(), BarsQuery{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, "30m", res.Timeframe)
	assert.Equal(t, sessionBars()[5].Time, res.Bars[2].Time)

	_, err = h.Bars(context.Background(), BarsQuery{Limit: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, maxHistoryBars, store.latest)
}

func TestBarHistory_Range(t *testing.T) {
	store := &memBarStore{bars: sessionBars()}
	h := NewBarHistory(store, "XAUUSD")
	from := time.Date(2024, time.March, 5, 16, 10, 0, 0, time.UTC)
	to := time.Date(2024, time.March, 5, 17, 45, 0, 0, time.UTC)

	res, err := h.Bars(context.Background(), BarsQuery{Timeframe: drepo.TF30m, From: from, To: to, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 5, 16, 0, 0, 0, time.UTC), store.from)
	assert.Equal(t, time.Date(2024, time.March, 5, 17, 30, 0, 0, time.UTC), store.to)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, store.to, res.Bars[1].Time)

	_, err = h.Bars(context.Background(), BarsQuery{From: to, To: from})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = NewBarHistory(nil, "XAUUSD").Bars(context.Background(), BarsQuery{})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}
