package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SessionBreak/internal/domain/models"
)

func TestBarSeries_AppendOrder(t *testing.T) {
	s := NewBarSeries(10)
	t0 := time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(models.Bar{Time: t0, Close: 1}))
	require.NoError(t, s.Append(models.Bar{Time: t0.Add(time.Minute), Close: 2}))
	require.ErrorIs(t, s.Append(models.Bar{Time: t0.Add(time.Minute), Close: 3}), ErrOutOfOrder)
	require.ErrorIs(t, s.Append(models.Bar{Time: t0, Close: 3}), ErrOutOfOrder)

	bars, err := s.ClosedBars()
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 2.0, bars[1].Close)

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 2.0, last.Close)
}

func TestBarSeries_Bounded(t *testing.T) {
	s := NewBarSeries(8)
	t0 := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Append(models.Bar{Time: t0.Add(time.Duration(i) * time.Minute), Close: float64(i)}))
	}
	assert.LessOrEqual(t, s.Len(), 8)

	tail := s.Tail(3)
	require.Len(t, tail, 3)
	assert.Equal(t, []float64{17, 18, 19}, []float64{tail[0].Close, tail[1].Close, tail[2].Close})
}

func TestBarSeries_ClosedBarsIsACopy(t *testing.T) {
	s := NewBarSeries(4)
	require.NoError(t, s.Append(models.Bar{Time: time.Unix(60, 0), Close: 1}))
	bars, _ := s.ClosedBars()
	bars[0].Close = 99
	last, _ := s.Last()
	assert.Equal(t, 1.0, last.Close)
}
