package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SessionBreak/internal/domain/models"
)

func goldenEyeBars() []models.Bar {
	start := time.Date(2024, time.March, 5, 16, 0, 0, 0, time.UTC)
	ohlc := [][4]float64{
		{2317.5, 2318.0, 2315.5, 2317.6},
		{2317.6, 2319.5, 2317.2, 2318.6},
		{2318.6, 2319.7, 2318.2, 2319.1},
		{2319.0, 2320.5, 2318.8, 2319.0},
		{2319.1, 2320.0, 2318.5, 2319.4},
		{2319.3, 2319.8, 2318.9, 2319.7},
	}
	bars := make([]models.Bar, 0, len(ohlc))
	for i, v := range ohlc {
		bars = append(bars, models.Bar{
			Symbol: "XAUUSD",
			Time:   start.Add(time.Duration(i) * 30 * time.Minute),
			Open:   v[0], High: v[1], Low: v[2], Close: v[3],
		})
	}
	return bars
}

func TestComputeRange_GoldenEye(t *testing.T) {
	w, err := New(16, 19, 0)
	require.NoError(t, err)

	r := ComputeRange(goldenEyeBars(), w)
	require.True(t, r.IsSet)
	assert.Equal(t, 2320.5, r.High)
	assert.Equal(t, 2315.5, r.Low)
}

func TestComputeRange_StopsAtFirstBarOutside(t *testing.T) {
	w, err := New(16, 19, 0)
	require.NoError(t, err)

	bars := goldenEyeBars()
	before := models.Bar{Time: bars[0].Time.Add(-30 * time.Minute), High: 2400, Low: 2200}
	bars = append([]models.Bar{before}, bars...)

	r := ComputeRange(bars, w)
	assert.Equal(t, 2320.5, r.High)
	assert.Equal(t, 2315.5, r.Low)

	// a trailing bar outside the session ends the scan immediately
	after := models.Bar{Time: bars[len(bars)-1].Time.Add(30 * time.Minute), High: 2321, Low: 2319}
	r = ComputeRange(append(bars, after), w)
	assert.False(t, r.IsSet)
}

func TestComputeRange_SingleBar(t *testing.T) {
	w, err := New(16, 19, 0)
	require.NoError(t, err)

	b := goldenEyeBars()[3]
	r := ComputeRange([]models.Bar{b}, w)
	require.True(t, r.IsSet)
	assert.Equal(t, b.High, r.High)
	assert.Equal(t, b.Low, r.Low)
}

func TestComputeRange_Empty(t *testing.T) {
	w, err := New(0, 2, 0)
	require.NoError(t, err)

	assert.False(t, ComputeRange(nil, w).IsSet)
	assert.False(t, ComputeRange(goldenEyeBars(), w).IsSet)
	assert.False(t, ComputeRange(goldenEyeBars(), nil).IsSet)
}

func TestIsValidRange(t *testing.T) {
	assert.False(t, IsValidRange(models.Range{}, 0))
	assert.True(t, IsValidRange(models.Range{High: 2320.5, Low: 2315.5, IsSet: true}, 5))
	assert.False(t, IsValidRange(models.Range{High: 2320.5, Low: 2315.5, IsSet: true}, 5.5))
	assert.True(t, IsValidRange(models.Range{High: 10, Low: 10, IsSet: true}, 0))
}

func TestExtend(t *testing.T) {
	r := Extend(models.Range{}, 5, 3)
	assert.Equal(t, models.Range{High: 5, Low: 3, IsSet: true}, r)
	r = Extend(r, 4, 1)
	assert.Equal(t, models.Range{High: 5, Low: 1, IsSet: true}, r)
	r = Extend(r, 7, 6)
	assert.Equal(t, models.Range{High: 7, Low: 1, IsSet: true}, r)
}
