package features

import (
	"errors"
	"fmt"
)

var ErrInvalidPeriod = errors.New("features: period must be at least 1")

// EMA is a causal exponential moving average fed one sample per closed bar.
type EMA struct {
	period int
	alpha  float64
	value  float64
	has    bool
}

// NewEMA builds an EMA with smoothing factor 2/(period+1).
func NewEMA(period int) (*EMA, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPeriod, period)
	}
	return &EMA{period: period, alpha: 2 / (float64(period) + 1)}, nil
}

// Update blends sample into the average. The first sample seeds it.
func (e *EMA) Update(sample float64) float64 {
	if !e.has {
		e.value = sample
		e.has = true
		return e.value
	}
	e.value = sample*e.alpha + e.value*(1-e.alpha)
	return e.value
}

// Value returns the current average and whether any sample has been seen.
func (e *EMA) Value() (float64, bool) {
	return e.value, e.has
}

func (e *EMA) Period() int    { return e.period }
func (e *EMA) Alpha() float64 { return e.alpha }
func (e *EMA) Reset()         { e.value, e.has = 0, false }
