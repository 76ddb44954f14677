package session

import "SessionBreak/internal/domain/models"

// ComputeRange accumulates the high/low of the contiguous tail of bars whose open
// time lies inside w. bars must be closed and in ascending time order. The scan
// stops at the first bar outside the session, so a gap ends the range.
func ComputeRange(bars []models.Bar, w *Window) models.Range {
	var r models.Range
	if w == nil {
		return r
	}
	for i := len(bars) - 1; i >= 0; i-- {
		b := bars[i]
		if !w.Contains(b.Time) {
			break
		}
		r = Extend(r, b.High, b.Low)
	}
	return r
}

// Extend widens r with a high/low pair. An unset range takes the pair as is.
func Extend(r models.Range, high, low float64) models.Range {
	if high < low {
		high, low = low, high
	}
	if !r.IsSet {
		return models.Range{High: high, Low: low, IsSet: true}
	}
	if high > r.High {
		r.High = high
	}
	if low < r.Low {
		r.Low = low
	}
	return r
}

// IsValidRange reports whether r is set and at least minimum wide.
func IsValidRange(r models.Range, minimum float64) bool {
	return r.IsSet && r.High >= r.Low && r.High-r.Low >= minimum
}
