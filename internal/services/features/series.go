package features

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"SessionBreak/internal/domain/models"
)

var ErrOutOfOrder = errors.New("features: bar is not newer than the last bar")

const DefaultSeriesCapacity = 2048

// BarSeries is a bounded, append-only buffer of closed bars in ascending time.
// It implements repository.BarFeed.
type BarSeries struct {
	mu       sync.RWMutex
	bars     []models.Bar
	capacity int
}

func NewBarSeries(capacity int) *BarSeries {
	if capacity <= 0 {
		capacity = DefaultSeriesCapacity
	}
	return &BarSeries{bars: make([]models.Bar, 0, capacity), capacity: capacity}
}

// Append adds a closed bar. Bars must arrive strictly newer than the last one.
func (s *BarSeries) Append(b models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.bars); n > 0 && !b.Time.After(s.bars[n-1].Time) {
		return fmt.Errorf("%w: %s <= %s", ErrOutOfOrder, b.Time.Format(time.RFC3339), s.bars[n-1].Time.Format(time.RFC3339))
	}
	if len(s.bars) == s.capacity {
		// full: drop the oldest quarter
		drop := s.capacity / 4
		if drop == 0 {
			drop = 1
		}
		s.bars = append(s.bars[:0], s.bars[drop:]...)
	}
	s.bars = append(s.bars, b)
	return nil
}

// ClosedBars returns a copy of the buffered bars, oldest first.
func (s *BarSeries) ClosedBars() ([]models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Bar, len(s.bars))
	copy(out, s.bars)
	return out, nil
}

// Tail returns up to n most recent bars, oldest first.
func (s *BarSeries) Tail(n int) []models.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.bars) {
		n = len(s.bars)
	}
	out := make([]models.Bar, n)
	copy(out, s.bars[len(s.bars)-n:])
	return out
}

// Last returns the most recent bar.
func (s *BarSeries) Last() (models.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bars) == 0 {
		return models.Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

func (s *BarSeries) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars)
}
