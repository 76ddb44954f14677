package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when a session window cannot be built.
var ErrInvalidConfig = errors.New("session: invalid configuration")

const (
	MinOffset = -12
	MaxOffset = 12
)

// Window is a recurring daily session [start, end) expressed in a reference
// clock that is offset whole hours from the clock of the timestamps it receives.
type Window struct {
	start  int
	end    int
	offset int
}

// New validates hours and offset and builds a Window.
func New(startHour, endHour, tzOffset int) (*Window, error) {
	if startHour < 0 || startHour > 23 {
		return nil, fmt.Errorf("%w: start hour %d outside [0,23]", ErrInvalidConfig, startHour)
	}
	if endHour < 0 || endHour > 23 {
		return nil, fmt.Errorf("%w: end hour %d outside [0,23]", ErrInvalidConfig, endHour)
	}
	if startHour >= endHour {
		return nil, fmt.Errorf("%w: start hour %d must be before end hour %d", ErrInvalidConfig, startHour, endHour)
	}
	if tzOffset < MinOffset || tzOffset > MaxOffset {
		return nil, fmt.Errorf("%w: time zone offset %d outside [%d,%d]", ErrInvalidConfig, tzOffset, MinOffset, MaxOffset)
	}
	return &Window{start: startHour, end: endHour, offset: tzOffset}, nil
}

func (w *Window) StartHour() int { return w.start }
func (w *Window) EndHour() int   { return w.end }
func (w *Window) Offset() int    { return w.offset }

// ReferenceHour maps the hour of t into the session clock, always in [0,24).
func (w *Window) ReferenceHour(t time.Time) int {
	return ((t.Hour()+w.offset)%24 + 24) % 24
}

// Contains reports whether t falls inside the session. Only the hour matters.
func (w *Window) Contains(t time.Time) bool {
	ref := w.ReferenceHour(t)
	return ref >= w.start && ref < w.end
}

// NextStart returns the start of the next occurrence measured from the hour of t.
// Inside a session the result is the start of the running occurrence.
func (w *Window) NextStart(t time.Time) time.Time {
	ref := w.ReferenceHour(t)
	var hours int
	if ref >= w.end {
		hours = 24 - ref + w.start
	} else {
		hours = w.start - ref
	}
	return truncateHour(t).Add(time.Duration(hours) * time.Hour)
}

// Occurrence returns the start of the occurrence t belongs to, or of the last
// one that began before t.
func (w *Window) Occurrence(t time.Time) time.Time {
	next := w.NextStart(t)
	if w.Contains(t) {
		return next
	}
	return next.Add(-24 * time.Hour)
}

// Duration is the length of one occurrence.
func (w *Window) Duration() time.Duration {
	return time.Duration(w.end-w.start) * time.Hour
}

func (w *Window) String() string {
	return fmt.Sprintf("%02d:00-%02d:00 (offset %+d)", w.start, w.end, w.offset)
}

func truncateHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
