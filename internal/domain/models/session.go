package models

import "time"

// Range is the high/low band of one session occurrence.
type Range struct {
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	IsSet bool    `json:"is_set"`
}

// Width is High-Low, zero for an unset range.
func (r Range) Width() float64 {
	if !r.IsSet {
		return 0
	}
	return r.High - r.Low
}

type SessionState string

const (
	StateNoRangeSet     SessionState = "no_range_set"
	StateRangeConfirmed SessionState = "range_confirmed"
)

// SessionSnapshot is the exported state of one session state machine.
type SessionSnapshot struct {
	Label      string       `json:"label"`
	State      SessionState `json:"state"`
	Occurrence time.Time    `json:"occurrence"`
	Range      Range        `json:"range"`
	Forming    Range        `json:"forming"`
	Evaluated  bool         `json:"evaluated"`
	Inside     bool         `json:"inside"`
	Entries    int          `json:"entries"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

type DecisionKind string

const (
	DecisionRangeConfirmed DecisionKind = "range_confirmed"
	DecisionEntry          DecisionKind = "entry"
	DecisionBreakEven      DecisionKind = "break_even"
	DecisionSizingRejected DecisionKind = "sizing_rejected"
)

// Decision is one engine action taken during a tick, kept for the journal.
type Decision struct {
	Time           time.Time    `json:"time"`
	Symbol         string       `json:"symbol"`
	Label          string       `json:"label"`
	Kind           DecisionKind `json:"kind"`
	Direction      Direction    `json:"direction,omitempty"`
	Volume         float64      `json:"volume,omitempty"`
	Price          float64      `json:"price,omitempty"`
	StopLossPips   float64      `json:"stop_loss_pips,omitempty"`
	TakeProfitPips float64      `json:"take_profit_pips,omitempty"`
	RangeHigh      float64      `json:"range_high,omitempty"`
	RangeLow       float64      `json:"range_low,omitempty"`
	Detail         string       `json:"detail,omitempty"`
}
