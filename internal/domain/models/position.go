package models

import "time"

// Direction is the side of an order or position.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Sign is +1 for Buy and -1 for Sell.
func (d Direction) Sign() float64 {
	if d == Sell {
		return -1
	}
	return 1
}

type PositionStatus string

const (
	PositionPending  PositionStatus = "pending"
	PositionOpen     PositionStatus = "open"
	PositionClosed   PositionStatus = "closed"
	PositionRejected PositionStatus = "rejected"
)

// Position is the venue's view of an open trade. Distances are in pips,
// Pips is the current favorable (positive) or adverse (negative) movement.
type Position struct {
	ID             string         `json:"id"`
	Label          string         `json:"label"`
	Symbol         string         `json:"symbol"`
	Direction      Direction      `json:"direction"`
	Volume         float64        `json:"volume"`
	EntryPrice     float64        `json:"entry_price"`
	StopLossPips   float64        `json:"stop_loss_pips"`
	TakeProfitPips float64        `json:"take_profit_pips"`
	Pips           float64        `json:"pips"`
	Status         PositionStatus `json:"status"`
	OpenedAt       time.Time      `json:"opened_at"`
}

// IsActive reports whether the position still occupies its label.
func (p Position) IsActive() bool {
	return p.Status == PositionOpen || p.Status == PositionPending
}

// StopLossPrice converts the stop distance into a price.
func (p Position) StopLossPrice(pipSize float64) float64 {
	return p.EntryPrice - p.Direction.Sign()*p.StopLossPips*pipSize
}

// TakeProfitPrice converts the target distance into a price.
func (p Position) TakeProfitPrice(pipSize float64) float64 {
	return p.EntryPrice + p.Direction.Sign()*p.TakeProfitPips*pipSize
}

// OrderRequest asks the venue for a market entry.
type OrderRequest struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Label          string    `json:"label"`
	Direction      Direction `json:"direction"`
	Volume         float64   `json:"volume"`
	StopLossPips   float64   `json:"stop_loss_pips"`
	TakeProfitPips float64   `json:"take_profit_pips"`
	Time           time.Time `json:"time"`
}

// ModifyRequest asks the venue to move protective prices of a position.
type ModifyRequest struct {
	ID         string    `json:"id"`
	PositionID string    `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Label      string    `json:"label"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Time       time.Time `json:"time"`
}

// ExecutionReport is what the venue sends back about a position.
type ExecutionReport struct {
	Event    string    `json:"event"` // open, modified, closed, rejected
	Position Position  `json:"position"`
	Reason   string    `json:"reason,omitempty"`
	Time     time.Time `json:"time"`
}
