package models

// Requests for the strategy HTTP endpoints. Defined in domain for consistency and reuse.

type BarsRequest struct {
	N    int    `query:"n" json:"n" default:"100" validate:"gte=1,lte=5000"`
	TF   string `query:"tf" json:"tf" default:"30m" validate:"oneof=1m 5m 15m 30m 1h"`
	From string `query:"from" json:"from"`
	To   string `query:"to" json:"to"`
}

type SizingRequest struct {
	StopLossPips float64 `json:"stop_loss_pips" validate:"gt=0"`
	RiskAmount   float64 `json:"risk_amount" validate:"gte=0"`
}

type AlertsRequest struct {
	N int `query:"n" json:"n" default:"50" validate:"gte=1,lte=500"`
}

// SizingResult answers a SizingRequest.
type SizingResult struct {
	StopLossPips float64 `json:"stop_loss_pips"`
	RiskAmount   float64 `json:"risk_amount"`
	Volume       float64 `json:"volume"`
}
