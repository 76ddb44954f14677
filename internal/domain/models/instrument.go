package models

// Instrument is read-only metadata of the traded symbol.
//
// PipValue is the monetary value of one pip for LotSize units of volume.
// A zero LotSize means the pip value is quoted per volume step.
type Instrument struct {
	Symbol     string  `json:"symbol"`
	PipSize    float64 `json:"pip_size"`
	PipValue   float64 `json:"pip_value"`
	LotSize    float64 `json:"lot_size"`
	VolumeStep float64 `json:"volume_step"`
	VolumeMin  float64 `json:"volume_min"`
	VolumeMax  float64 `json:"volume_max"`
}

// PriceToPips converts a price distance into pips.
func (i Instrument) PriceToPips(distance float64) float64 {
	if i.PipSize <= 0 {
		return distance
	}
	return distance / i.PipSize
}
