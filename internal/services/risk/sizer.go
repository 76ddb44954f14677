package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"SessionBreak/internal/domain/models"
)

var (
	ErrInvalidRiskAmount   = errors.New("risk: risk amount must be positive")
	ErrInvalidStopDistance = errors.New("risk: stop loss distance must be positive")
	ErrInvalidInstrument   = errors.New("risk: invalid instrument metadata")
	ErrBelowMinimumVolume  = errors.New("risk: size below instrument minimum volume")
)

// Size converts a risk budget and a stop distance in pips into a quantity that is
// an exact multiple of volumeStep: floor(risk/(sl*pipValue)/step)*step.
// pipValue is the value of one pip for one unit of volume, not per lot: a per-lot
// pip value of 10 on a 1000-unit lot is passed as 0.01. Sizer.Quantity does that
// conversion from the instrument.
func Size(riskAmount, stopLossPips, pipValue, volumeStep float64) (float64, error) {
	if riskAmount <= 0 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidRiskAmount, riskAmount)
	}
	if stopLossPips <= 0 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidStopDistance, stopLossPips)
	}
	if pipValue <= 0 || volumeStep <= 0 {
		return 0, fmt.Errorf("%w: pip value %v, volume step %v", ErrInvalidInstrument, pipValue, volumeStep)
	}
	qty := size(
		decimal.NewFromFloat(riskAmount),
		decimal.NewFromFloat(stopLossPips),
		decimal.NewFromFloat(pipValue),
		decimal.NewFromFloat(volumeStep),
	)
	return qty.InexactFloat64(), nil
}

func size(risk, sl, pipValue, step decimal.Decimal) decimal.Decimal {
	raw := risk.Div(sl.Mul(pipValue))
	return raw.Div(step).Floor().Mul(step)
}

// Sizer sizes entries for one instrument from a fixed risk budget.
type Sizer struct {
	risk     decimal.Decimal
	inst     models.Instrument
	unitPip  decimal.Decimal
	step     decimal.Decimal
	min, max decimal.Decimal
}

// NewSizer validates the risk amount and instrument metadata.
// Instrument.PipValue is quoted per LotSize units; LotSize defaults to VolumeStep.
func NewSizer(riskAmount float64, inst models.Instrument) (*Sizer, error) {
	if riskAmount <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRiskAmount, riskAmount)
	}
	if inst.PipSize <= 0 || inst.PipValue <= 0 || inst.VolumeStep <= 0 {
		return nil, fmt.Errorf("%w: pip size %v, pip value %v, volume step %v",
			ErrInvalidInstrument, inst.PipSize, inst.PipValue, inst.VolumeStep)
	}
	if inst.VolumeMin < 0 || (inst.VolumeMax > 0 && inst.VolumeMax < inst.VolumeMin) {
		return nil, fmt.Errorf("%w: volume bounds [%v,%v]", ErrInvalidInstrument, inst.VolumeMin, inst.VolumeMax)
	}
	lot := inst.LotSize
	if lot <= 0 {
		lot = inst.VolumeStep
	}
	return &Sizer{
		risk:    decimal.NewFromFloat(riskAmount),
		inst:    inst,
		unitPip: decimal.NewFromFloat(inst.PipValue).Div(decimal.NewFromFloat(lot)),
		step:    decimal.NewFromFloat(inst.VolumeStep),
		min:     decimal.NewFromFloat(inst.VolumeMin),
		max:     decimal.NewFromFloat(inst.VolumeMax),
	}, nil
}

func (s *Sizer) RiskAmount() float64           { return s.risk.InexactFloat64() }
func (s *Sizer) Instrument() models.Instrument { return s.inst }

// Quantity sizes an entry with the configured risk budget.
func (s *Sizer) Quantity(stopLossPips float64) (float64, error) {
	return s.quantity(s.risk, stopLossPips)
}

// QuantityFor sizes an entry with an ad hoc risk budget.
func (s *Sizer) QuantityFor(riskAmount, stopLossPips float64) (float64, error) {
	if riskAmount <= 0 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidRiskAmount, riskAmount)
	}
	return s.quantity(decimal.NewFromFloat(riskAmount), stopLossPips)
}

func (s *Sizer) quantity(risk decimal.Decimal, stopLossPips float64) (float64, error) {
	if stopLossPips <= 0 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidStopDistance, stopLossPips)
	}
	qty := size(risk, decimal.NewFromFloat(stopLossPips), s.unitPip, s.step)
	if s.max.IsPositive() && qty.GreaterThan(s.max) {
		// max may sit off the step grid
		qty = s.max.Div(s.step).Floor().Mul(s.step)
	}
	if !qty.IsPositive() || qty.LessThan(s.min) {
		return 0, fmt.Errorf("%w: %s < %s", ErrBelowMinimumVolume, qty.String(), s.min.String())
	}
	return qty.InexactFloat64(), nil
}
