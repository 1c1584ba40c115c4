package model

import (
	"fmt"
	"math"
)

// Battery describes the physical limits of one storage asset. Values are
// validated once by NewBattery and never change afterwards.
type Battery struct {
	CapacityKWh         float64 `json:"capacity_kwh" yaml:"capacity_kwh"`
	MaxChargeKW         float64 `json:"max_charge_kw" yaml:"max_charge_kw"`
	MaxDischargeKW      float64 `json:"max_discharge_kw" yaml:"max_discharge_kw"`
	ChargeEfficiency    float64 `json:"charge_efficiency" yaml:"charge_efficiency"`
	DischargeEfficiency float64 `json:"discharge_efficiency" yaml:"discharge_efficiency"`
}

// Default efficiencies applied when a battery is declared without them.
const (
	DefaultChargeEfficiency    = 0.9
	DefaultDischargeEfficiency = 0.9
)

// NewBattery validates the parameters and returns the battery.
func NewBattery(capacityKWh, maxChargeKW, maxDischargeKW, chargeEff, dischargeEff float64) (Battery, error) {
	b := Battery{
		CapacityKWh:         capacityKWh,
		MaxChargeKW:         maxChargeKW,
		MaxDischargeKW:      maxDischargeKW,
		ChargeEfficiency:    chargeEff,
		DischargeEfficiency: dischargeEff,
	}
	if err := b.Validate(); err != nil {
		return Battery{}, err
	}
	return b, nil
}

// WithDefaults fills zero efficiencies with the package defaults.
func (b Battery) WithDefaults() Battery {
	if b.ChargeEfficiency == 0 {
		b.ChargeEfficiency = DefaultChargeEfficiency
	}
	if b.DischargeEfficiency == 0 {
		b.DischargeEfficiency = DefaultDischargeEfficiency
	}
	return b
}

// Validate checks that every limit is positive and finite and that both
// efficiencies lie in (0,1].
func (b Battery) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"capacity_kwh", b.CapacityKWh},
		{"max_charge_kw", b.MaxChargeKW},
		{"max_discharge_kw", b.MaxDischargeKW},
	}
	for _, p := range positive {
		if !(p.v > 0) || math.IsInf(p.v, 0) {
			return configErr(p.name, "must be a positive finite number, got %v", p.v)
		}
	}
	if !(b.ChargeEfficiency > 0 && b.ChargeEfficiency <= 1) {
		return configErr("charge_efficiency", "must be in (0,1], got %v", b.ChargeEfficiency)
	}
	if !(b.DischargeEfficiency > 0 && b.DischargeEfficiency <= 1) {
		return configErr("discharge_efficiency", "must be in (0,1], got %v", b.DischargeEfficiency)
	}
	return nil
}

// CheckSOC returns a ConfigurationError wrapping ErrInfeasibleConfiguration
// when soc lies outside [0, capacity].
func (b Battery) CheckSOC(soc float64) error {
	if math.IsNaN(soc) || soc < 0 || soc > b.CapacityKWh {
		return &ConfigurationError{
			Field:  "initial_soc",
			Reason: fmt.Sprintf("%v outside [0, %v]", soc, b.CapacityKWh),
			Err:    ErrInfeasibleConfiguration,
		}
	}
	return nil
}
