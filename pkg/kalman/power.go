package kalman

import (
	"time"

	"github.com/rudywasfound/pravaha/pkg/telemetry"
)

// State vector channels of the power-subsystem filter
const (
	StateCharge     = 0 // battery charge (% of capacity)
	StateVoltage    = 1 // battery voltage (V)
	StateSolar      = 2 // solar input power (W)
	StateEfficiency = 3 // coulombic efficiency [0.5,1]

	PowerStateDim = 4
)

/*
	Under nominal conditions the NIS (Normalized Innovations Squared) of the
	power filter follows a Chi-Squared distribution with degrees of freedom
	equal to the observation dimension (m = 4 for [charge, voltage, solar,
	efficiency]). Updates whose NIS exceeds the 95% interval upper bound of
	9.488 indicate a model/measurement mismatch worth flagging.
*/
const DefaultMaxNIS = 9.488

// PowerParams parameterizes the power-subsystem filter.
type PowerParams struct {
	NominalVoltage float64 // battery nominal voltage (V)
	CapacityWh     float64 // battery energy capacity (Wh) for the power balance
	CapacityAh     float64 // battery charge capacity (Ah) for charge percent mapping
	Dt             float64 // prediction step (s)
}

// DefaultPowerParams returns the flight battery parameters.
func DefaultPowerParams() PowerParams {
	return PowerParams{
		NominalVoltage: 28.0,
		CapacityWh:     100.0,
		CapacityAh:     100.0,
		Dt:             1.0,
	}
}

// powerBalance is the deterministic physics folded into every predict:
// the charge channel integrates the solar/load power balance, voltage
// follows charge through a linear SOC model, and solar input decays
// slightly per step to track eclipse drift.
type powerBalance struct {
	nominalVoltage float64
	capacityWh     float64
}

func (pb powerBalance) Apply(state []float64, loadPower, dt float64) {
	charge := state[StateCharge]
	solar := state[StateSolar]
	efficiency := state[StateEfficiency]

	// dQ = (P_in - P_out) * dt / capacity_J * 100
	powerIn := solar * efficiency
	dcharge := (powerIn - loadPower) * dt / (pb.capacityWh * 3600.0) * 100.0
	charge = clampValue(charge+dcharge, 20.0, 100.0)

	// Voltage follows charge (linear SOC model).
	state[StateCharge] = charge
	state[StateVoltage] = pb.nominalVoltage * (0.8 + 0.2*charge/100.0)
	state[StateSolar] = clampValue(solar*0.98, 0.0, 600.0)
	state[StateEfficiency] = clampValue(efficiency, 0.5, 1.0)
}

// PowerSystemConfig returns the canonical power-subsystem filter
// configuration: state [charge%, voltage, solar, efficiency], all four
// channels observed directly.
func PowerSystemConfig(p PowerParams) Config {
	return Config{
		InitState:      []float64{80.0, p.NominalVoltage, 400.0, 1.0},
		InitCovariance: diagonal(10.0, 2.0, 50.0, 0.1),

		// Mostly identity: slow dynamics with slight charge decay.
		Transition:       transitionWithChargeDecay(),
		ProcessNoise:     diagonal(0.5, 0.3, 20.0, 0.02),
		ObservationNoise: diagonal(0.1, 0.2, 15.0, 0.01),

		MinState: []float64{20.0, 20.0, 0.0, 0.5},
		MaxState: []float64{100.0, 32.0, 600.0, 1.0},

		DivergenceThreshold: DefaultDivergenceThreshold,
		ConfidenceScale:     DefaultConfidenceScale,
		Dt:                  p.Dt,

		Control: powerBalance{
			nominalVoltage: p.NominalVoltage,
			capacityWh:     p.CapacityWh,
		},
	}
}

func transitionWithChargeDecay() []float64 {
	f := identity(PowerStateDim)
	f[StateCharge*PowerStateDim+StateCharge] = 0.99
	return f
}

// NewPowerFilter builds the canonical power-subsystem filter.
func NewPowerFilter(p PowerParams) (*Filter, error) {
	return New(PowerSystemConfig(p))
}

// PowerObservation maps a validated telemetry frame onto the filter
// observation vector. Charge converts from amp-hours to percent of
// capacity; efficiency is never measured directly and stays unobserved.
func PowerObservation(m *telemetry.Measurement, capacityAh float64) []Reading {
	return []Reading{
		StateCharge:     {Value: m.BatteryCharge / capacityAh * 100.0, Valid: true},
		StateVoltage:    {Value: m.BatteryVoltage, Valid: true},
		StateSolar:      {Value: m.SolarInput, Valid: true},
		StateEfficiency: {},
	}
}

// PowerEstimate renders a filter estimate as the external record form.
// Battery temperature is not part of the estimated state and passes
// through from the last accepted frame.
func PowerEstimate(e *Estimate, ts time.Time, batteryTemp float64) *telemetry.StateEstimate {
	return &telemetry.StateEstimate{
		Timestamp:         ts,
		BatteryCharge:     e.State[StateCharge],
		BatteryVoltage:    e.State[StateVoltage],
		SolarInput:        e.State[StateSolar],
		BatteryEfficiency: e.State[StateEfficiency],
		BatteryTemp:       batteryTemp,
		Confidence:        e.Confidence,
		CovarianceTrace:   e.CovarianceTrace,
	}
}

func clampValue(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
