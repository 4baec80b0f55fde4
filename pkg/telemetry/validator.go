package telemetry

import "fmt"

// Range is a closed interval of acceptable values for one channel.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}

// RangeError reports the first measurement field found outside its
// configured range. Validation stops at the first violation, so Field
// names exactly one channel.
type RangeError struct {
	Field string
	Value float64
	Range Range
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("field %s out of range %s: got %g", e.Field, e.Range, e.Value)
}

// ValidatorConfig holds the per-channel acceptance ranges.
type ValidatorConfig struct {
	BatteryVoltage Range
	BatteryCharge  Range
	BatteryTemp    Range
	BusVoltage     Range
	BusCurrent     Range
	SolarInput     Range
	SolarPanelTemp Range
	PayloadTemp    Range
}

// DefaultValidatorConfig returns the flight acceptance ranges for the
// power/thermal bus channels.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		BatteryVoltage: Range{20.0, 35.0},
		BatteryCharge:  Range{40.0, 105.0},
		BatteryTemp:    Range{0.0, 80.0},
		BusVoltage:     Range{25.0, 32.0},
		BusCurrent:     Range{0.0, 50.0},
		SolarInput:     Range{0.0, 500.0},
		SolarPanelTemp: Range{20.0, 100.0},
		PayloadTemp:    Range{0.0, 80.0},
	}
}

// Validator performs stateless range checks on measurement frames.
type Validator struct {
	cfg ValidatorConfig
}

// NewValidator builds a validator over the given ranges.
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{cfg: cfg}
}

// NewDefaultValidator builds a validator over DefaultValidatorConfig.
func NewDefaultValidator() *Validator {
	return NewValidator(DefaultValidatorConfig())
}

// Validate checks every channel against its configured range and the
// quality score against [0,1]. It fails fast: the returned *RangeError
// names the first violated field only. A nil error means the frame is
// acceptable as filter input.
func (v *Validator) Validate(m *Measurement) error {
	checks := []struct {
		field string
		value float64
		rng   Range
	}{
		{"battery_voltage", m.BatteryVoltage, v.cfg.BatteryVoltage},
		{"battery_charge", m.BatteryCharge, v.cfg.BatteryCharge},
		{"battery_temp", m.BatteryTemp, v.cfg.BatteryTemp},
		{"bus_voltage", m.BusVoltage, v.cfg.BusVoltage},
		{"bus_current", m.BusCurrent, v.cfg.BusCurrent},
		{"solar_input", m.SolarInput, v.cfg.SolarInput},
		{"solar_panel_temp", m.SolarPanelTemp, v.cfg.SolarPanelTemp},
		{"payload_temp", m.PayloadTemp, v.cfg.PayloadTemp},
		{"quality", m.Quality, Range{0.0, 1.0}},
	}
	for _, c := range checks {
		if !c.rng.Contains(c.value) {
			return &RangeError{Field: c.field, Value: c.value, Range: c.rng}
		}
	}
	return nil
}
