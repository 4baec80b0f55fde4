package telemetry

import (
	"encoding/json"
	"time"
)

// StateEstimate is a timestamped snapshot of the estimated subsystem
// state. Estimates are ephemeral outputs, produced once per filter
// predict/update cycle and never retained by the pipeline.
type StateEstimate struct {
	Timestamp time.Time `json:"timestamp"`

	BatteryCharge     float64 `json:"battery_charge"`     // estimated charge (% of capacity)
	BatteryVoltage    float64 `json:"battery_voltage"`    // estimated battery voltage (V)
	SolarInput        float64 `json:"solar_input"`        // estimated solar input power (W)
	BatteryEfficiency float64 `json:"battery_efficiency"` // estimated coulombic efficiency [0,1]
	BatteryTemp       float64 `json:"battery_temp"`       // estimated battery temperature (C)

	// Confidence in [0,1], a monotone decreasing function of the
	// covariance trace.
	Confidence float64 `json:"confidence"`

	// CovarianceTrace is the trace of the filter covariance at the
	// time of the snapshot.
	CovarianceTrace float64 `json:"covariance_trace"`
}

// IsReliable reports whether the estimate is trustworthy enough for
// downstream consumers to act on.
func (e *StateEstimate) IsReliable() bool {
	return e.Confidence > 0.7 && e.CovarianceTrace < 100.0
}

// DecodeStateEstimate parses the external JSON record form.
func DecodeStateEstimate(data []byte) (*StateEstimate, error) {
	e := &StateEstimate{}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Encode renders the external JSON record form.
func (e *StateEstimate) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DropoutStatus describes the dropout detector state at query time.
// Duration is nil outside of a dropout episode.
type DropoutStatus struct {
	InDropout bool           `json:"in_dropout"`
	Duration  *time.Duration `json:"dropout_duration,omitempty"`
}
