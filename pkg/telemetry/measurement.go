/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package telemetry defines the plain data records exchanged with the
// estimation pipeline: decoded measurement frames, state estimates and
// dropout status, plus range validation of incoming frames.
package telemetry

import (
	"encoding/json"
	"time"
)

// Measurement is a single decoded telemetry frame from the power/thermal
// subsystem. Instances are externally produced and treated as immutable.
type Measurement struct {
	Timestamp time.Time `json:"timestamp"`

	BatteryVoltage float64 `json:"battery_voltage"`  // battery voltage (V)
	BatteryCharge  float64 `json:"battery_charge"`   // battery charge (Ah)
	BatteryTemp    float64 `json:"battery_temp"`     // battery temperature (C)
	BusVoltage     float64 `json:"bus_voltage"`      // main bus voltage (V)
	BusCurrent     float64 `json:"bus_current"`      // main bus current (A)
	SolarInput     float64 `json:"solar_input"`      // solar array input power (W)
	SolarPanelTemp float64 `json:"solar_panel_temp"` // solar panel temperature (C)
	PayloadTemp    float64 `json:"payload_temp"`     // payload temperature (C)

	// Quality is the upstream link quality score in [0,1].
	Quality float64 `json:"quality"`
}

// NewMeasurement returns a frame populated with nominal bus values.
func NewMeasurement(ts time.Time) *Measurement {
	return &Measurement{
		Timestamp:      ts,
		BatteryVoltage: 28.0,
		BatteryCharge:  95.0,
		BatteryTemp:    35.0,
		BusVoltage:     29.0,
		BusCurrent:     15.0,
		SolarInput:     400.0,
		SolarPanelTemp: 45.0,
		PayloadTemp:    38.0,
		Quality:        1.0,
	}
}

// DecodeMeasurement parses the external JSON record form.
func DecodeMeasurement(data []byte) (*Measurement, error) {
	m := &Measurement{Quality: 1.0}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode renders the external JSON record form.
func (m *Measurement) Encode() ([]byte, error) {
	return json.Marshal(m)
}
