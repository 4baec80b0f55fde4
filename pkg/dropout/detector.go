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

// Package dropout detects telemetry communication gaps and keeps state
// estimates flowing through them with forward-only prediction and
// confidence decay. Two entry points cover the two ingestion styles:
// Detector consumes timestamped frames, GapPredictor works on sample
// indices.
package dropout

import (
	"math"
	"time"

	"github.com/rudywasfound/pravaha/pkg/kalman"
	"github.com/rudywasfound/pravaha/pkg/telemetry"
)

// Default detector parameters
const (
	DefaultGapThreshold  = 5 * time.Second
	DefaultDecayFactor   = 0.95
	DefaultDecayInterval = 10 * time.Second
	DefaultLoadPower     = 300.0
	DefaultCapacityAh    = 100.0
)

// State is the detector state machine position.
type State int

const (
	// StateNormal means frames are arriving within the gap threshold.
	StateNormal State = iota
	// StateDropout means the link is considered lost and estimates come
	// from forward prediction only.
	StateDropout
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateDropout:
		return "dropout"
	default:
		return "unknown"
	}
}

// Config holds detector parameters. Zero values take the defaults
// above; Filter overrides the embedded power-subsystem filter.
type Config struct {
	GapThreshold      time.Duration // gap beyond which a dropout begins
	DecayFactor       float64       // confidence decay base
	DecayInterval     time.Duration // gap length for one decay step
	LoadPower         float64       // spacecraft load for prediction (W)
	BatteryCapacityAh float64       // charge capacity for percent mapping
	Filter            *kalman.Config
}

func (c Config) withDefaults() Config {
	if c.GapThreshold == 0 {
		c.GapThreshold = DefaultGapThreshold
	}
	if c.DecayFactor == 0 {
		c.DecayFactor = DefaultDecayFactor
	}
	if c.DecayInterval == 0 {
		c.DecayInterval = DefaultDecayInterval
	}
	if c.LoadPower == 0 {
		c.LoadPower = DefaultLoadPower
	}
	if c.BatteryCapacityAh == 0 {
		c.BatteryCapacityAh = DefaultCapacityAh
	}
	return c
}

// Detector is the two-state (normal/dropout) machine over timestamped
// telemetry. It exclusively owns its embedded filter; the instance is
// constructed here and never handed out.
type Detector struct {
	cfg    Config
	filter *kalman.Filter

	last         *telemetry.Measurement
	lastTemp     float64
	state        State
	dropoutStart time.Time
}

// New builds a detector. The embedded filter defaults to the canonical
// power-subsystem configuration.
func New(cfg Config) (*Detector, error) {
	cfg = cfg.withDefaults()

	fcfg := kalman.PowerSystemConfig(kalman.DefaultPowerParams())
	if cfg.Filter != nil {
		fcfg = *cfg.Filter
	}
	filter, err := kalman.New(fcfg)
	if err != nil {
		return nil, err
	}

	return &Detector{cfg: cfg, filter: filter, state: StateNormal}, nil
}

// Process ingests one validated frame. Frames arriving within the gap
// threshold follow the normal path: a full filter update. A frame
// arriving after a longer silence marks a dropout; the estimate for it
// is forward-predicted only, with confidence decayed by the elapsed
// gap. The frame after that, arriving on time, performs a plain update
// and clears the dropout; skipped steps are never replayed.
func (d *Detector) Process(m *telemetry.Measurement) (*telemetry.StateEstimate, error) {
	if d.last != nil {
		if gap := m.Timestamp.Sub(d.last.Timestamp); gap > d.cfg.GapThreshold {
			return d.predictThroughGap(m, gap)
		}
	}

	d.state = StateNormal
	d.dropoutStart = time.Time{}

	est, err := d.filter.Update(d.cfg.LoadPower, kalman.PowerObservation(m, d.cfg.BatteryCapacityAh))
	if err != nil {
		return nil, err
	}

	d.last = m
	d.lastTemp = m.BatteryTemp
	return kalman.PowerEstimate(est, m.Timestamp, d.lastTemp), nil
}

// predictThroughGap advances the filter one predict step and degrades
// confidence by decayFactor^(gap/decayInterval), a strictly decreasing
// function of the elapsed gap.
func (d *Detector) predictThroughGap(m *telemetry.Measurement, gap time.Duration) (*telemetry.StateEstimate, error) {
	if d.state != StateDropout {
		d.state = StateDropout
		d.dropoutStart = d.last.Timestamp
	}

	est, err := d.filter.Predict(d.cfg.LoadPower)
	if err != nil {
		return nil, err
	}

	out := kalman.PowerEstimate(est, m.Timestamp, d.lastTemp)
	out.Confidence *= math.Pow(d.cfg.DecayFactor, gap.Seconds()/d.cfg.DecayInterval.Seconds())
	d.last = m
	return out, nil
}

// Status reports the current dropout state. Duration is the time since
// the dropout began, nil outside a dropout episode.
func (d *Detector) Status() telemetry.DropoutStatus {
	status := telemetry.DropoutStatus{InDropout: d.state == StateDropout}
	if status.InDropout {
		dur := time.Since(d.dropoutStart)
		status.Duration = &dur
	}
	return status
}

// State returns the state machine position.
func (d *Detector) State() State {
	return d.state
}

// LastNIS reports the normalized innovation squared of the most recent
// measurement update, for residual monitoring. Prediction-only frames
// do not refresh it.
func (d *Detector) LastNIS() float64 {
	return d.filter.LastNIS()
}

// Estimate returns the current filter output rendered as a record,
// without advancing the filter.
func (d *Detector) Estimate(ts time.Time) *telemetry.StateEstimate {
	return kalman.PowerEstimate(d.filter.Estimate(), ts, d.lastTemp)
}

// Reset returns the detector to its initial state, including the
// embedded filter. This is the recovery path after divergence.
func (d *Detector) Reset() {
	d.state = StateNormal
	d.dropoutStart = time.Time{}
	d.last = nil
	d.lastTemp = 0
	d.filter.Reset()
}
