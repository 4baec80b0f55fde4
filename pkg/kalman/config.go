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

// Package kalman implements the linear state estimator at the heart of
// the telemetry pipeline: a clamped Kalman filter with divergence
// detection, plus the power-subsystem model built on top of it.
package kalman

import "fmt"

// Default filter parameters
const (
	// Covariance trace above this value marks the filter as diverged.
	DefaultDivergenceThreshold = 1000.0

	// Scale k in the confidence mapping 1/(1+trace/k).
	DefaultConfidenceScale = 50.0

	// Prediction time step (seconds).
	DefaultDt = 1.0
)

// ControlModel folds a control input and deterministic model dynamics
// into a freshly propagated state vector. Apply runs after the linear
// transition and before bound clamping, mutating state in place.
type ControlModel interface {
	Apply(state []float64, control float64, dt float64)
}

// Config describes a linear filter. Matrices are flat row-major slices,
// sized by the state dimension n = len(InitState) and the observation
// dimension m = ObservationDim (defaulting to n).
type Config struct {
	InitState      []float64 // initial state vector (size n)
	NominalState   []float64 // reset target (size n); nil means InitState
	InitCovariance []float64 // initial covariance (flat n x n)

	Transition       []float64 // state transition F (flat n x n); nil means identity
	ProcessNoise     []float64 // process noise Q (flat n x n)
	Observation      []float64 // measurement matrix H (flat m x n); nil means identity
	ObservationNoise []float64 // measurement noise R (flat m x m)
	ObservationDim   int       // m; 0 means n

	MinState []float64 // per-channel lower clamp (size n)
	MaxState []float64 // per-channel upper clamp (size n)

	DivergenceThreshold float64 // 0 means DefaultDivergenceThreshold
	ConfidenceScale     float64 // 0 means DefaultConfidenceScale
	Dt                  float64 // prediction step seconds; 0 means DefaultDt

	// Control is the optional physics hook applied on every predict.
	Control ControlModel
}

// withDefaults returns a copy with zero-valued scalars filled in.
func (c Config) withDefaults() Config {
	if c.DivergenceThreshold == 0 {
		c.DivergenceThreshold = DefaultDivergenceThreshold
	}
	if c.ConfidenceScale == 0 {
		c.ConfidenceScale = DefaultConfidenceScale
	}
	if c.Dt == 0 {
		c.Dt = DefaultDt
	}
	if c.ObservationDim == 0 {
		c.ObservationDim = len(c.InitState)
	}
	return c
}

// check validates dimensional consistency. Called once at construction.
func (c Config) check() error {
	n := len(c.InitState)
	if n == 0 {
		return &ConfigError{Reason: "initial state is empty"}
	}
	m := c.ObservationDim
	if m <= 0 {
		return &ConfigError{Reason: "observation dimension must be positive"}
	}
	if c.NominalState != nil && len(c.NominalState) != n {
		return &ConfigError{Reason: fmt.Sprintf("nominal state has %d entries, want %d", len(c.NominalState), n)}
	}
	if len(c.InitCovariance) != n*n {
		return &ConfigError{Reason: fmt.Sprintf("initial covariance has %d entries, want %d", len(c.InitCovariance), n*n)}
	}
	if c.Transition != nil && len(c.Transition) != n*n {
		return &ConfigError{Reason: fmt.Sprintf("transition matrix has %d entries, want %d", len(c.Transition), n*n)}
	}
	if len(c.ProcessNoise) != n*n {
		return &ConfigError{Reason: fmt.Sprintf("process noise has %d entries, want %d", len(c.ProcessNoise), n*n)}
	}
	if c.Observation != nil && len(c.Observation) != m*n {
		return &ConfigError{Reason: fmt.Sprintf("measurement matrix has %d entries, want %d", len(c.Observation), m*n)}
	}
	if c.Observation == nil && m != n {
		return &ConfigError{Reason: "identity measurement matrix requires equal state and observation dimensions"}
	}
	if len(c.ObservationNoise) != m*m {
		return &ConfigError{Reason: fmt.Sprintf("measurement noise has %d entries, want %d", len(c.ObservationNoise), m*m)}
	}
	if len(c.MinState) != n || len(c.MaxState) != n {
		return &ConfigError{Reason: "state bounds must cover every channel"}
	}
	for i := range c.MinState {
		if c.MinState[i] > c.MaxState[i] {
			return &ConfigError{Reason: fmt.Sprintf("channel %d bounds are inverted", i)}
		}
	}
	if c.DivergenceThreshold < 0 || c.ConfidenceScale < 0 || c.Dt < 0 {
		return &ConfigError{Reason: "thresholds and time step must be non-negative"}
	}
	return nil
}

// identity returns a flat n x n identity matrix.
func identity(n int) []float64 {
	m := make([]float64, n*n)
	for i := 0; i < n; i++ {
		m[i*n+i] = 1.0
	}
	return m
}

// diagonal returns a flat len(d) x len(d) matrix with d on the diagonal.
func diagonal(d ...float64) []float64 {
	n := len(d)
	m := make([]float64, n*n)
	for i, v := range d {
		m[i*n+i] = v
	}
	return m
}
