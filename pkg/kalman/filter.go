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

package kalman

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Reading is one observation channel for an update cycle. Valid is
// false when the channel was not observed, in which case the predicted
// value stands in and the channel contributes no innovation.
type Reading struct {
	Value float64
	Valid bool
}

// Estimate is a snapshot of the filter output after a predict or
// update cycle.
type Estimate struct {
	State           []float64 // estimated state vector
	Confidence      float64   // 1/(1+trace/k), monotone decreasing in trace
	CovarianceTrace float64   // trace of the covariance at snapshot time
}

// Filter is a linear Kalman filter with hard state clamping and
// divergence detection. A Filter exclusively owns its state vector and
// covariance; instances are not safe for concurrent use and are meant
// to be driven by a single session goroutine.
type Filter struct {
	stateDim int
	obsDim   int

	x *mat.VecDense // state
	p *mat.Dense    // covariance

	f *mat.Dense // transition
	q *mat.Dense // process noise
	h *mat.Dense // measurement matrix
	r *mat.Dense // measurement noise

	nominal *mat.VecDense // reset target
	p0      *mat.Dense    // reset covariance

	minState []float64
	maxState []float64

	control ControlModel
	dt      float64

	divergenceThreshold float64
	confidenceScale     float64

	diverged bool
	lastNIS  float64
}

// New builds a filter from cfg. Dimensional inconsistencies are
// reported as a *ConfigError.
func New(cfg Config) (*Filter, error) {
	cfg = cfg.withDefaults()
	if err := cfg.check(); err != nil {
		return nil, err
	}

	n := len(cfg.InitState)
	m := cfg.ObservationDim

	transition := cfg.Transition
	if transition == nil {
		transition = identity(n)
	}
	observation := cfg.Observation
	if observation == nil {
		observation = identity(n)
	}
	nominal := cfg.NominalState
	if nominal == nil {
		nominal = cfg.InitState
	}

	f := &Filter{
		stateDim:            n,
		obsDim:              m,
		x:                   mat.NewVecDense(n, append([]float64(nil), cfg.InitState...)),
		p:                   mat.NewDense(n, n, append([]float64(nil), cfg.InitCovariance...)),
		f:                   mat.NewDense(n, n, append([]float64(nil), transition...)),
		q:                   mat.NewDense(n, n, append([]float64(nil), cfg.ProcessNoise...)),
		h:                   mat.NewDense(m, n, append([]float64(nil), observation...)),
		r:                   mat.NewDense(m, m, append([]float64(nil), cfg.ObservationNoise...)),
		nominal:             mat.NewVecDense(n, append([]float64(nil), nominal...)),
		p0:                  mat.NewDense(n, n, append([]float64(nil), cfg.InitCovariance...)),
		minState:            append([]float64(nil), cfg.MinState...),
		maxState:            append([]float64(nil), cfg.MaxState...),
		control:             cfg.Control,
		dt:                  cfg.Dt,
		divergenceThreshold: cfg.DivergenceThreshold,
		confidenceScale:     cfg.ConfidenceScale,
	}
	return f, nil
}

// Predict propagates the state one time step: x' = F·x plus the control
// model contribution, re-clamped to the physical bounds, and
// P' = F·P·Fᵗ + Q. The returned estimate reflects the propagated state.
func (f *Filter) Predict(control float64) (*Estimate, error) {
	if err := f.predict(control); err != nil {
		return nil, err
	}
	return f.Estimate(), nil
}

func (f *Filter) predict(control float64) error {
	if f.diverged {
		return f.divergenceError()
	}

	var xn mat.VecDense
	xn.MulVec(f.f, f.x)
	if f.control != nil {
		f.control.Apply(xn.RawVector().Data, control, f.dt)
	}
	f.clamp(&xn)
	f.x.CopyVec(&xn)

	var fp, fpft mat.Dense
	fp.Mul(f.f, f.p)
	fpft.Mul(&fp, f.f.T())
	f.p.Add(&fpft, f.q)

	return f.checkDivergence()
}

// Update runs one full predict/correct cycle against the given
// observations. len(obs) must equal the observation dimension.
// Unobserved channels (Valid=false) contribute zero innovation.
// A singular innovation covariance fails the call without corrupting
// the filter; divergence latches until Reset.
func (f *Filter) Update(control float64, obs []Reading) (*Estimate, error) {
	if f.diverged {
		return nil, f.divergenceError()
	}
	if len(obs) != f.obsDim {
		return nil, &ConfigError{Reason: "observation vector size does not match measurement matrix"}
	}

	if err := f.predict(control); err != nil {
		return nil, err
	}

	// Build z, substituting the predicted observation where a channel
	// was not measured.
	var hx mat.VecDense
	hx.MulVec(f.h, f.x)
	z := mat.NewVecDense(f.obsDim, nil)
	for i, r := range obs {
		if r.Valid {
			z.SetVec(i, r.Value)
		} else {
			z.SetVec(i, hx.AtVec(i))
		}
	}

	// Innovation y = z - H·x and its covariance S = H·P·Hᵗ + R.
	var y mat.VecDense
	y.SubVec(z, &hx)

	var pht, s mat.Dense
	pht.Mul(f.p, f.h.T())
	s.Mul(f.h, &pht)
	s.Add(&s, f.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 0) {
			return nil, &SingularCovarianceError{cause: err}
		}
		// Ill-conditioned but invertible: the computed inverse stands.
	}

	var sy mat.VecDense
	sy.MulVec(&sInv, &y)
	f.lastNIS = mat.Dot(&y, &sy)

	// x += K·y with K = P·Hᵗ·S⁻¹.
	var k mat.Dense
	k.Mul(&pht, &sInv)
	var ky mat.VecDense
	ky.MulVec(&k, &y)
	f.x.AddVec(f.x, &ky)
	f.clamp(f.x)

	// P = (I - K·H)·P.
	var kh mat.Dense
	kh.Mul(&k, f.h)
	ikh := mat.NewDense(f.stateDim, f.stateDim, identity(f.stateDim))
	ikh.Sub(ikh, &kh)
	var pNew mat.Dense
	pNew.Mul(ikh, f.p)
	f.p.Copy(&pNew)

	if err := f.checkDivergence(); err != nil {
		return nil, err
	}
	return f.Estimate(), nil
}

// Estimate returns the current filter output without advancing state.
func (f *Filter) Estimate() *Estimate {
	tr := mat.Trace(f.p)
	return &Estimate{
		State:           f.State(),
		Confidence:      1.0 / (1.0 + tr/f.confidenceScale),
		CovarianceTrace: tr,
	}
}

// Reset restores the nominal state and initial covariance and clears a
// latched divergence. This is the only recovery path after divergence.
func (f *Filter) Reset() {
	f.x.CopyVec(f.nominal)
	f.p.Copy(f.p0)
	f.diverged = false
	f.lastNIS = 0
}

// State returns a copy of the state vector.
func (f *Filter) State() []float64 {
	out := make([]float64, f.stateDim)
	for i := range out {
		out[i] = f.x.AtVec(i)
	}
	return out
}

// Trace returns the covariance trace.
func (f *Filter) Trace() float64 {
	return mat.Trace(f.p)
}

// Variance returns the covariance diagonal entry for one state channel.
func (f *Filter) Variance(channel int) float64 {
	return f.p.At(channel, channel)
}

// LastNIS returns the normalized innovation squared of the most recent
// successful update.
func (f *Filter) LastNIS() float64 {
	return f.lastNIS
}

// Diverged reports whether the filter is latched in the diverged state.
func (f *Filter) Diverged() bool {
	return f.diverged
}

// Dim returns the state dimension.
func (f *Filter) Dim() int {
	return f.stateDim
}

func (f *Filter) clamp(x *mat.VecDense) {
	for i := 0; i < f.stateDim; i++ {
		v := x.AtVec(i)
		if v < f.minState[i] {
			v = f.minState[i]
		}
		if v > f.maxState[i] {
			v = f.maxState[i]
		}
		x.SetVec(i, v)
	}
}

// checkDivergence latches the diverged flag when the trace is no longer
// finite and below the threshold.
func (f *Filter) checkDivergence() error {
	tr := mat.Trace(f.p)
	if tr > f.divergenceThreshold || math.IsNaN(tr) || math.IsInf(tr, 0) {
		f.diverged = true
		return f.divergenceError()
	}
	return nil
}

func (f *Filter) divergenceError() *DivergenceError {
	return &DivergenceError{Trace: mat.Trace(f.p), Threshold: f.divergenceThreshold}
}
