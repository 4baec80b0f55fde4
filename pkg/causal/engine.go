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

package causal

import (
	"math"
	"time"

	"github.com/rudywasfound/pravaha/pkg/kalman"
)

const (
	// DefaultDecayRate controls how fast composite-node confidence
	// falls per propagated sample: exp(-rate * gap).
	DefaultDecayRate = 0.05

	// DefaultConfidenceScale maps covariance trace to direct-node
	// confidence, 1 / (1 + trace/scale).
	DefaultConfidenceScale = 50.0

	// DefaultCompositeWidth sets the half-width of a composite node's
	// interval as (1 - confidence) * width.
	DefaultCompositeWidth = 0.2
)

// Config assembles an inference engine. The zero value selects the
// default power graph over a freshly configured power-system filter.
type Config struct {
	Graph           Graph
	Filter          *kalman.Config
	DecayRate       float64
	ConfidenceScale float64
	CompositeWidth  float64
}

func (c Config) withDefaults() Config {
	if len(c.Graph.Nodes) == 0 {
		c.Graph = DefaultPowerGraph()
	}
	if c.Filter == nil {
		filterCfg := kalman.PowerSystemConfig(kalman.DefaultPowerParams())
		c.Filter = &filterCfg
	}
	if c.DecayRate == 0 {
		c.DecayRate = DefaultDecayRate
	}
	if c.ConfidenceScale == 0 {
		c.ConfidenceScale = DefaultConfidenceScale
	}
	if c.CompositeWidth == 0 {
		c.CompositeWidth = DefaultCompositeWidth
	}
	return c
}

// Gap is a run of missing samples between two observed indices.
type Gap struct {
	Start int
	End   int
}

// Samples returns the number of missing propagation steps the gap
// represents.
func (g Gap) Samples() int { return g.End - g.Start }

// DetectGaps scans monotonically increasing sample indices and returns
// one entry per adjacent pair whose difference exceeds one. Empty and
// single-element input produce no gaps.
func DetectGaps(indices []int) []Gap {
	var gaps []Gap
	for i := 1; i < len(indices); i++ {
		if indices[i]-indices[i-1] > 1 {
			gaps = append(gaps, Gap{Start: indices[i-1], End: indices[i]})
		}
	}
	return gaps
}

// Engine evaluates the causal graph against a privately owned filter.
// The filter is only ever propagated forward; measurement corrections
// belong to the ingestion path, not to inference.
type Engine struct {
	cfg    Config
	graph  Graph
	filter *kalman.Filter
}

// New builds an engine and validates the graph against the filter's
// state dimension.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	filter, err := kalman.New(*cfg.Filter)
	if err != nil {
		return nil, err
	}
	if err := cfg.Graph.check(filter.Dim()); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, graph: cfg.Graph, filter: filter}, nil
}

// InferHiddenStates propagates the filter gapSamples steps under the
// given control input and evaluates every graph node against the final
// propagated state. Intermediate states are discarded; callers that
// need per-sample trajectories use the dropout gap predictor instead.
// Backward-inferred causes appear in the result only when their rule
// triggers.
func (e *Engine) InferHiddenStates(gapSamples int, control float64) (map[string]*Node, error) {
	for i := 0; i < gapSamples; i++ {
		if _, err := e.filter.Predict(control); err != nil {
			return nil, err
		}
	}

	state := e.filter.State()
	now := time.Now()
	nodes := make(map[string]*Node, len(e.graph.Nodes)+2)
	for _, spec := range e.graph.Nodes {
		var node *Node
		if spec.composite() {
			node = e.compositeNode(spec, state, gapSamples, now)
		} else {
			node = e.directNode(spec, state, now)
		}
		nodes[node.Name] = node
		if spec.Anomaly != nil && spec.Anomaly.triggered(node.Value) {
			cause := backwardNode(spec.Anomaly, node, now)
			nodes[cause.Name] = cause
		}
	}
	return nodes, nil
}

// AnalyzeWithDropoutHandling detects gaps in the index sequence, runs
// one inference per gap and merges the results into a single map. Later
// gaps overwrite same-named nodes from earlier ones.
func (e *Engine) AnalyzeWithDropoutHandling(indices []int, control float64) (map[string]*Node, error) {
	merged := make(map[string]*Node)
	for _, gap := range DetectGaps(indices) {
		nodes, err := e.InferHiddenStates(gap.Samples(), control)
		if err != nil {
			return nil, err
		}
		for name, node := range nodes {
			merged[name] = node
		}
	}
	return merged, nil
}

// Trace exposes the owned filter's covariance trace.
func (e *Engine) Trace() float64 { return e.filter.Trace() }

// Reset restores the owned filter to its initial state, clearing any
// divergence latch accumulated across inference calls.
func (e *Engine) Reset() { e.filter.Reset() }

func (e *Engine) compositeNode(spec NodeSpec, state []float64, gapSamples int, ts time.Time) *Node {
	var value float64
	inputs := make([]int, 0, len(spec.Terms))
	for _, t := range spec.Terms {
		value += t.Weight * state[t.Channel] / t.Scale
		inputs = append(inputs, t.Channel)
	}
	value = clamp(value, spec.Bounds)

	conf := math.Exp(-e.cfg.DecayRate * float64(gapSamples))
	half := (1 - conf) * e.cfg.CompositeWidth
	return &Node{
		Name:       spec.Name,
		Value:      value,
		Lower:      clamp(value-half, spec.Bounds),
		Upper:      clamp(value+half, spec.Bounds),
		Confidence: conf,
		Provenance: Composite{Inputs: inputs},
		Timestamp:  ts,
	}
}

func (e *Engine) directNode(spec NodeSpec, state []float64, ts time.Time) *Node {
	value := clamp(state[spec.Channel], spec.Bounds)
	sigma := math.Sqrt(e.filter.Variance(spec.Channel))
	return &Node{
		Name:       spec.Name,
		Value:      value,
		Lower:      clamp(value-2*sigma, spec.Bounds),
		Upper:      clamp(value+2*sigma, spec.Bounds),
		Confidence: 1 / (1 + e.filter.Trace()/e.cfg.ConfidenceScale),
		Provenance: Direct{Channel: spec.Channel},
		Timestamp:  ts,
	}
}

func backwardNode(rule *Rule, downstream *Node, ts time.Time) *Node {
	value := clamp(rule.Offset+rule.Slope*downstream.Value, rule.Bounds)

	// A negative slope flips the interval; reorder before clamping.
	a := rule.Offset + rule.Slope*downstream.Lower
	b := rule.Offset + rule.Slope*downstream.Upper
	lower, upper := a, b
	if lower > upper {
		lower, upper = upper, lower
	}
	return &Node{
		Name:       rule.Cause,
		Value:      value,
		Lower:      clamp(lower, rule.Bounds),
		Upper:      clamp(upper, rule.Bounds),
		Confidence: downstream.Confidence * rule.Penalty,
		Provenance: BackwardInferred{Source: downstream.Name},
		Timestamp:  ts,
	}
}

func clamp(v float64, bounds [2]float64) float64 {
	return math.Min(math.Max(v, bounds[0]), bounds[1])
}
