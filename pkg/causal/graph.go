package causal

import (
	"fmt"

	"github.com/rudywasfound/pravaha/pkg/kalman"
)

// DefaultBackwardPenalty is the confidence multiplier applied to every
// backward-inferred cause relative to its downstream node.
const DefaultBackwardPenalty = 0.8

// Term is one weighted input to a composite node. The channel value is
// divided by Scale before the weight is applied, so heterogeneous
// channels combine on a common normalized footing.
type Term struct {
	Channel int
	Weight  float64
	Scale   float64
}

// Rule synthesizes an upstream cause when the owning node's value
// crosses Threshold. The cause value is the linear map
// Offset + Slope*value, clamped to Bounds, and its interval is the
// downstream interval pushed through the same map.
type Rule struct {
	Threshold float64
	Below     bool
	Cause     string
	Offset    float64
	Slope     float64
	Bounds    [2]float64
	Penalty   float64
}

func (r *Rule) triggered(value float64) bool {
	if r.Below {
		return value < r.Threshold
	}
	return value > r.Threshold
}

// NodeSpec declares one graph node. A spec with Terms is composite and
// ignores Channel; otherwise the node reads Channel directly.
type NodeSpec struct {
	Name    string
	Channel int
	Terms   []Term
	Bounds  [2]float64
	Anomaly *Rule
}

func (s NodeSpec) composite() bool { return len(s.Terms) > 0 }

// Graph is the declarative node list the engine evaluates in order.
type Graph struct {
	Nodes []NodeSpec
}

// check validates the graph against a filter of the given state
// dimension. Called once at engine construction.
func (g Graph) check(stateDim int) error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	names := make(map[string]bool, len(g.Nodes))
	for _, spec := range g.Nodes {
		names[spec.Name] = true
	}
	seen := make(map[string]bool, len(g.Nodes))
	for _, spec := range g.Nodes {
		if spec.Name == "" {
			return fmt.Errorf("graph node with empty name")
		}
		if seen[spec.Name] {
			return fmt.Errorf("duplicate graph node %q", spec.Name)
		}
		seen[spec.Name] = true
		if spec.Bounds[0] > spec.Bounds[1] {
			return fmt.Errorf("node %q: bounds [%g, %g] are inverted", spec.Name, spec.Bounds[0], spec.Bounds[1])
		}
		if spec.composite() {
			for _, t := range spec.Terms {
				if t.Channel < 0 || t.Channel >= stateDim {
					return fmt.Errorf("node %q: term channel %d outside state dimension %d", spec.Name, t.Channel, stateDim)
				}
				if t.Scale == 0 {
					return fmt.Errorf("node %q: term on channel %d has zero scale", spec.Name, t.Channel)
				}
			}
		} else if spec.Channel < 0 || spec.Channel >= stateDim {
			return fmt.Errorf("node %q: channel %d outside state dimension %d", spec.Name, spec.Channel, stateDim)
		}
		if rule := spec.Anomaly; rule != nil {
			if rule.Cause == "" {
				return fmt.Errorf("node %q: anomaly rule has no cause name", spec.Name)
			}
			if names[rule.Cause] || seen[rule.Cause] {
				return fmt.Errorf("node %q: cause %q collides with another node", spec.Name, rule.Cause)
			}
			seen[rule.Cause] = true
			if rule.Penalty <= 0 || rule.Penalty > 1 {
				return fmt.Errorf("node %q: backward penalty %g outside (0, 1]", spec.Name, rule.Penalty)
			}
			if rule.Bounds[0] > rule.Bounds[1] {
				return fmt.Errorf("node %q: cause bounds [%g, %g] are inverted", spec.Name, rule.Bounds[0], rule.Bounds[1])
			}
		}
	}
	return nil
}

// DefaultPowerGraph relates the four estimated power channels to three
// observable nodes and two latent degradation causes:
//
//	battery_state      composite of charge, voltage and efficiency
//	  └─ battery_aging      inferred when battery_state drops below 0.7
//	solar_input        direct solar generation channel
//	  └─ solar_degradation  inferred when generation drops below 300 W
//	battery_efficiency direct coulombic efficiency channel
func DefaultPowerGraph() Graph {
	return Graph{
		Nodes: []NodeSpec{
			{
				Name: "battery_state",
				Terms: []Term{
					{Channel: kalman.StateCharge, Weight: 0.4, Scale: 100},
					{Channel: kalman.StateVoltage, Weight: 0.3, Scale: 28},
					{Channel: kalman.StateEfficiency, Weight: 0.3, Scale: 1},
				},
				Bounds: [2]float64{0, 1},
				Anomaly: &Rule{
					Threshold: 0.7,
					Below:     true,
					Cause:     "battery_aging",
					Offset:    1,
					Slope:     -1,
					Bounds:    [2]float64{0, 1},
					Penalty:   DefaultBackwardPenalty,
				},
			},
			{
				Name:    "solar_input",
				Channel: kalman.StateSolar,
				Bounds:  [2]float64{0, 600},
				Anomaly: &Rule{
					Threshold: 300,
					Below:     true,
					Cause:     "solar_degradation",
					Offset:    1,
					Slope:     -1.0 / 400.0,
					Bounds:    [2]float64{0, 1},
					Penalty:   DefaultBackwardPenalty,
				},
			},
			{
				Name:    "battery_efficiency",
				Channel: kalman.StateEfficiency,
				Bounds:  [2]float64{0.5, 1},
			},
		},
	}
}
