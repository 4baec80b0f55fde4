// Package causal maps filter state onto a small fixed causal graph of
// named power-system quantities and infers upstream causes backward
// when a downstream node crosses its anomaly threshold.
package causal

import (
	"encoding/json"
	"fmt"
	"time"
)

// Provenance records how a node's value was obtained. The set of
// implementations is closed: Direct, Composite and BackwardInferred.
type Provenance interface {
	provenance()
}

// Direct marks a value read verbatim from one filter-state channel.
type Direct struct {
	Channel int
}

// Composite marks a fixed weighted combination of several channels.
type Composite struct {
	Inputs []int
}

// BackwardInferred marks an upstream cause synthesized from the named
// downstream node during the backward pass.
type BackwardInferred struct {
	Source string
}

func (Direct) provenance()           {}
func (Composite) provenance()        {}
func (BackwardInferred) provenance() {}

// Node is one named estimate on the causal graph. Nodes are built fresh
// per inference call and are not mutated after being returned.
type Node struct {
	Name       string
	Value      float64
	Lower      float64
	Upper      float64
	Confidence float64
	Provenance Provenance
	Timestamp  time.Time
}

type nodeJSON struct {
	Name       string         `json:"name"`
	Value      float64        `json:"value"`
	Lower      float64        `json:"lower_bound"`
	Upper      float64        `json:"upper_bound"`
	Confidence float64        `json:"confidence"`
	Provenance provenanceJSON `json:"provenance"`
	Timestamp  time.Time      `json:"timestamp"`
}

type provenanceJSON struct {
	Kind    string `json:"kind"`
	Channel *int   `json:"channel,omitempty"`
	Inputs  []int  `json:"inputs,omitempty"`
	Source  string `json:"source,omitempty"`
}

// MarshalJSON encodes the node for external consumers. Decoding is not
// supported: nodes are produced by inference, never ingested.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{
		Name:       n.Name,
		Value:      n.Value,
		Lower:      n.Lower,
		Upper:      n.Upper,
		Confidence: n.Confidence,
		Timestamp:  n.Timestamp,
	}
	switch p := n.Provenance.(type) {
	case Direct:
		ch := p.Channel
		out.Provenance = provenanceJSON{Kind: "direct", Channel: &ch}
	case Composite:
		out.Provenance = provenanceJSON{Kind: "composite", Inputs: p.Inputs}
	case BackwardInferred:
		out.Provenance = provenanceJSON{Kind: "backward_inferred", Source: p.Source}
	default:
		return nil, fmt.Errorf("node %s has unknown provenance %T", n.Name, n.Provenance)
	}
	return json.Marshal(out)
}
