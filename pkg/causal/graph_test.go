package causal

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rudywasfound/pravaha/pkg/kalman"
)

var _ = Describe("Graph", func() {
	Describe("check", func() {
		dim := kalman.PowerStateDim

		It("accepts the default power graph", func() {
			Expect(DefaultPowerGraph().check(dim)).To(Succeed())
		})

		It("rejects an empty graph", func() {
			Expect(Graph{}.check(dim)).NotTo(Succeed())
		})

		It("rejects duplicate node names", func() {
			g := Graph{Nodes: []NodeSpec{
				{Name: "solar_input", Channel: kalman.StateSolar, Bounds: [2]float64{0, 600}},
				{Name: "solar_input", Channel: kalman.StateSolar, Bounds: [2]float64{0, 600}},
			}}
			Expect(g.check(dim)).To(MatchError(ContainSubstring("duplicate")))
		})

		It("rejects channels outside the state dimension", func() {
			g := Graph{Nodes: []NodeSpec{
				{Name: "bogus", Channel: dim, Bounds: [2]float64{0, 1}},
			}}
			Expect(g.check(dim)).To(MatchError(ContainSubstring("outside state dimension")))
		})

		It("rejects composite terms with zero scale", func() {
			g := Graph{Nodes: []NodeSpec{
				{
					Name:   "broken",
					Terms:  []Term{{Channel: kalman.StateCharge, Weight: 1, Scale: 0}},
					Bounds: [2]float64{0, 1},
				},
			}}
			Expect(g.check(dim)).To(MatchError(ContainSubstring("zero scale")))
		})

		It("rejects inverted bounds", func() {
			g := Graph{Nodes: []NodeSpec{
				{Name: "inverted", Channel: kalman.StateCharge, Bounds: [2]float64{1, 0}},
			}}
			Expect(g.check(dim)).To(MatchError(ContainSubstring("inverted")))
		})

		It("rejects a cause name that collides with a node", func() {
			g := Graph{Nodes: []NodeSpec{
				{
					Name:    "solar_input",
					Channel: kalman.StateSolar,
					Bounds:  [2]float64{0, 600},
					Anomaly: &Rule{
						Threshold: 300, Below: true,
						Cause: "battery_efficiency",
						Offset: 1, Slope: -1,
						Bounds: [2]float64{0, 1}, Penalty: 0.8,
					},
				},
				{Name: "battery_efficiency", Channel: kalman.StateEfficiency, Bounds: [2]float64{0.5, 1}},
			}}
			Expect(g.check(dim)).To(MatchError(ContainSubstring("collides")))
		})

		It("rejects penalties outside (0, 1]", func() {
			g := Graph{Nodes: []NodeSpec{
				{
					Name:    "solar_input",
					Channel: kalman.StateSolar,
					Bounds:  [2]float64{0, 600},
					Anomaly: &Rule{
						Threshold: 300, Below: true,
						Cause: "solar_degradation",
						Offset: 1, Slope: -1,
						Bounds: [2]float64{0, 1}, Penalty: 1.5,
					},
				},
			}}
			Expect(g.check(dim)).To(MatchError(ContainSubstring("penalty")))
		})
	})

	Describe("Rule", func() {
		It("triggers on the configured side of the threshold", func() {
			below := Rule{Threshold: 0.7, Below: true}
			Expect(below.triggered(0.69)).To(BeTrue())
			Expect(below.triggered(0.7)).To(BeFalse())

			above := Rule{Threshold: 50}
			Expect(above.triggered(51)).To(BeTrue())
			Expect(above.triggered(50)).To(BeFalse())
		})
	})
})

var _ = Describe("Node encoding", func() {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	It("tags direct provenance with its channel", func() {
		n := &Node{
			Name: "solar_input", Value: 400, Lower: 380, Upper: 420,
			Confidence: 0.9, Provenance: Direct{Channel: kalman.StateSolar},
			Timestamp: ts,
		}
		raw, err := json.Marshal(n)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(ContainSubstring(`"kind":"direct"`))
		Expect(string(raw)).To(ContainSubstring(`"channel":2`))
		Expect(string(raw)).To(ContainSubstring(`"lower_bound":380`))
	})

	It("tags composite provenance with its input channels", func() {
		n := &Node{
			Name: "battery_state", Value: 0.92,
			Provenance: Composite{Inputs: []int{0, 1, 3}},
			Timestamp:  ts,
		}
		raw, err := json.Marshal(n)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(ContainSubstring(`"kind":"composite"`))
		Expect(string(raw)).To(ContainSubstring(`"inputs":[0,1,3]`))
	})

	It("tags backward provenance with its source node", func() {
		n := &Node{
			Name: "battery_aging", Value: 0.4,
			Provenance: BackwardInferred{Source: "battery_state"},
			Timestamp:  ts,
		}
		raw, err := json.Marshal(n)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(ContainSubstring(`"kind":"backward_inferred"`))
		Expect(string(raw)).To(ContainSubstring(`"source":"battery_state"`))
	})

	It("refuses a node with no provenance", func() {
		n := &Node{Name: "orphan"}
		_, err := json.Marshal(n)
		Expect(err).To(HaveOccurred())
	})
})
