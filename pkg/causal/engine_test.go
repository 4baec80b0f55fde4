package causal

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rudywasfound/pravaha/pkg/kalman"
)

// degradedFilter starts the filter in a visibly unhealthy state so the
// anomaly rules trigger without any propagation.
func degradedFilter() *kalman.Config {
	cfg := kalman.PowerSystemConfig(kalman.DefaultPowerParams())
	cfg.InitState = []float64{30, 22, 100, 0.6}
	return &cfg
}

var _ = Describe("DetectGaps", func() {
	It("finds the single gap in a mostly contiguous sequence", func() {
		gaps := DetectGaps([]int{0, 1, 2, 3, 10, 11, 12})
		Expect(gaps).To(Equal([]Gap{{Start: 3, End: 10}}))
		Expect(gaps[0].Samples()).To(Equal(7))
	})

	It("returns nothing for empty and single-element input", func() {
		Expect(DetectGaps(nil)).To(BeEmpty())
		Expect(DetectGaps([]int{5})).To(BeEmpty())
	})

	It("returns nothing for a contiguous sequence", func() {
		Expect(DetectGaps([]int{4, 5, 6, 7})).To(BeEmpty())
	})

	It("reports multiple gaps in order", func() {
		Expect(DetectGaps([]int{0, 5, 9})).To(Equal([]Gap{
			{Start: 0, End: 5},
			{Start: 5, End: 9},
		}))
	})
})

var _ = Describe("Engine", func() {
	Describe("New", func() {
		It("rejects a graph that does not fit the filter", func() {
			bad := Graph{Nodes: []NodeSpec{
				{Name: "ghost", Channel: 9, Bounds: [2]float64{0, 1}},
			}}
			_, err := New(Config{Graph: bad})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("InferHiddenStates", func() {
		It("always reports every declared node on a healthy system", func() {
			engine, err := New(Config{})
			Expect(err).NotTo(HaveOccurred())

			nodes, err := engine.InferHiddenStates(0, 300.0)
			Expect(err).NotTo(HaveOccurred())

			Expect(nodes).To(HaveLen(3))
			Expect(nodes).To(HaveKey("battery_state"))
			Expect(nodes).To(HaveKey("solar_input"))
			Expect(nodes).To(HaveKey("battery_efficiency"))
			Expect(nodes).NotTo(HaveKey("battery_aging"))
			Expect(nodes).NotTo(HaveKey("solar_degradation"))
		})

		It("computes the battery composite from its weighted channels", func() {
			engine, err := New(Config{})
			Expect(err).NotTo(HaveOccurred())

			nodes, err := engine.InferHiddenStates(0, 300.0)
			Expect(err).NotTo(HaveOccurred())

			// 0.4*(80/100) + 0.3*(28/28) + 0.3*1.0
			bs := nodes["battery_state"]
			Expect(bs.Value).To(BeNumerically("~", 0.92, 1e-9))
			Expect(bs.Confidence).To(Equal(1.0))
			Expect(bs.Provenance).To(Equal(Composite{Inputs: []int{
				kalman.StateCharge, kalman.StateVoltage, kalman.StateEfficiency,
			}}))
		})

		It("bounds direct nodes by two sigma, clamped to physical range", func() {
			engine, err := New(Config{})
			Expect(err).NotTo(HaveOccurred())

			nodes, err := engine.InferHiddenStates(0, 300.0)
			Expect(err).NotTo(HaveOccurred())

			eff := nodes["battery_efficiency"]
			Expect(eff.Value).To(Equal(1.0))
			Expect(eff.Upper).To(Equal(1.0), "upper bound clamps at the physical ceiling")
			Expect(eff.Lower).To(Equal(0.5), "two sigma reaches below the physical floor")
			Expect(eff.Provenance).To(Equal(Direct{Channel: kalman.StateEfficiency}))

			solar := nodes["solar_input"]
			Expect(solar.Lower).To(BeNumerically("<", solar.Value))
			Expect(solar.Upper).To(BeNumerically(">", solar.Value))
			Expect(solar.Confidence).To(BeNumerically(">", 0))
			Expect(solar.Confidence).To(BeNumerically("<", 1))
		})

		It("degrades composite confidence with gap length", func() {
			short, err := New(Config{})
			Expect(err).NotTo(HaveOccurred())
			long, err := New(Config{})
			Expect(err).NotTo(HaveOccurred())

			after2, err := short.InferHiddenStates(2, 300.0)
			Expect(err).NotTo(HaveOccurred())
			after10, err := long.InferHiddenStates(10, 300.0)
			Expect(err).NotTo(HaveOccurred())

			Expect(after2["battery_state"].Confidence).To(BeNumerically("~", math.Exp(-0.1), 1e-12))
			Expect(after10["battery_state"].Confidence).To(BeNumerically("~", math.Exp(-0.5), 1e-12))
			Expect(after10["battery_state"].Confidence).To(BeNumerically("<",
				after2["battery_state"].Confidence))
		})

		It("synthesizes battery_aging when the composite crosses its threshold", func() {
			engine, err := New(Config{Filter: degradedFilter()})
			Expect(err).NotTo(HaveOccurred())

			nodes, err := engine.InferHiddenStates(0, 300.0)
			Expect(err).NotTo(HaveOccurred())

			// 0.4*(30/100) + 0.3*(22/28) + 0.3*0.6 = 0.53571...
			bs := nodes["battery_state"]
			Expect(bs.Value).To(BeNumerically("~", 0.5357142857, 1e-9))
			Expect(bs.Value).To(BeNumerically("<", 0.7))

			aging := nodes["battery_aging"]
			Expect(aging).NotTo(BeNil())
			Expect(aging.Value).To(BeNumerically("~", 1-bs.Value, 1e-12))
			Expect(aging.Confidence).To(BeNumerically("~", bs.Confidence*0.8, 1e-12))
			Expect(aging.Provenance).To(Equal(BackwardInferred{Source: "battery_state"}))
		})

		It("synthesizes solar_degradation from weak generation", func() {
			engine, err := New(Config{Filter: degradedFilter()})
			Expect(err).NotTo(HaveOccurred())

			nodes, err := engine.InferHiddenStates(0, 300.0)
			Expect(err).NotTo(HaveOccurred())

			deg := nodes["solar_degradation"]
			Expect(deg).NotTo(BeNil())
			Expect(deg.Value).To(BeNumerically("~", 1-100.0/400.0, 1e-9))
			Expect(deg.Lower).To(BeNumerically("<=", deg.Value))
			Expect(deg.Upper).To(BeNumerically(">=", deg.Value))
			Expect(deg.Lower).To(BeNumerically(">=", 0))
			Expect(deg.Upper).To(BeNumerically("<=", 1))
		})

		It("propagates filter divergence instead of fabricating nodes", func() {
			engine, err := New(Config{})
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.InferHiddenStates(60, 300.0)
			Expect(err).To(HaveOccurred())
			var div *kalman.DivergenceError
			Expect(errors.As(err, &div)).To(BeTrue())

			engine.Reset()
			nodes, err := engine.InferHiddenStates(1, 300.0)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveKey("battery_state"))
		})
	})

	Describe("AnalyzeWithDropoutHandling", func() {
		It("returns an empty map when the sequence has no gaps", func() {
			engine, err := New(Config{})
			Expect(err).NotTo(HaveOccurred())

			nodes, err := engine.AnalyzeWithDropoutHandling([]int{0, 1, 2}, 300.0)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(BeEmpty())
		})

		It("merges gaps with the last gap winning on name collisions", func() {
			engine, err := New(Config{})
			Expect(err).NotTo(HaveOccurred())

			// Gaps of 3 and 7 samples; the merged composite must carry
			// the 7-sample confidence.
			nodes, err := engine.AnalyzeWithDropoutHandling([]int{0, 3, 10}, 300.0)
			Expect(err).NotTo(HaveOccurred())

			Expect(nodes).To(HaveKey("battery_state"))
			Expect(nodes["battery_state"].Confidence).To(
				BeNumerically("~", math.Exp(-0.05*7), 1e-12))
		})
	})
})
