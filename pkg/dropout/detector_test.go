package dropout

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rudywasfound/pravaha/pkg/kalman"
	"github.com/rudywasfound/pravaha/pkg/telemetry"
)

var _ = Describe("Detector", func() {
	var (
		detector *Detector
		base     time.Time
	)

	frameAt := func(offset time.Duration) *telemetry.Measurement {
		return telemetry.NewMeasurement(base.Add(offset))
	}

	BeforeEach(func() {
		var err error
		detector, err = New(Config{})
		Expect(err).NotTo(HaveOccurred())
		base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	Describe("Process", func() {
		Context("with frames arriving on time", func() {
			It("stays in the normal state", func() {
				for i := 0; i < 4; i++ {
					_, err := detector.Process(frameAt(time.Duration(i) * time.Second))
					Expect(err).NotTo(HaveOccurred())
				}
				Expect(detector.State()).To(Equal(StateNormal))

				status := detector.Status()
				Expect(status.InDropout).To(BeFalse())
				Expect(status.Duration).To(BeNil())
			})

			It("produces estimates that track the telemetry", func() {
				var est *telemetry.StateEstimate
				for i := 0; i < 10; i++ {
					var err error
					est, err = detector.Process(frameAt(time.Duration(i) * time.Second))
					Expect(err).NotTo(HaveOccurred())
				}
				Expect(est.BatteryCharge).To(BeNumerically("~", 95.0, 3.0))
				Expect(est.BatteryVoltage).To(BeNumerically("~", 28.0, 1.0))
				Expect(est.BatteryTemp).To(Equal(35.0))
				Expect(est.Confidence).To(BeNumerically(">", 0.5))
			})
		})

		Context("when a frame arrives after a long silence", func() {
			BeforeEach(func() {
				_, err := detector.Process(frameAt(0))
				Expect(err).NotTo(HaveOccurred())
				_, err = detector.Process(frameAt(1 * time.Second))
				Expect(err).NotTo(HaveOccurred())
			})

			It("enters the dropout state once the gap exceeds the threshold", func() {
				_, err := detector.Process(frameAt(30 * time.Second))
				Expect(err).NotTo(HaveOccurred())
				Expect(detector.State()).To(Equal(StateDropout))

				status := detector.Status()
				Expect(status.InDropout).To(BeTrue())
				Expect(status.Duration).NotTo(BeNil())
				Expect(*status.Duration).To(BeNumerically(">", 0))
			})

			It("emits a forward prediction with degraded confidence", func() {
				normal := detector.Estimate(base.Add(1 * time.Second))

				est, err := detector.Process(frameAt(61 * time.Second))
				Expect(err).NotTo(HaveOccurred())
				Expect(est.Confidence).To(BeNumerically("<", normal.Confidence))
			})

			It("degrades confidence more for longer gaps", func() {
				short, err := detector.Process(frameAt(7 * time.Second))
				Expect(err).NotTo(HaveOccurred())

				other, err := New(Config{})
				Expect(err).NotTo(HaveOccurred())
				_, err = other.Process(frameAt(0))
				Expect(err).NotTo(HaveOccurred())
				_, err = other.Process(frameAt(1 * time.Second))
				Expect(err).NotTo(HaveOccurred())
				long, err := other.Process(frameAt(101 * time.Second))
				Expect(err).NotTo(HaveOccurred())

				Expect(long.Confidence).To(BeNumerically("<", short.Confidence))
			})

			It("returns to normal on the next on-time frame", func() {
				_, err := detector.Process(frameAt(30 * time.Second))
				Expect(err).NotTo(HaveOccurred())
				Expect(detector.State()).To(Equal(StateDropout))

				_, err = detector.Process(frameAt(31 * time.Second))
				Expect(err).NotTo(HaveOccurred())
				Expect(detector.State()).To(Equal(StateNormal))
				Expect(detector.Status().InDropout).To(BeFalse())
			})
		})

		Context("when the embedded filter diverges", func() {
			It("propagates the error without retrying", func() {
				cfg := kalman.PowerSystemConfig(kalman.DefaultPowerParams())
				cfg.DivergenceThreshold = 63.0 // barely above the initial trace

				d, err := New(Config{Filter: &cfg})
				Expect(err).NotTo(HaveOccurred())

				_, err = d.Process(frameAt(0))
				Expect(err).To(HaveOccurred())

				var div *kalman.DivergenceError
				Expect(err).To(BeAssignableToTypeOf(div))
			})
		})
	})

	Describe("Reset", func() {
		It("clears dropout state and restores the filter", func() {
			_, err := detector.Process(frameAt(0))
			Expect(err).NotTo(HaveOccurred())
			_, err = detector.Process(frameAt(30 * time.Second))
			Expect(err).NotTo(HaveOccurred())
			Expect(detector.State()).To(Equal(StateDropout))

			detector.Reset()

			Expect(detector.State()).To(Equal(StateNormal))
			Expect(detector.Status().InDropout).To(BeFalse())
			est := detector.Estimate(base)
			Expect(est.BatteryCharge).To(Equal(80.0))
		})
	})

	Describe("State", func() {
		It("renders readable names", func() {
			Expect(StateNormal.String()).To(Equal("normal"))
			Expect(StateDropout.String()).To(Equal("dropout"))
			Expect(State(42).String()).To(Equal("unknown"))
		})
	})
})
