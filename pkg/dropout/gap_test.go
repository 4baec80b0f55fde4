package dropout

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("GapPredictor", func() {
	var predictor *GapPredictor

	BeforeEach(func() {
		var err error
		predictor, err = NewGapPredictor(5, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewGapPredictor", func() {
		It("rejects a non-positive threshold", func() {
			_, err := NewGapPredictor(0, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("CheckDropout", func() {
		It("flags only gaps beyond the threshold", func() {
			predictor.MarkValid(10)

			Expect(predictor.CheckDropout(11)).To(BeFalse())
			Expect(predictor.CheckDropout(15)).To(BeFalse())
			Expect(predictor.CheckDropout(20)).To(BeTrue())
			Expect(predictor.InDropout()).To(BeTrue())
			Expect(predictor.DropoutStart()).To(Equal(10))
		})

		It("clears the dropout on the next valid sample", func() {
			predictor.MarkValid(10)
			Expect(predictor.CheckDropout(20)).To(BeTrue())

			predictor.MarkValid(20)
			Expect(predictor.InDropout()).To(BeFalse())
		})

		It("treats out-of-order samples as zero gap", func() {
			predictor.MarkValid(100)
			Expect(predictor.CheckDropout(50)).To(BeFalse())
		})
	})

	Describe("FillGap", func() {
		It("emits one prediction per index in the closed range", func() {
			filled, err := predictor.FillGap(50, 54, 300.0)
			Expect(err).NotTo(HaveOccurred())
			Expect(filled).To(HaveLen(5))

			for i, sample := range filled {
				Expect(sample.Index).To(Equal(50 + i))
				Expect(sample.Charge).To(BeNumerically(">=", 20.0))
				Expect(sample.Charge).To(BeNumerically("<=", 100.0))
			}
		})

		It("scores every sample independently with decreasing confidence", func() {
			filled, err := predictor.FillGap(50, 54, 300.0)
			Expect(err).NotTo(HaveOccurred())

			for i := 1; i < len(filled); i++ {
				Expect(filled[i].Confidence).To(BeNumerically("<", filled[i-1].Confidence),
					"confidence must strictly decrease along the gap")
			}
			Expect(filled[0].Confidence).To(BeNumerically(">", 0))
			Expect(filled[0].Confidence).To(BeNumerically("<", 1))
		})

		It("handles a single-sample gap", func() {
			filled, err := predictor.FillGap(7, 7, 300.0)
			Expect(err).NotTo(HaveOccurred())
			Expect(filled).To(HaveLen(1))
			Expect(filled[0].Index).To(Equal(7))
		})

		It("rejects malformed ranges", func() {
			_, err := predictor.FillGap(10, 5, 300.0)
			Expect(errors.Is(err, ErrInvalidGapRange)).To(BeTrue())

			_, err = predictor.FillGap(-1, 5, 300.0)
			Expect(errors.Is(err, ErrInvalidGapRange)).To(BeTrue())
		})

		It("keeps growing uncertainty across consecutive fills", func() {
			first, err := predictor.FillGap(0, 4, 300.0)
			Expect(err).NotTo(HaveOccurred())
			second, err := predictor.FillGap(5, 9, 300.0)
			Expect(err).NotTo(HaveOccurred())

			// Same elapsed positions, but the embedded filter has been
			// predicting without correction the whole time.
			Expect(second[0].Confidence).To(BeNumerically("<", first[0].Confidence))
		})
	})

	Describe("Confidence", func() {
		It("is strictly decreasing in gap length", func() {
			Expect(predictor.Confidence(2)).To(BeNumerically(">", predictor.Confidence(10)))
			Expect(predictor.Confidence(10)).To(BeNumerically(">", predictor.Confidence(50)))
		})
	})

	Describe("Reset", func() {
		It("restores the initial filter and flags", func() {
			predictor.MarkValid(10)
			Expect(predictor.CheckDropout(100)).To(BeTrue())
			_, err := predictor.FillGap(10, 20, 300.0)
			Expect(err).NotTo(HaveOccurred())
			before := predictor.Confidence(1)

			predictor.Reset()

			Expect(predictor.InDropout()).To(BeFalse())
			Expect(predictor.Confidence(1)).To(BeNumerically(">", before))
		})
	})
})
