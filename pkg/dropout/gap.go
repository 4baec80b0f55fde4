package dropout

import (
	"errors"
	"fmt"
	"math"

	"github.com/rudywasfound/pravaha/pkg/kalman"
)

// ErrInvalidGapRange is returned by FillGap for a malformed index range.
var ErrInvalidGapRange = errors.New("invalid gap range")

// PredictedState is one forward-predicted sample emitted while filling
// a gap.
type PredictedState struct {
	Index      int     // sample index the prediction stands in for
	Charge     float64 // battery charge (%)
	Voltage    float64 // battery voltage (V)
	Solar      float64 // solar input (W)
	Efficiency float64 // coulombic efficiency
	Confidence float64 // independently scored by elapsed gap length
}

// GapPredictor is the index-based dropout path: it tracks sample-count
// gaps and fills them with one prediction per missing index. Like the
// Detector it exclusively owns its embedded filter.
type GapPredictor struct {
	filter *kalman.Filter

	thresholdSamples int
	lastValid        int
	inDropout        bool
	dropoutStart     int
}

// NewGapPredictor builds an index-based gap predictor. thresholdSamples
// is the sample gap beyond which a dropout begins; filterCfg nil means
// the canonical power-subsystem filter.
func NewGapPredictor(thresholdSamples int, filterCfg *kalman.Config) (*GapPredictor, error) {
	if thresholdSamples <= 0 {
		return nil, fmt.Errorf("dropout threshold must be positive, got %d", thresholdSamples)
	}

	fcfg := kalman.PowerSystemConfig(kalman.DefaultPowerParams())
	if filterCfg != nil {
		fcfg = *filterCfg
	}
	filter, err := kalman.New(fcfg)
	if err != nil {
		return nil, err
	}

	return &GapPredictor{filter: filter, thresholdSamples: thresholdSamples}, nil
}

// CheckDropout reports whether the gap between sample and the last
// valid index exceeds the threshold, entering the dropout state when it
// does. The dropout state persists until MarkValid.
func (p *GapPredictor) CheckDropout(sample int) bool {
	gap := sample - p.lastValid
	if gap < 0 {
		gap = 0
	}
	if gap > p.thresholdSamples {
		p.inDropout = true
		p.dropoutStart = p.lastValid
		return true
	}
	return false
}

// MarkValid records a sample index at which telemetry was received,
// clearing any dropout.
func (p *GapPredictor) MarkValid(sample int) {
	p.lastValid = sample
	p.inDropout = false
}

// InDropout reports the dropout flag.
func (p *GapPredictor) InDropout() bool {
	return p.inDropout
}

// DropoutStart returns the last valid index before the current dropout.
func (p *GapPredictor) DropoutStart() int {
	return p.dropoutStart
}

// FillGap produces one forward prediction per missing index in the
// closed range [start, end]. Every intermediate sample is reported and
// independently confidence-scored by its elapsed gap length; no
// measurement updates happen along the way. A filter failure aborts
// the fill and is returned as-is, never retried here.
func (p *GapPredictor) FillGap(start, end int, loadPower float64) ([]PredictedState, error) {
	if start < 0 || start > end {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidGapRange, start, end)
	}

	filled := make([]PredictedState, 0, end-start+1)
	for idx := start; idx <= end; idx++ {
		est, err := p.filter.Predict(loadPower)
		if err != nil {
			return nil, err
		}
		elapsed := idx - start + 1
		filled = append(filled, PredictedState{
			Index:      idx,
			Charge:     est.State[kalman.StateCharge],
			Voltage:    est.State[kalman.StateVoltage],
			Solar:      est.State[kalman.StateSolar],
			Efficiency: est.State[kalman.StateEfficiency],
			Confidence: p.Confidence(elapsed),
		})
	}
	return filled, nil
}

// Confidence scores a gap of the given sample count: an exponential
// decay in gap length scaled by the current covariance growth. The
// result is strictly decreasing in gapSamples.
func (p *GapPredictor) Confidence(gapSamples int) float64 {
	decay := math.Exp(-0.1 * float64(gapSamples))
	covarianceFactor := 1.0 / (1.0 + p.filter.Trace()/100.0)
	return decay * covarianceFactor
}

// Reset clears the dropout flags and restores the embedded filter.
func (p *GapPredictor) Reset() {
	p.lastValid = 0
	p.inDropout = false
	p.dropoutStart = 0
	p.filter.Reset()
}
