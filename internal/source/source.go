// Package source feeds decoded measurements into an estimation
// session, either from the telemetry simulator or from a recorded
// NDJSON stream.
package source

import (
	"context"
	"time"

	"github.com/rudywasfound/pravaha/internal/sim"
	"github.com/rudywasfound/pravaha/pkg/telemetry"
)

// MeasurementSource produces one measurement per call. Implementations
// return io.EOF when the stream is exhausted and the context error when
// the caller cancels.
type MeasurementSource interface {
	Next(ctx context.Context) (*telemetry.Measurement, error)
}

// Simulator adapts a sim.Simulator to the source interface, pacing
// emission by the configured interval. Samples inside dropout windows
// still consume a pacing tick, so gaps occupy real time the way a lost
// downlink would.
type Simulator struct {
	sim      *sim.Simulator
	interval time.Duration
}

// NewSimulator wraps a simulator. An interval of zero disables pacing,
// which tests rely on.
func NewSimulator(s *sim.Simulator, interval time.Duration) *Simulator {
	return &Simulator{sim: s, interval: interval}
}

// Next returns the next non-dropped sample.
func (s *Simulator) Next(ctx context.Context) (*telemetry.Measurement, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m, emitted := s.sim.Next()
		if s.interval > 0 {
			timer := time.NewTimer(s.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		if !emitted {
			continue
		}
		return m, nil
	}
}
