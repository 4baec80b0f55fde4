// Package session wires the validation, dropout detection and
// hidden-state inference stages into one logical estimation session.
//
// A session is single-threaded by contract: all mutable state belongs
// to the goroutine driving Ingest, and nothing here locks. Concurrent
// pipelines each own an independent Session.
package session

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rudywasfound/pravaha/internal/metrics"
	"github.com/rudywasfound/pravaha/pkg/causal"
	"github.com/rudywasfound/pravaha/pkg/dropout"
	"github.com/rudywasfound/pravaha/pkg/kalman"
	"github.com/rudywasfound/pravaha/pkg/telemetry"
)

// Publisher receives every estimate the session produces. stream.Hub
// implements it; tests substitute a capture double.
type Publisher interface {
	Publish(est *telemetry.StateEstimate)
}

// Config holds the session parameters. Zero values select the
// canonical power-subsystem defaults throughout.
type Config struct {
	// Detector configures the dropout detector and its embedded filter.
	Detector dropout.Config

	// Causal configures the hidden-state engine. A nil Causal.Filter
	// falls back to Detector.Filter so both stages share one physical
	// model.
	Causal causal.Config

	// Validator overrides the frame acceptance ranges.
	Validator *telemetry.ValidatorConfig

	// NISWarn is the normalized innovation squared bound above which an
	// update is logged as suspect. Defaults to kalman.DefaultMaxNIS,
	// the chi-squared 95th percentile for a 4-channel observation.
	NISWarn float64
}

// Session drives one estimation pipeline instance.
type Session struct {
	logger    *zap.Logger
	metrics   *metrics.Metrics
	publisher Publisher

	validator *telemetry.Validator
	detector  *dropout.Detector
	engine    *causal.Engine

	nisWarn   float64
	loadPower float64
}

// New builds a session. logger, mtr and pub may each be nil, which
// disables the corresponding output.
func New(cfg Config, logger *zap.Logger, mtr *metrics.Metrics, pub Publisher) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NISWarn == 0 {
		cfg.NISWarn = kalman.DefaultMaxNIS
	}
	if cfg.Causal.Filter == nil {
		cfg.Causal.Filter = cfg.Detector.Filter
	}

	validator := telemetry.NewDefaultValidator()
	if cfg.Validator != nil {
		validator = telemetry.NewValidator(*cfg.Validator)
	}

	detector, err := dropout.New(cfg.Detector)
	if err != nil {
		return nil, err
	}
	engine, err := causal.New(cfg.Causal)
	if err != nil {
		return nil, err
	}

	loadPower := cfg.Detector.LoadPower
	if loadPower == 0 {
		loadPower = dropout.DefaultLoadPower
	}

	return &Session{
		logger:    logger.Named("session"),
		metrics:   mtr,
		publisher: pub,
		validator: validator,
		detector:  detector,
		engine:    engine,
		nisWarn:   cfg.NISWarn,
		loadPower: loadPower,
	}, nil
}

// Ingest runs one frame through validation and the dropout detector,
// then publishes the resulting estimate to metrics and the stream.
//
// A frame that fails validation is rejected before it can touch the
// filter; the returned error is the *telemetry.RangeError. A filter
// divergence is surfaced as the *kalman.DivergenceError and is never
// retried internally; the caller decides whether to Reset.
func (s *Session) Ingest(m *telemetry.Measurement) (*telemetry.StateEstimate, error) {
	if err := s.validator.Validate(m); err != nil {
		var rangeErr *telemetry.RangeError
		if errors.As(err, &rangeErr) && s.metrics != nil {
			s.metrics.RecordValidationFailure(rangeErr.Field)
		}
		s.logger.Warn("rejecting frame", zap.Time("frame", m.Timestamp), zap.Error(err))
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordMeasurement()
	}

	prev := s.detector.State()
	est, err := s.detector.Process(m)
	if err != nil {
		var div *kalman.DivergenceError
		if errors.As(err, &div) {
			if s.metrics != nil {
				s.metrics.RecordDivergence()
			}
			s.logger.Error("filter diverged", zap.Error(err))
		}
		return nil, err
	}

	state := s.detector.State()
	switch {
	case prev == dropout.StateNormal && state == dropout.StateDropout:
		if s.metrics != nil {
			s.metrics.RecordDropout()
		}
		s.logger.Warn("telemetry dropout, predicting through gap",
			zap.Time("frame", m.Timestamp),
			zap.Float64("confidence", est.Confidence))
	case prev == dropout.StateDropout && state == dropout.StateNormal:
		s.logger.Info("telemetry link recovered", zap.Time("frame", m.Timestamp))
	}
	if s.metrics != nil {
		s.metrics.SetInDropout(state == dropout.StateDropout)
	}

	// NIS is only meaningful for frames that performed a measurement
	// update; prediction-only frames keep the previous value.
	if state == dropout.StateNormal {
		nis := s.detector.LastNIS()
		if s.metrics != nil {
			s.metrics.RecordNIS(nis)
		}
		if nis > s.nisWarn {
			s.logger.Warn("innovation residual above bound",
				zap.Float64("nis", nis),
				zap.Float64("bound", s.nisWarn),
				zap.Time("frame", m.Timestamp))
		}
	}

	if s.metrics != nil {
		s.metrics.RecordEstimate(est)
	}
	if s.publisher != nil {
		s.publisher.Publish(est)
	}

	s.logger.Debug("frame processed",
		zap.Time("frame", m.Timestamp),
		zap.String("state", state.String()),
		zap.Float64("battery_charge", est.BatteryCharge),
		zap.Float64("confidence", est.Confidence))
	return est, nil
}

// Status reports the dropout detector position.
func (s *Session) Status() telemetry.DropoutStatus {
	return s.detector.Status()
}

// Estimate snapshots the current filter output without advancing it.
func (s *Session) Estimate() *telemetry.StateEstimate {
	return s.detector.Estimate(time.Now().UTC())
}

// AnalyzeIndices infers hidden states across the gaps in a sample
// index sequence, delegating to the causal engine. Inferred anomaly
// causes are logged as warnings.
func (s *Session) AnalyzeIndices(indices []int) (map[string]*causal.Node, error) {
	nodes, err := s.engine.AnalyzeWithDropoutHandling(indices, s.loadPower)
	if err != nil {
		return nil, err
	}
	for name, node := range nodes {
		if _, ok := node.Provenance.(causal.BackwardInferred); ok {
			s.logger.Warn("hidden-state anomaly inferred",
				zap.String("cause", name),
				zap.Float64("value", node.Value),
				zap.Float64("confidence", node.Confidence))
		}
	}
	s.logger.Info("gap analysis complete",
		zap.Int("gaps", len(causal.DetectGaps(indices))),
		zap.Int("nodes", len(nodes)))
	return nodes, nil
}

// Reset returns the session to its initial state after a divergence.
// Both the detector filter and the causal engine filter restart from
// their initial covariance.
func (s *Session) Reset() {
	s.detector.Reset()
	s.engine.Reset()
	s.logger.Info("session reset")
}
