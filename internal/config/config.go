// Package config resolves the estimator daemon's configuration with
// precedence flags > environment > config file > defaults.
package config

import (
	"fmt"
	"time"

	"github.com/rudywasfound/pravaha/pkg/dropout"
	"github.com/rudywasfound/pravaha/pkg/kalman"
)

const (
	// envPrefix namespaces environment overrides, e.g. PRAVAHA_HTTP_ADDR.
	envPrefix = "PRAVAHA"

	DefaultHTTPAddr       = ":8080"
	DefaultSourceKind     = SourceSimulator
	DefaultScenario       = "nominal"
	DefaultSampleInterval = time.Second
	DefaultSeed           = int64(42)
	DefaultStreamBuffer   = 16
)

// Recognized measurement source kinds.
const (
	SourceSimulator = "simulator"
	SourceReplay    = "replay"
)

// Config is the resolved daemon configuration. All fields are immutable
// after Load returns.
type Config struct {
	HTTP      HTTPConfig
	Logging   LoggingConfig
	Source    SourceConfig
	Estimator EstimatorConfig
	Stream    StreamConfig
}

// HTTPConfig holds the bind address shared by the metrics, health and
// live-stream endpoints.
type HTTPConfig struct {
	Addr string
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level       string // debug, info, warn, error
	Development bool   // console encoding instead of JSON
}

// SourceConfig selects where measurements come from.
type SourceConfig struct {
	Kind           string        // simulator or replay
	Scenario       string        // simulator fault scenario
	ScenarioFile   string        // optional YAML scenario definition
	ReplayPath     string        // NDJSON file for the replay source
	SampleInterval time.Duration // spacing between emitted samples
	Seed           int64         // simulator noise seed
}

// EstimatorConfig tunes the validation, filtering and dropout stages.
type EstimatorConfig struct {
	DropoutThreshold    time.Duration // gap that triggers dropout handling
	ConfidenceDecay     float64       // per-decay-interval confidence factor
	DivergenceThreshold float64       // covariance trace ceiling
	NISWarnThreshold    float64       // innovation consistency warn level
	LoadPower           float64       // assumed payload draw in watts
	BatteryCapacityWh   float64       // battery capacity in watt hours
	BatteryCapacityAh   float64       // battery capacity in amp hours
	NominalVoltage      float64       // bus nominal voltage
}

// StreamConfig tunes the websocket estimate broadcaster.
type StreamConfig struct {
	Buffer int // per-client outbound queue length
}

// PowerParams maps the estimator tuning onto filter construction
// parameters.
func (c *Config) PowerParams() kalman.PowerParams {
	return kalman.PowerParams{
		NominalVoltage: c.Estimator.NominalVoltage,
		CapacityWh:     c.Estimator.BatteryCapacityWh,
		CapacityAh:     c.Estimator.BatteryCapacityAh,
		Dt:             c.Source.SampleInterval.Seconds(),
	}
}

// DetectorConfig assembles the dropout detector from the resolved
// tuning values.
func (c *Config) DetectorConfig() dropout.Config {
	filterCfg := kalman.PowerSystemConfig(c.PowerParams())
	filterCfg.DivergenceThreshold = c.Estimator.DivergenceThreshold
	return dropout.Config{
		GapThreshold:      c.Estimator.DropoutThreshold,
		DecayFactor:       c.Estimator.ConfidenceDecay,
		LoadPower:         c.Estimator.LoadPower,
		BatteryCapacityAh: c.Estimator.BatteryCapacityAh,
		Filter:            &filterCfg,
	}
}

// String renders a single-line summary suitable for startup logging.
func (c *Config) String() string {
	return fmt.Sprintf("http=%s source=%s scenario=%s interval=%s dropout_threshold=%s divergence=%.0f",
		c.HTTP.Addr, c.Source.Kind, c.Source.Scenario, c.Source.SampleInterval,
		c.Estimator.DropoutThreshold, c.Estimator.DivergenceThreshold)
}
