/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"fmt"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rudywasfound/pravaha/pkg/dropout"
	"github.com/rudywasfound/pravaha/pkg/kalman"
)

// flagBindings maps viper keys (= env var names without the prefix) to
// pflag names.
var flagBindings = map[string]string{
	"HTTP_ADDR":            "http-addr",
	"LOG_LEVEL":            "log-level",
	"LOG_DEVELOPMENT":      "log-development",
	"SOURCE":               "source",
	"SCENARIO":             "scenario",
	"SCENARIO_FILE":        "scenario-file",
	"REPLAY_PATH":          "replay-path",
	"SAMPLE_INTERVAL":      "sample-interval",
	"SEED":                 "seed",
	"DROPOUT_THRESHOLD":    "dropout-threshold",
	"CONFIDENCE_DECAY":     "confidence-decay",
	"DIVERGENCE_THRESHOLD": "divergence-threshold",
	"NIS_WARN_THRESHOLD":   "nis-warn-threshold",
	"LOAD_POWER":           "load-power",
	"BATTERY_CAPACITY_WH":  "battery-capacity-wh",
	"BATTERY_CAPACITY_AH":  "battery-capacity-ah",
	"NOMINAL_VOLTAGE":      "nominal-voltage",
	"STREAM_BUFFER":        "stream-buffer",
}

// RegisterFlags declares every tunable on the given flag set. The flag
// defaults intentionally match setDefaults so an unset flag never
// shadows a file or environment value.
func RegisterFlags(fs *flag.FlagSet) {
	fs.String("http-addr", DefaultHTTPAddr, "bind address for metrics, health and live endpoints")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.Bool("log-development", false, "human-readable console logging")
	fs.String("source", DefaultSourceKind, "measurement source: simulator or replay")
	fs.String("scenario", DefaultScenario, "simulator fault scenario")
	fs.String("scenario-file", "", "YAML file overriding the built-in scenario table")
	fs.String("replay-path", "", "NDJSON measurement file for the replay source")
	fs.Duration("sample-interval", DefaultSampleInterval, "spacing between samples")
	fs.Int64("seed", DefaultSeed, "simulator noise seed")
	fs.Duration("dropout-threshold", dropout.DefaultGapThreshold, "telemetry gap that enters dropout handling")
	fs.Float64("confidence-decay", dropout.DefaultDecayFactor, "confidence decay factor per decay interval")
	fs.Float64("divergence-threshold", kalman.DefaultDivergenceThreshold, "covariance trace ceiling before the filter is declared diverged")
	fs.Float64("nis-warn-threshold", kalman.DefaultMaxNIS, "normalized innovation squared level that logs a consistency warning")
	fs.Float64("load-power", dropout.DefaultLoadPower, "assumed payload draw in watts")
	fs.Float64("battery-capacity-wh", 100.0, "battery capacity in watt hours")
	fs.Float64("battery-capacity-ah", dropout.DefaultCapacityAh, "battery capacity in amp hours")
	fs.Float64("nominal-voltage", 28.0, "bus nominal voltage")
	fs.Int("stream-buffer", DefaultStreamBuffer, "per-client websocket queue length")
}

// Load resolves the configuration with precedence flags > env > file >
// defaults and validates it. Fail-fast: the daemon must not start on an
// invalid config. flagSet may be nil in tests that exercise no flags;
// path may be empty when no config file is used.
func Load(path string, flagSet *flag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if flagSet != nil {
		for viperKey, flagName := range flagBindings {
			if f := flagSet.Lookup(flagName); f != nil {
				_ = v.BindPFlag(viperKey, f)
			}
		}
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr: v.GetString("HTTP_ADDR"),
		},
		Logging: LoggingConfig{
			Level:       v.GetString("LOG_LEVEL"),
			Development: v.GetBool("LOG_DEVELOPMENT"),
		},
		Source: SourceConfig{
			Kind:           v.GetString("SOURCE"),
			Scenario:       v.GetString("SCENARIO"),
			ScenarioFile:   v.GetString("SCENARIO_FILE"),
			ReplayPath:     v.GetString("REPLAY_PATH"),
			SampleInterval: v.GetDuration("SAMPLE_INTERVAL"),
			Seed:           v.GetInt64("SEED"),
		},
		Estimator: EstimatorConfig{
			DropoutThreshold:    v.GetDuration("DROPOUT_THRESHOLD"),
			ConfidenceDecay:     v.GetFloat64("CONFIDENCE_DECAY"),
			DivergenceThreshold: v.GetFloat64("DIVERGENCE_THRESHOLD"),
			NISWarnThreshold:    v.GetFloat64("NIS_WARN_THRESHOLD"),
			LoadPower:           v.GetFloat64("LOAD_POWER"),
			BatteryCapacityWh:   v.GetFloat64("BATTERY_CAPACITY_WH"),
			BatteryCapacityAh:   v.GetFloat64("BATTERY_CAPACITY_AH"),
			NominalVoltage:      v.GetFloat64("NOMINAL_VOLTAGE"),
		},
		Stream: StreamConfig{
			Buffer: v.GetInt("STREAM_BUFFER"),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", DefaultHTTPAddr)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.SetDefault("SOURCE", DefaultSourceKind)
	v.SetDefault("SCENARIO", DefaultScenario)
	v.SetDefault("SCENARIO_FILE", "")
	v.SetDefault("REPLAY_PATH", "")
	v.SetDefault("SAMPLE_INTERVAL", DefaultSampleInterval)
	v.SetDefault("SEED", DefaultSeed)
	v.SetDefault("DROPOUT_THRESHOLD", dropout.DefaultGapThreshold)
	v.SetDefault("CONFIDENCE_DECAY", dropout.DefaultDecayFactor)
	v.SetDefault("DIVERGENCE_THRESHOLD", kalman.DefaultDivergenceThreshold)
	v.SetDefault("NIS_WARN_THRESHOLD", kalman.DefaultMaxNIS)
	v.SetDefault("LOAD_POWER", dropout.DefaultLoadPower)
	v.SetDefault("BATTERY_CAPACITY_WH", 100.0)
	v.SetDefault("BATTERY_CAPACITY_AH", dropout.DefaultCapacityAh)
	v.SetDefault("NOMINAL_VOLTAGE", 28.0)
	v.SetDefault("STREAM_BUFFER", DefaultStreamBuffer)
}
