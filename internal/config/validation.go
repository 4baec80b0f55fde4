package config

import "fmt"

// Validate checks the resolved configuration for values the daemon
// cannot run with. Fail-fast: callers should treat any error as fatal
// at startup.
func Validate(cfg *Config) error {
	if cfg.HTTP.Addr == "" {
		return fmt.Errorf("http bind address is required")
	}

	switch cfg.Source.Kind {
	case SourceSimulator:
		if cfg.Source.Scenario == "" && cfg.Source.ScenarioFile == "" {
			return fmt.Errorf("simulator source requires a scenario or scenario file")
		}
	case SourceReplay:
		if cfg.Source.ReplayPath == "" {
			return fmt.Errorf("replay source requires a replay path")
		}
	default:
		return fmt.Errorf("unknown source kind %q, expected %s or %s",
			cfg.Source.Kind, SourceSimulator, SourceReplay)
	}

	if cfg.Source.SampleInterval <= 0 {
		return fmt.Errorf("sample interval must be positive, got %v", cfg.Source.SampleInterval)
	}
	if cfg.Estimator.DropoutThreshold <= 0 {
		return fmt.Errorf("dropout threshold must be positive, got %v", cfg.Estimator.DropoutThreshold)
	}
	if d := cfg.Estimator.ConfidenceDecay; d <= 0 || d > 1 {
		return fmt.Errorf("confidence decay must be in (0, 1], got %g", d)
	}
	if cfg.Estimator.DivergenceThreshold <= 0 {
		return fmt.Errorf("divergence threshold must be positive, got %g", cfg.Estimator.DivergenceThreshold)
	}
	if cfg.Estimator.NISWarnThreshold <= 0 {
		return fmt.Errorf("NIS warn threshold must be positive, got %g", cfg.Estimator.NISWarnThreshold)
	}
	if cfg.Estimator.LoadPower < 0 {
		return fmt.Errorf("load power must be non-negative, got %g", cfg.Estimator.LoadPower)
	}
	if cfg.Estimator.BatteryCapacityWh <= 0 {
		return fmt.Errorf("battery capacity must be positive, got %g Wh", cfg.Estimator.BatteryCapacityWh)
	}
	if cfg.Estimator.BatteryCapacityAh <= 0 {
		return fmt.Errorf("battery capacity must be positive, got %g Ah", cfg.Estimator.BatteryCapacityAh)
	}
	if cfg.Estimator.NominalVoltage <= 0 {
		return fmt.Errorf("nominal voltage must be positive, got %g", cfg.Estimator.NominalVoltage)
	}
	if cfg.Stream.Buffer <= 0 {
		return fmt.Errorf("stream buffer must be positive, got %d", cfg.Stream.Buffer)
	}
	return nil
}
