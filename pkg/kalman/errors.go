package kalman

import "fmt"

// ConfigError reports inconsistent filter dimensions or parameters at
// construction time.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid filter configuration: %s", e.Reason)
}

// DivergenceError reports that the covariance trace exceeded the
// configured divergence threshold. The condition is fatal to the filter
// instance: every subsequent Predict or Update returns it until Reset
// is called.
type DivergenceError struct {
	Trace     float64
	Threshold float64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("filter diverged: covariance trace %.3f exceeds threshold %.3f", e.Trace, e.Threshold)
}

// SingularCovarianceError reports a non-invertible innovation covariance
// during an update. The update is abandoned, the filter itself survives
// and the call is never retried internally.
type SingularCovarianceError struct {
	cause error
}

func (e *SingularCovarianceError) Error() string {
	return fmt.Sprintf("innovation covariance is singular: %v", e.cause)
}

func (e *SingularCovarianceError) Unwrap() error {
	return e.cause
}
