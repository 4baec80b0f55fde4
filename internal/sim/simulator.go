package sim

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rudywasfound/pravaha/pkg/telemetry"
)

// Window marks an inclusive range of sample indices lost to a
// communication dropout.
type Window struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

func (w Window) contains(step int) bool {
	return step >= w.Start && step <= w.End
}

// Config assembles a simulator.
type Config struct {
	Scenario Scenario      // built-in fault model, ignored when Params is set
	Params   *Params       // custom fault model
	Seed     int64         // RNG seed; runs with equal seeds are identical
	Start    time.Time     // timestamp of sample zero, zero value means now
	Interval time.Duration // sample spacing, zero means one second
	Dropouts []Window      // samples withheld from the consumer
}

// Simulator produces one measurement per sample index. State advances
// deterministically from the seed, so dropped samples still consume
// randomness and a run replays identically regardless of windows.
type Simulator struct {
	cfg    Config
	params Params
	rng    *rand.Rand
	step   int
}

// New validates the scenario selection and seeds the generator.
func New(cfg Config) (*Simulator, error) {
	params := Params{Name: string(ScenarioNominal)}
	switch {
	case cfg.Params != nil:
		params = *cfg.Params
	case cfg.Scenario != "":
		s, err := ParseScenario(string(cfg.Scenario))
		if err != nil {
			return nil, err
		}
		params = builtinParams(s)
	}
	for _, w := range cfg.Dropouts {
		if w.Start < 0 || w.End < w.Start {
			return nil, fmt.Errorf("malformed dropout window [%d, %d]", w.Start, w.End)
		}
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().UTC()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Simulator{
		cfg:    cfg,
		params: params,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Scenario reports the active fault model name.
func (s *Simulator) Scenario() string { return s.params.Name }

// Step reports the next sample index to be generated.
func (s *Simulator) Step() int { return s.step }

// Next generates the next sample. The second return value is false
// when the sample falls inside a dropout window and must not reach the
// consumer.
func (s *Simulator) Next() (*telemetry.Measurement, bool) {
	step := s.step
	s.step++

	ts := s.cfg.Start.Add(time.Duration(step) * s.cfg.Interval)
	elapsed := float64(step) * s.cfg.Interval.Seconds()
	m := s.generate(ts, elapsed)

	for _, w := range s.cfg.Dropouts {
		if w.contains(step) {
			return m, false
		}
	}
	return m, true
}

// generate draws the nominal channel bands, applies the active fault
// model at the given elapsed time, clamps to physical limits and adds
// sensor noise last, so only noise can breach the validator ranges.
func (s *Simulator) generate(ts time.Time, elapsed float64) *telemetry.Measurement {
	p := s.params

	batteryVoltage := s.uniform(28.0, 32.0)
	batteryCharge := s.uniform(90.0, 100.0)
	batteryTemp := s.uniform(25.0, 45.0)
	busVoltage := s.uniform(27.0, 31.0)
	busCurrent := s.uniform(5.0, 30.0)
	solarInput := s.uniform(350.0, 450.0)
	panelTemp := s.uniform(30.0, 60.0)
	payloadTemp := s.uniform(20.0, 50.0)

	if p.SolarLossPerHour != 0 {
		factor := 1.0 - elapsed*p.SolarLossPerHour/3600.0
		solarInput *= factor
		batteryCharge -= (1.0 - factor) * p.SolarChargeImpact
		if batteryCharge < p.SolarChargeFloor {
			batteryCharge = p.SolarChargeFloor
		}
		busVoltage -= (1.0 - factor) * p.SolarBusSag
		batteryTemp += (1.0 - factor) * p.SolarTempRise
	}
	if p.CapacityLossPerHour != 0 {
		factor := 1.0 - elapsed*p.CapacityLossPerHour/3600.0
		batteryCharge *= factor
		batteryVoltage -= (1.0 - factor) * p.AgingVoltageSag
	}
	if p.ThermalRampPerSecond != 0 {
		batteryTemp += elapsed * p.ThermalRampPerSecond
		batteryCharge -= (batteryTemp - 40.0) * p.ThermalChargeLoss
		busVoltage -= (batteryTemp - 40.0) * p.ThermalBusSag
	}
	if p.BiasDriftPerHour != 0 {
		factor := 1.0 + elapsed*p.BiasDriftPerHour/3600.0
		batteryCharge *= factor
		batteryVoltage *= 1.0 + factor*0.01
	}
	batteryTemp += p.TempOffset

	m := telemetry.NewMeasurement(ts)
	m.BatteryVoltage = clampTo(batteryVoltage, 20.0, 35.0) + s.gauss(0.1)
	m.BatteryCharge = clampTo(batteryCharge, 40.0, 105.0) + s.gauss(0.5)
	m.BatteryTemp = clampTo(batteryTemp, 0.0, 80.0) + s.gauss(0.5)
	m.BusVoltage = clampTo(busVoltage, 25.0, 32.0) + s.gauss(0.1)
	m.BusCurrent = clampTo(busCurrent, 0.0, 50.0) + s.gauss(0.3)
	m.SolarInput = clampTo(solarInput, 0.0, 500.0) + s.gauss(5.0)
	m.SolarPanelTemp = clampTo(panelTemp, 20.0, 100.0) + s.gauss(1.0)
	m.PayloadTemp = clampTo(payloadTemp, 0.0, 80.0) + s.gauss(0.8)
	return m
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func (s *Simulator) gauss(sigma float64) float64 {
	return s.rng.NormFloat64() * sigma
}

func clampTo(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
