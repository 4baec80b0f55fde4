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

// Package metrics exposes the estimator's Prometheus instrumentation
// on a private registry, so tests never fight over global collector
// registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rudywasfound/pravaha/pkg/telemetry"
)

const namespace = "pravaha"

// Metrics bundles every collector the estimation pipeline emits.
type Metrics struct {
	registry *prometheus.Registry

	// ingestion counters
	MeasurementsTotal  prometheus.Counter
	ValidationFailures *prometheus.CounterVec
	DropoutsTotal      prometheus.Counter
	DivergencesTotal   prometheus.Counter

	// current estimate state
	Confidence      prometheus.Gauge
	CovarianceTrace prometheus.Gauge
	BatteryCharge   prometheus.Gauge
	InDropout       prometheus.Gauge

	// innovation consistency; buckets bracket the chi-squared 95th
	// percentile for a 4-channel observation (9.488)
	NIS prometheus.Histogram
}

// New builds the collector set on a fresh registry together with the
// standard Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		MeasurementsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_total",
			Help:      "Total measurements accepted into the pipeline.",
		}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Measurements rejected by range validation, by offending field.",
		}, []string{"field"}),
		DropoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropouts_total",
			Help:      "Telemetry dropout episodes entered.",
		}),
		DivergencesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_divergences_total",
			Help:      "Filter divergence errors surfaced to the caller.",
		}),
		Confidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "estimate_confidence",
			Help:      "Confidence of the latest state estimate.",
		}),
		CovarianceTrace: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "covariance_trace",
			Help:      "Trace of the filter covariance matrix.",
		}),
		BatteryCharge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_charge_percent",
			Help:      "Estimated battery state of charge.",
		}),
		InDropout: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_dropout",
			Help:      "1 while the detector is in a dropout episode, 0 otherwise.",
		}),
		NIS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "innovation_nis",
			Help:      "Normalized innovation squared per filter update.",
			Buckets:   []float64{0.5, 1, 2, 4, 6, 9.488, 15, 25, 50},
		}),
	}

	reg.MustRegister(
		m.MeasurementsTotal,
		m.ValidationFailures,
		m.DropoutsTotal,
		m.DivergencesTotal,
		m.Confidence,
		m.CovarianceTrace,
		m.BatteryCharge,
		m.InDropout,
		m.NIS,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordMeasurement counts one accepted measurement.
func (m *Metrics) RecordMeasurement() { m.MeasurementsTotal.Inc() }

// RecordValidationFailure counts one rejected measurement by field.
func (m *Metrics) RecordValidationFailure(field string) {
	m.ValidationFailures.WithLabelValues(field).Inc()
}

// RecordDropout counts one dropout episode entry.
func (m *Metrics) RecordDropout() { m.DropoutsTotal.Inc() }

// RecordDivergence counts one filter divergence.
func (m *Metrics) RecordDivergence() { m.DivergencesTotal.Inc() }

// RecordEstimate publishes the gauges derived from a state estimate.
func (m *Metrics) RecordEstimate(est *telemetry.StateEstimate) {
	m.Confidence.Set(est.Confidence)
	m.CovarianceTrace.Set(est.CovarianceTrace)
	m.BatteryCharge.Set(est.BatteryCharge)
}

// RecordNIS observes one normalized innovation squared value.
func (m *Metrics) RecordNIS(nis float64) { m.NIS.Observe(nis) }

// SetInDropout publishes the detector state as a 0/1 gauge.
func (m *Metrics) SetInDropout(in bool) {
	if in {
		m.InDropout.Set(1)
		return
	}
	m.InDropout.Set(0)
}
