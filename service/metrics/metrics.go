package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the converter.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Conversion Metrics
	conversionsTotal   *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec

	// Record Metrics
	recordsConvertedTotal *prometheus.CounterVec
	recordsDegradedTotal  *prometheus.CounterVec
	recordsRejectedTotal  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used. When the
// registry also implements prometheus.Gatherer it is used by WriteTextfile.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	gatherer, ok := registry.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}

	factory := promauto.With(registry)

	return &Metrics{
		gatherer: gatherer,

		conversionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txlist_conversions_total",
				Help: "Total number of transaction list conversions by policy and status",
			},
			[]string{"policy", "status"},
		),
		conversionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txlist_conversion_duration_seconds",
				Help:    "Duration of transaction list conversions in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"policy"},
		),

		recordsConvertedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txlist_records_converted_total",
				Help: "Total number of records converted to display transactions",
			},
			[]string{"direction"},
		),
		recordsDegradedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txlist_records_degraded_total",
				Help: "Total number of missing or malformed fields replaced by zero values",
			},
			[]string{"field"},
		),
		recordsRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txlist_records_rejected_total",
				Help: "Total number of records rejected by strict conversion",
			},
			[]string{"field"},
		),
	}
}

// Conversion metric helpers

// RecordConversion records a conversion run with duration.
func (m *Metrics) RecordConversion(policy string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.conversionDuration.WithLabelValues(policy).Observe(duration)
	m.conversionsTotal.WithLabelValues(policy, status).Inc()
}

// Record metric helpers

// RecordConverted records a record that made it into the output.
func (m *Metrics) RecordConverted(direction string) {
	m.recordsConvertedTotal.WithLabelValues(direction).Inc()
}

// RecordDegraded records a field that fell back to its zero value.
func (m *Metrics) RecordDegraded(field string) {
	m.recordsDegradedTotal.WithLabelValues(field).Inc()
}

// RecordRejected records a field that caused a strict rejection.
func (m *Metrics) RecordRejected(field string) {
	m.recordsRejectedTotal.WithLabelValues(field).Inc()
}

// WriteTextfile writes every gathered metric to path in the Prometheus
// text exposition format, for pickup by the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
