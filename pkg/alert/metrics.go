package alert

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mattpat48/se4iot-se4as/pkg/messages"
)

// Metrics are the analyzer's domain collectors. A nil *Metrics records nothing.
type Metrics struct {
	readings        *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	controlApplied  *prometheus.CounterVec
	controlRejected *prometheus.CounterVec
}

// NewMetrics creates the analyzer collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		readings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_readings_total",
				Help: "Readings received, by outcome",
			},
			[]string{"status"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_alerts_total",
				Help: "Alert transitions emitted, by kind and sensor type",
			},
			[]string{"kind", "type"},
		),
		controlApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_control_applied_total",
				Help: "Control messages applied, by topic",
			},
			[]string{"topic"},
		),
		controlRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_control_rejected_total",
				Help: "Control messages rejected as malformed, by topic",
			},
			[]string{"topic"},
		),
	}
	reg.MustRegister(m.readings, m.alerts, m.controlApplied, m.controlRejected)
	return m
}

func (m *Metrics) reading(status string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(status).Inc()
}

func (m *Metrics) alert(kind messages.AlertKind, sensorType string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(string(kind), sensorType).Inc()
}

func (m *Metrics) applied(topic string) {
	if m == nil {
		return
	}
	m.controlApplied.WithLabelValues(topic).Inc()
}

func (m *Metrics) rejected(topic string) {
	if m == nil {
		return
	}
	m.controlRejected.WithLabelValues(topic).Inc()
}
