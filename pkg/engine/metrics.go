package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the simulator's domain collectors. A nil *Metrics records nothing.
type Metrics struct {
	fleetSize       prometheus.Gauge
	regenerations   prometheus.Counter
	readings        *prometheus.CounterVec
	emergencyActive prometheus.Gauge
	controlApplied  *prometheus.CounterVec
	controlRejected *prometheus.CounterVec
}

// NewMetrics creates the simulator collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fleetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_fleet_size",
			Help: "Number of sensor instances in the live fleet",
		}),
		regenerations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_regenerations_total",
			Help: "Total fleet rebuilds",
		}),
		readings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simulator_readings_total",
				Help: "Readings produced, by publish status and sensor type",
			},
			[]string{"status", "type"},
		),
		emergencyActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_emergency_active",
			Help: "1 while an emergency scenario is active",
		}),
		controlApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simulator_control_applied_total",
				Help: "Control messages applied, by topic",
			},
			[]string{"topic"},
		),
		controlRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simulator_control_rejected_total",
				Help: "Control messages rejected as malformed, by topic",
			},
			[]string{"topic"},
		),
	}

	reg.MustRegister(
		m.fleetSize,
		m.regenerations,
		m.readings,
		m.emergencyActive,
		m.controlApplied,
		m.controlRejected,
	)
	return m
}

func (m *Metrics) rebuilt(size int) {
	if m == nil {
		return
	}
	m.regenerations.Inc()
	m.fleetSize.Set(float64(size))
}

func (m *Metrics) reading(status, sensorType string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(status, sensorType).Inc()
}

func (m *Metrics) emergency(active bool) {
	if m == nil {
		return
	}
	if active {
		m.emergencyActive.Set(1)
	} else {
		m.emergencyActive.Set(0)
	}
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
