package messages

import "fmt"

// AlertKind distinguishes the two hysteresis edges
type AlertKind string

const (
	AlertKindAlert    AlertKind = "ALERT"
	AlertKindRecovery AlertKind = "RECOVERY"
)

// AlertEvent is published on City/alerts/<location>/<type> when a sensor
// crosses its type threshold in either direction
type AlertEvent struct {
	Envelope Envelope `json:"envelope"`

	SensorID  int       `json:"sensor_id"`
	Type      string    `json:"type"`
	Location  string    `json:"location"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Threshold float64   `json:"threshold"`
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
}

// Topic returns the alert topic for this event
func (a *AlertEvent) Topic() string {
	return AlertTopic(a.Location, a.Type)
}

// NewAlertEvent builds an event for a reading and fills in the readable message
func NewAlertEvent(source string, kind AlertKind, location string, r Reading, threshold float64) *AlertEvent {
	ev := &AlertEvent{
		Envelope:  NewEnvelope(source, "analyzer"),
		SensorID:  r.SensorID,
		Type:      r.Type,
		Location:  location,
		Value:     r.Value,
		Unit:      r.Unit,
		Threshold: threshold,
		Kind:      kind,
	}
	ev.Message = ev.describe()
	return ev
}

func (a *AlertEvent) describe() string {
	switch a.Kind {
	case AlertKindAlert:
		return fmt.Sprintf("ALERT: %s sensor %d at %s reads %.2f %s, above threshold %.2f",
			a.Type, a.SensorID, a.Location, a.Value, a.Unit, a.Threshold)
	default:
		return fmt.Sprintf("RECOVERY: %s sensor %d at %s back to %.2f %s, within threshold %.2f",
			a.Type, a.SensorID, a.Location, a.Value, a.Unit, a.Threshold)
	}
}
