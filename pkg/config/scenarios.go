package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/mattpat48/se4iot-se4as/pkg/messages"
)

// EmergencyTimestampLayout is the layout used by emergency control messages
const EmergencyTimestampLayout = "2006-01-02 15:04:05"

// Emergency severities, from least to most severe
const (
	SeverityWarning      = "warning"
	SeverityCritical     = "critical"
	SeverityCatastrophic = "catastrophic"
)

// Severities lists the accepted severities in increasing order
var Severities = []string{SeverityWarning, SeverityCritical, SeverityCatastrophic}

// Scenario is a predefined emergency with the values it forces on sensor types
type Scenario struct {
	Name        string             `json:"name"`
	Type        string             `json:"type"`
	Description string             `json:"description"`
	Effects     map[string]float64 `json:"effects"`
}

// Scenarios is the catalogue of emergencies that can be triggered, keyed by type
var Scenarios = map[string]Scenario{
	"fire": {
		Name:        "Fire",
		Type:        "fire",
		Description: "Extreme temperature and CO2, loud noise",
		Effects:     map[string]float64{"temperature": 75.0, "co2": 2500.0, "noise_level": 95.0},
	},
	"flood": {
		Name:        "Flood",
		Type:        "flood",
		Description: "Extreme rain, 99% humidity, traffic halted",
		Effects:     map[string]float64{"rain_level": 180.0, "humidity": 99.0, "traffic_speed": 0.0, "noise_level": 90.0},
	},
	"earthquake": {
		Name:        "Earthquake",
		Type:        "earthquake",
		Description: "Intense seismic activity, noise, traffic halted",
		Effects:     map[string]float64{"seismic": 7.5, "noise_level": 110.0, "traffic_speed": 0.0, "co2": 1800.0},
	},
	"gas_leak": {
		Name:        "Gas leak",
		Type:        "gas_leak",
		Description: "Extreme CO2 concentration",
		Effects:     map[string]float64{"co2": 3000.0, "noise_level": 70.0},
	},
	"traffic_accident": {
		Name:        "Traffic accident",
		Type:        "traffic_accident",
		Description: "Traffic blocked and loud noise",
		Effects:     map[string]float64{"traffic_speed": 0.0, "noise_level": 95.0},
	},
}

// ScenarioNames returns the scenario types in sorted order
func ScenarioNames() []string {
	names := make([]string, 0, len(Scenarios))
	for name := range Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidSeverity reports whether s is an accepted severity
func ValidSeverity(s string) bool {
	for _, v := range Severities {
		if v == s {
			return true
		}
	}
	return false
}

// StartPayload builds the City/emergency message that activates the scenario
func (s Scenario) StartPayload(location, severity string, now time.Time) (*messages.EmergencyUpdate, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: emergency location", messages.ErrMissingField)
	}
	if severity == "" {
		severity = SeverityCritical
	}
	if !ValidSeverity(severity) {
		return nil, fmt.Errorf("%w: severity %q", messages.ErrInvalidValue, severity)
	}

	active := true
	effects := make(map[string]float64, len(s.Effects))
	for k, v := range s.Effects {
		effects[k] = v
	}
	return &messages.EmergencyUpdate{
		Type:      s.Type,
		Location:  location,
		Severity:  severity,
		Timestamp: now.Format(EmergencyTimestampLayout),
		Active:    &active,
		Effects:   effects,
	}, nil
}

// StopPayload builds the City/emergency message that clears any emergency
func StopPayload(now time.Time) *messages.EmergencyUpdate {
	active := false
	return &messages.EmergencyUpdate{
		Type:      "none",
		Location:  "",
		Severity:  "none",
		Timestamp: now.Format(EmergencyTimestampLayout),
		Active:    &active,
		Effects:   map[string]float64{},
	}
}
