package messages

import (
	"encoding/json"
	"fmt"
	"math"
)

// SensorParam describes one sensor type of the fleet
type SensorParam struct {
	Type       string  `json:"type"`
	Unit       string  `json:"unit"`
	MinV       float64 `json:"min_v"`
	MaxV       float64 `json:"max_v"`
	Volatility float64 `json:"volatility"`
}

// UnmarshalJSON requires every key of a sensor type to be present
func (p *SensorParam) UnmarshalJSON(data []byte) error {
	var aux struct {
		Type       *string  `json:"type"`
		Unit       *string  `json:"unit"`
		MinV       *float64 `json:"min_v"`
		MaxV       *float64 `json:"max_v"`
		Volatility *float64 `json:"volatility"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch {
	case aux.Type == nil:
		return fmt.Errorf("%w: sensor_params.type", ErrMissingField)
	case aux.Unit == nil:
		return fmt.Errorf("%w: sensor_params.unit", ErrMissingField)
	case aux.MinV == nil:
		return fmt.Errorf("%w: sensor_params.min_v", ErrMissingField)
	case aux.MaxV == nil:
		return fmt.Errorf("%w: sensor_params.max_v", ErrMissingField)
	case aux.Volatility == nil:
		return fmt.Errorf("%w: sensor_params.volatility", ErrMissingField)
	}

	*p = SensorParam{
		Type:       *aux.Type,
		Unit:       *aux.Unit,
		MinV:       *aux.MinV,
		MaxV:       *aux.MaxV,
		Volatility: *aux.Volatility,
	}
	return nil
}

// Validate checks the numeric bounds of a sensor type
func (p SensorParam) Validate() error {
	if p.Type == "" {
		return fmt.Errorf("%w: sensor type name is empty", ErrInvalidValue)
	}
	if !finite(p.MinV) || !finite(p.MaxV) || !finite(p.Volatility) {
		return fmt.Errorf("%w: %s has non-finite bounds", ErrInvalidValue, p.Type)
	}
	if p.MaxV < p.MinV {
		return fmt.Errorf("%w: %s max_v %.2f below min_v %.2f", ErrInvalidValue, p.Type, p.MaxV, p.MinV)
	}
	if p.Volatility < 0 {
		return fmt.Errorf("%w: %s volatility is negative", ErrInvalidValue, p.Type)
	}
	return nil
}

// LocationsUpdate is the City/update/locations payload
type LocationsUpdate struct {
	Locations      []string               `json:"locations"`
	LocationCoords map[string]Coordinates `json:"location_coords,omitempty"`
}

// Validate checks the locations payload
func (u *LocationsUpdate) Validate() error {
	if u.Locations == nil {
		return fmt.Errorf("%w: locations", ErrMissingField)
	}
	seen := make(map[string]bool, len(u.Locations))
	for _, loc := range u.Locations {
		if loc == "" {
			return fmt.Errorf("%w: empty location name", ErrInvalidValue)
		}
		if seen[loc] {
			return fmt.Errorf("%w: duplicate location %q", ErrInvalidValue, loc)
		}
		seen[loc] = true
	}
	return nil
}

// MaxSensorsPerType bounds the density accepted on City/update/config
const MaxSensorsPerType = 1000

// SensorConfigUpdate is the City/update/config payload
type SensorConfigUpdate struct {
	SensorParams   []SensorParam `json:"sensor_params,omitempty"`
	SensorsPerType *int          `json:"sensors_per_type,omitempty"`
}

// Validate checks the sensor configuration payload
func (u *SensorConfigUpdate) Validate() error {
	if u.SensorParams == nil && u.SensorsPerType == nil {
		return fmt.Errorf("%w: sensor_params or sensors_per_type", ErrMissingField)
	}
	if u.SensorsPerType != nil && *u.SensorsPerType < 0 {
		return fmt.Errorf("%w: sensors_per_type must not be negative", ErrInvalidValue)
	}
	if u.SensorsPerType != nil && *u.SensorsPerType > MaxSensorsPerType {
		return fmt.Errorf("%w: sensors_per_type %d above %d", ErrInvalidValue, *u.SensorsPerType, MaxSensorsPerType)
	}
	seen := make(map[string]bool, len(u.SensorParams))
	for _, p := range u.SensorParams {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Type] {
			return fmt.Errorf("%w: duplicate sensor type %q", ErrInvalidValue, p.Type)
		}
		seen[p.Type] = true
	}
	return nil
}

// EmergencyUpdate is the City/emergency payload
type EmergencyUpdate struct {
	Type      string             `json:"type"`
	Location  string             `json:"location"`
	Severity  string             `json:"severity"`
	Timestamp string             `json:"timestamp"`
	Active    *bool              `json:"active"`
	Effects   map[string]float64 `json:"effects"`
}

// IsActive reports whether the payload starts an emergency
func (u *EmergencyUpdate) IsActive() bool {
	return u.Active != nil && *u.Active
}

// Validate checks the emergency payload
func (u *EmergencyUpdate) Validate() error {
	if u.Active == nil {
		return fmt.Errorf("%w: active", ErrMissingField)
	}
	if !*u.Active {
		return nil
	}
	if u.Location == "" {
		return fmt.Errorf("%w: location", ErrMissingField)
	}
	if u.Effects == nil {
		return fmt.Errorf("%w: effects", ErrMissingField)
	}
	for t, v := range u.Effects {
		if !finite(v) {
			return fmt.Errorf("%w: effect for %s is not finite", ErrInvalidValue, t)
		}
	}
	return nil
}

// ThresholdsUpdate is the City/update/thresholds payload
type ThresholdsUpdate struct {
	Thresholds map[string]float64 `json:"thresholds"`
}

// Validate checks the thresholds payload
func (u *ThresholdsUpdate) Validate() error {
	if u.Thresholds == nil {
		return fmt.Errorf("%w: thresholds", ErrMissingField)
	}
	for t, v := range u.Thresholds {
		if !finite(v) {
			return fmt.Errorf("%w: threshold for %s is not finite", ErrInvalidValue, t)
		}
	}
	return nil
}

// validator is implemented by every control payload
type validator interface {
	Validate() error
}

func decodeControl(data []byte, v validator, name string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedPayload, name, err)
	}
	return v.Validate()
}

// DecodeLocations parses and validates a City/update/locations payload
func DecodeLocations(data []byte) (*LocationsUpdate, error) {
	var u LocationsUpdate
	if err := decodeControl(data, &u, "locations"); err != nil {
		return nil, err
	}
	return &u, nil
}

// DecodeSensorConfig parses and validates a City/update/config payload
func DecodeSensorConfig(data []byte) (*SensorConfigUpdate, error) {
	var u SensorConfigUpdate
	if err := decodeControl(data, &u, "config"); err != nil {
		return nil, err
	}
	return &u, nil
}

// DecodeEmergency parses and validates a City/emergency payload
func DecodeEmergency(data []byte) (*EmergencyUpdate, error) {
	var u EmergencyUpdate
	if err := decodeControl(data, &u, "emergency"); err != nil {
		return nil, err
	}
	return &u, nil
}

// DecodeThresholds parses and validates a City/update/thresholds payload
func DecodeThresholds(data []byte) (*ThresholdsUpdate, error) {
	var u ThresholdsUpdate
	if err := decodeControl(data, &u, "thresholds"); err != nil {
		return nil, err
	}
	return &u, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
