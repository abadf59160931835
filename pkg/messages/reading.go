package messages

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 layout used for reading timestamps
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Reading is a single telemetry sample published on City/data/<location>/<type>
type Reading struct {
	SensorID  int     `json:"sensor_id"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
	Type      string  `json:"type"`
	Unit      string  `json:"unit"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// FormatTimestamp renders t the way readings carry it
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// DecodeReading parses a telemetry payload
func DecodeReading(data []byte) (*Reading, error) {
	var aux struct {
		SensorID  *int     `json:"sensor_id"`
		Value     *float64 `json:"value"`
		Timestamp string   `json:"timestamp"`
		Type      string   `json:"type"`
		Unit      string   `json:"unit"`
		Lat       float64  `json:"lat"`
		Lon       float64  `json:"lon"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return nil, fmt.Errorf("%w: reading: %v", ErrMalformedPayload, err)
	}
	if aux.SensorID == nil {
		return nil, fmt.Errorf("%w: reading.sensor_id", ErrMissingField)
	}
	if aux.Value == nil {
		return nil, fmt.Errorf("%w: reading.value", ErrMissingField)
	}
	if aux.Type == "" {
		return nil, fmt.Errorf("%w: reading.type", ErrMissingField)
	}

	return &Reading{
		SensorID:  *aux.SensorID,
		Value:     *aux.Value,
		Timestamp: aux.Timestamp,
		Type:      aux.Type,
		Unit:      aux.Unit,
		Lat:       aux.Lat,
		Lon:       aux.Lon,
	}, nil
}
