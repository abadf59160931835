// Package messages defines the payloads exchanged over the city message bus
package messages

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Payload validation errors
var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingField     = errors.New("missing field")
	ErrInvalidValue     = errors.New("invalid value")
)

// Envelope carries metadata for events produced by the agents
type Envelope struct {
	// Identity
	MessageID     string `json:"message_id"`
	CorrelationID string `json:"correlation_id,omitempty"`

	// Routing
	Source     string `json:"source"`      // Agent ID that sent this message
	SourceType string `json:"source_type"` // simulator or analyzer

	// Timing
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope creates a new envelope with a generated message ID
func NewEnvelope(source, sourceType string) Envelope {
	return Envelope{
		MessageID:  uuid.New().String(),
		Source:     source,
		SourceType: sourceType,
		Timestamp:  time.Now().UTC(),
	}
}

// WithCorrelation sets the correlation ID
func (e Envelope) WithCorrelation(correlationID string) Envelope {
	e.CorrelationID = correlationID
	return e
}

// Coordinates is a WGS84 position of a location
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
