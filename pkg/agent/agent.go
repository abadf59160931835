// Package agent provides the base framework for the city agents
package agent

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mattpat48/se4iot-se4as/pkg/transport"
)

// AgentType identifies the type of agent
type AgentType string

const (
	AgentTypeSimulator AgentType = "simulator"
	AgentTypeAnalyzer  AgentType = "analyzer"
)

// Transport names accepted by TRANSPORT
const (
	TransportMQTT   = "mqtt"
	TransportNATS   = "nats"
	TransportMemory = "memory"
)

// HealthStatus represents agent health
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// Agent is the interface that all agents must implement
type Agent interface {
	// Identity
	ID() string
	Type() AgentType

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() HealthStatus

	// Metrics
	Metrics() *prometheus.Registry
}

// Config holds configuration for an agent
type Config struct {
	ID   string
	Type AgentType

	// Message bus
	Transport  string
	MQTT       transport.MQTTConfig
	NATSUrl    string
	RetryDelay time.Duration

	// Bus overrides Transport when set
	Bus transport.Bus

	// Logging
	LogLevel string
	LogJSON  bool
}
