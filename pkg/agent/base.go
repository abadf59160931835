package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mattpat48/se4iot-se4as/pkg/transport"
)

// BaseAgent provides common functionality for all agents
type BaseAgent struct {
	id        string
	agentType AgentType
	config    Config

	// Message bus
	bus transport.Bus

	// Logging
	logger zerolog.Logger

	// Metrics
	registry      *prometheus.Registry
	messagesTotal *prometheus.CounterVec
	latencyHist   *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec

	// State
	running bool
	mu      sync.RWMutex
	cancel  context.CancelFunc
}

// NewBaseAgent creates a new base agent with common setup
func NewBaseAgent(cfg Config) (*BaseAgent, error) {
	logger := NewLogger(cfg, os.Stdout)

	bus := cfg.Bus
	if bus == nil {
		var err error
		if bus, err = newBus(cfg, logger); err != nil {
			return nil, err
		}
	}

	// Create metrics registry
	registry := prometheus.NewRegistry()

	messagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_messages_total",
			Help: "Total messages processed by agent",
		},
		[]string{"status", "message_type"},
	)

	latencyHist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_processing_latency_seconds",
			Help:    "Message processing latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"message_type"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_errors_total",
			Help: "Total errors encountered by agent",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(messagesTotal, latencyHist, errorsTotal)

	agent := &BaseAgent{
		id:            cfg.ID,
		agentType:     cfg.Type,
		config:        cfg,
		bus:           bus,
		logger:        logger,
		registry:      registry,
		messagesTotal: messagesTotal,
		latencyHist:   latencyHist,
		errorsTotal:   errorsTotal,
	}

	return agent, nil
}

// NewLogger builds the agent logger: JSON lines when LogJSON is set, the
// console writer otherwise
func NewLogger(cfg Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	if !cfg.LogJSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().
		Timestamp().
		Str("agent_id", cfg.ID).
		Str("agent_type", string(cfg.Type)).
		Logger()
}

// newBus creates the transport named by cfg.Transport
func newBus(cfg Config, logger zerolog.Logger) (transport.Bus, error) {
	switch cfg.Transport {
	case "", TransportMQTT:
		mqttCfg := cfg.MQTT
		if mqttCfg.ClientID == "" {
			// Broker sessions are per client ID; replicas must not collide
			mqttCfg.ClientID = fmt.Sprintf("%s-%s", cfg.ID, uuid.New().String()[:8])
		}
		return transport.NewMQTTBus(mqttCfg, logger), nil
	case TransportNATS:
		return transport.NewNATSBus(cfg.NATSUrl, cfg.ID, logger), nil
	case TransportMemory:
		logger.Warn().Msg("In-memory transport reaches only this process, other agents will not see its messages")
		return transport.NewMemoryBus(), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// ID returns the agent ID
func (a *BaseAgent) ID() string {
	return a.id
}

// Type returns the agent type
func (a *BaseAgent) Type() AgentType {
	return a.agentType
}

// Config returns the agent configuration
func (a *BaseAgent) Config() Config {
	return a.config
}

// Logger returns the agent logger
func (a *BaseAgent) Logger() *zerolog.Logger {
	return &a.logger
}

// Bus returns the message bus
func (a *BaseAgent) Bus() transport.Bus {
	return a.bus
}

// Metrics returns the Prometheus registry
func (a *BaseAgent) Metrics() *prometheus.Registry {
	return a.registry
}

// RecordMessage records a processed message metric
func (a *BaseAgent) RecordMessage(status, msgType string) {
	a.messagesTotal.WithLabelValues(status, msgType).Inc()
}

// RecordLatency records processing latency
func (a *BaseAgent) RecordLatency(msgType string, duration time.Duration) {
	a.latencyHist.WithLabelValues(msgType).Observe(duration.Seconds())
}

// RecordError records an error metric
func (a *BaseAgent) RecordError(errorType string) {
	a.errorsTotal.WithLabelValues(errorType).Inc()
}

// Instrument wraps a bus handler with the message, latency and error metrics
func (a *BaseAgent) Instrument(msgType string, h func(transport.Message) error) transport.Handler {
	return func(msg transport.Message) {
		start := time.Now()
		err := h(msg)
		a.RecordLatency(msgType, time.Since(start))
		if err != nil {
			a.RecordMessage("error", msgType)
			a.RecordError(msgType + "_rejected")
			return
		}
		a.RecordMessage("success", msgType)
	}
}

// Health returns the health status
func (a *BaseAgent) Health() HealthStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.running {
		return HealthStatus{Healthy: false, Status: "stopped"}
	}

	if !a.bus.IsConnected() {
		return HealthStatus{Healthy: false, Status: "disconnected", Details: "message bus connection lost"}
	}

	return HealthStatus{Healthy: true, Status: "running"}
}

// Start connects to the message bus, retrying with a fixed delay until the
// bus is reachable or ctx is cancelled
func (a *BaseAgent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("agent already running")
	}
	a.running = true

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	if err := transport.ConnectWithRetry(ctx, a.bus, a.config.RetryDelay, a.logger); err != nil {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return err
	}

	a.logger.Info().Str("transport", a.config.Transport).Msg("Agent started")
	return nil
}

// Stop gracefully stops the agent
func (a *BaseAgent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	a.logger.Info().Msg("Stopping agent")

	if a.cancel != nil {
		a.cancel()
	}

	if err := a.bus.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close message bus")
	}

	a.running = false
	a.logger.Info().Msg("Agent stopped")
	return nil
}
