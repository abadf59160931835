package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattpat48/se4iot-se4as/pkg/transport"
)

var _ Agent = (*BaseAgent)(nil)

func newMemoryAgent(t *testing.T) *BaseAgent {
	t.Helper()
	a, err := NewBaseAgent(Config{
		ID:        "simulator-test",
		Type:      AgentTypeSimulator,
		Transport: TransportMemory,
		LogLevel:  "disabled",
	})
	require.NoError(t, err)
	return a
}

// TestGetEnvHelpers tests typed environment lookups
func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CITY_STR", "value")
	t.Setenv("CITY_INT", "12")
	t.Setenv("CITY_BAD_INT", "twelve")
	t.Setenv("CITY_BOOL_YES", "yes")
	t.Setenv("CITY_BOOL_ZERO", "0")
	t.Setenv("CITY_BOOL_BAD", "maybe")
	t.Setenv("CITY_DUR", "250ms")
	t.Setenv("CITY_DUR_SECS", "3")
	t.Setenv("CITY_DUR_BAD", "-5s")

	assert.Equal(t, "value", GetEnv("CITY_STR", "default"))
	assert.Equal(t, "default", GetEnv("CITY_UNSET", "default"))

	assert.Equal(t, 12, GetEnvInt("CITY_INT", 1))
	assert.Equal(t, 1, GetEnvInt("CITY_BAD_INT", 1))
	assert.Equal(t, 1, GetEnvInt("CITY_UNSET", 1))

	assert.True(t, GetEnvBool("CITY_BOOL_YES", false))
	assert.False(t, GetEnvBool("CITY_BOOL_ZERO", true))
	assert.True(t, GetEnvBool("CITY_BOOL_BAD", true))
	assert.False(t, GetEnvBool("CITY_UNSET", false))

	assert.Equal(t, 250*time.Millisecond, GetEnvDuration("CITY_DUR", time.Second))
	assert.Equal(t, 3*time.Second, GetEnvDuration("CITY_DUR_SECS", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("CITY_DUR_BAD", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("CITY_UNSET", time.Second))
}

// TestConfigFromEnv tests the shared agent configuration
func TestConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := ConfigFromEnv(AgentTypeAnalyzer, "analyzer-001")

		assert.Equal(t, "analyzer-001", cfg.ID)
		assert.Equal(t, AgentTypeAnalyzer, cfg.Type)
		assert.Equal(t, TransportMQTT, cfg.Transport)
		assert.Equal(t, "localhost", cfg.MQTT.Broker)
		assert.Equal(t, 1883, cfg.MQTT.Port)
		assert.Equal(t, byte(1), cfg.MQTT.QoS)
		assert.Equal(t, transport.DefaultRetryDelay, cfg.RetryDelay)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("AGENT_ID", "simulator-007")
		t.Setenv("TRANSPORT", "nats")
		t.Setenv("MQTT_BROKER", "mosquitto")
		t.Setenv("MQTT_PORT", "1884")
		t.Setenv("NATS_URL", "nats://nats:4222")
		t.Setenv("CONNECT_RETRY_DELAY", "2")
		t.Setenv("LOG_JSON", "true")

		cfg := ConfigFromEnv(AgentTypeSimulator, "simulator-001")
		assert.Equal(t, "simulator-007", cfg.ID)
		assert.Equal(t, TransportNATS, cfg.Transport)
		assert.Equal(t, "mosquitto", cfg.MQTT.Broker)
		assert.Equal(t, 1884, cfg.MQTT.Port)
		assert.Equal(t, "nats://nats:4222", cfg.NATSUrl)
		assert.Equal(t, 2*time.Second, cfg.RetryDelay)
		assert.True(t, cfg.LogJSON)
	})
}

// TestLoadDotEnv tests preloading variables from a .env file
func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CITY_DOTENV_VALUE=from-file\n"), 0o600))

	t.Setenv("CITY_DOTENV_VALUE", "")
	os.Unsetenv("CITY_DOTENV_VALUE")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("CITY_DOTENV_VALUE"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")), "missing files are ignored")
}

// TestNewLogger tests the agent logger fields and format
func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{ID: "analyzer-001", Type: AgentTypeAnalyzer, LogJSON: true, LogLevel: "warn"}, &buf)

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len(), "info is below the configured level")

	logger.Warn().Msg("visible")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "analyzer-001", entry["agent_id"])
	assert.Equal(t, "analyzer", entry["agent_type"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "visible", entry["message"])
}

// TestNewBaseAgentTransports tests transport selection
func TestNewBaseAgentTransports(t *testing.T) {
	tests := []struct {
		transport string
		want      interface{}
		wantErr   bool
	}{
		{transport: "", want: &transport.MQTTBus{}},
		{transport: TransportMQTT, want: &transport.MQTTBus{}},
		{transport: TransportNATS, want: &transport.NATSBus{}},
		{transport: TransportMemory, want: &transport.MemoryBus{}},
		{transport: "carrier-pigeon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.transport, func(t *testing.T) {
			a, err := NewBaseAgent(Config{ID: "a", Type: AgentTypeSimulator, Transport: tt.transport, LogLevel: "disabled"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, a.Bus())
		})
	}

	bus := transport.NewMemoryBus()
	a, err := NewBaseAgent(Config{ID: "a", Type: AgentTypeSimulator, Transport: "ignored", Bus: bus, LogLevel: "disabled"})
	require.NoError(t, err)
	assert.Same(t, bus, a.Bus())
}

// TestInstrument tests handler metrics
func TestInstrument(t *testing.T) {
	a := newMemoryAgent(t)

	ok := a.Instrument("control", func(transport.Message) error { return nil })
	bad := a.Instrument("control", func(transport.Message) error { return errors.New("rejected") })

	ok(transport.Message{})
	ok(transport.Message{})
	bad(transport.Message{})

	assert.Equal(t, 2.0, testutil.ToFloat64(a.messagesTotal.WithLabelValues("success", "control")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.messagesTotal.WithLabelValues("error", "control")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.errorsTotal.WithLabelValues("control_rejected")))
	assert.Equal(t, 1, testutil.CollectAndCount(a.latencyHist))
}

// TestLifecycle tests Start, Health and Stop
func TestLifecycle(t *testing.T) {
	a := newMemoryAgent(t)
	ctx := context.Background()

	assert.Equal(t, HealthStatus{Healthy: false, Status: "stopped"}, a.Health())

	require.NoError(t, a.Start(ctx))
	assert.Equal(t, HealthStatus{Healthy: true, Status: "running"}, a.Health())
	assert.Error(t, a.Start(ctx), "second start is rejected")

	require.NoError(t, a.Bus().Close())
	assert.Equal(t, "disconnected", a.Health().Status)

	require.NoError(t, a.Stop(ctx))
	assert.Equal(t, "stopped", a.Health().Status)
	assert.NoError(t, a.Stop(ctx), "stopping twice is a no-op")
}

// TestMemoryTransportWarns tests that the process-local transport is flagged
func TestMemoryTransportWarns(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{ID: "simulator-001", Type: AgentTypeSimulator, Transport: TransportMemory, LogJSON: true}

	bus, err := newBus(cfg, NewLogger(cfg, &buf))
	require.NoError(t, err)
	assert.IsType(t, &transport.MemoryBus{}, bus)
	assert.Contains(t, buf.String(), "only this process")

	buf.Reset()
	cfg.Transport = TransportMQTT
	_, err = newBus(cfg, NewLogger(cfg, &buf))
	require.NoError(t, err)
	assert.Zero(t, buf.Len())
}
