package agent

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mattpat48/se4iot-se4as/pkg/transport"
)

// LoadDotEnv preloads variables from .env files without overriding the
// environment. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// GetEnv returns the variable or defaultVal when unset or empty
func GetEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// GetEnvInt parses an integer variable, falling back on parse errors
func GetEnvInt(key string, defaultVal int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultVal
}

// GetEnvBool accepts true/false, 1/0, yes/no
func GetEnvBool(key string, defaultVal bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultVal
}

// GetEnvDuration parses a Go duration ("10s") or a whole number of seconds
func GetEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultVal
}

// ConfigFromEnv builds the agent configuration shared by every binary
func ConfigFromEnv(agentType AgentType, defaultID string) Config {
	return Config{
		ID:        GetEnv("AGENT_ID", defaultID),
		Type:      agentType,
		Transport: GetEnv("TRANSPORT", TransportMQTT),
		MQTT: transport.MQTTConfig{
			Broker:   GetEnv("MQTT_BROKER", "localhost"),
			Port:     GetEnvInt("MQTT_PORT", 1883),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
			QoS:      1,
		},
		NATSUrl:    GetEnv("NATS_URL", "nats://localhost:4222"),
		RetryDelay: GetEnvDuration("CONNECT_RETRY_DELAY", transport.DefaultRetryDelay),
		LogLevel:   GetEnv("LOG_LEVEL", "info"),
		LogJSON:    GetEnvBool("LOG_JSON", false),
	}
}
