package messages

import "strings"

// Topic layout of the city bus
const (
	TopicRoot          = "City"
	TopicLocations     = "City/update/locations"
	TopicSensorConfig  = "City/update/config"
	TopicThresholds    = "City/update/thresholds"
	TopicEmergency     = "City/emergency"
	TopicUpdateFilter  = "City/update/#"
	TopicDataFilter    = "City/data/#"
	TopicAlertsFilter  = "City/alerts/#"
	topicDataSegment   = "data"
	topicAlertsSegment = "alerts"
)

// DataTopic returns the telemetry topic for a location and sensor type
func DataTopic(location, sensorType string) string {
	return TopicRoot + "/" + topicDataSegment + "/" + location + "/" + sensorType
}

// AlertTopic returns the alert topic for a location and sensor type
func AlertTopic(location, sensorType string) string {
	return TopicRoot + "/" + topicAlertsSegment + "/" + location + "/" + sensorType
}

// ParseDataTopic extracts location and sensor type from a telemetry topic
func ParseDataTopic(topic string) (location, sensorType string, ok bool) {
	return parseTopic(topic, topicDataSegment)
}

// ParseAlertTopic extracts location and sensor type from an alert topic
func ParseAlertTopic(topic string) (location, sensorType string, ok bool) {
	return parseTopic(topic, topicAlertsSegment)
}

func parseTopic(topic, segment string) (string, string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicRoot || parts[1] != segment {
		return "", "", false
	}
	if parts[2] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

// IsControlTopic reports whether the topic carries a retained control message
func IsControlTopic(topic string) bool {
	switch topic {
	case TopicLocations, TopicSensorConfig, TopicThresholds, TopicEmergency:
		return true
	}
	return false
}
