// Package natsutil provides NATS JetStream configuration and helpers
package natsutil

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// ControlStream keeps the last message of every control subject. It plays the
// role of MQTT retained messages when the city bus runs on NATS.
const ControlStream = "CITY_CONTROL"

// StreamConfigs defines all streams used by the city bus
var StreamConfigs = map[string]jetstream.StreamConfig{
	ControlStream: {
		Name:              ControlStream,
		Description:       "Last known control messages (locations, sensor config, thresholds, emergency)",
		Subjects:          []string{"City.update.>", "City.emergency"},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 1,
		MaxAge:            30 * 24 * time.Hour,
		Storage:           jetstream.FileStorage,
		Replicas:          1,
		Discard:           jetstream.DiscardOld,
	},
}

// SetupStreams creates all required streams
func SetupStreams(ctx context.Context, js jetstream.JetStream) error {
	for name, cfg := range StreamConfigs {
		_, err := js.Stream(ctx, name)
		if err == nil {
			continue // Stream exists
		}

		_, err = js.CreateStream(ctx, cfg)
		if err != nil {
			return err
		}
	}
	return nil
}

// StreamFor returns the stream capturing subject, if any
func StreamFor(subject string) (string, bool) {
	for name, cfg := range StreamConfigs {
		for _, pattern := range cfg.Subjects {
			if SubjectMatches(pattern, subject) {
				return name, true
			}
		}
	}
	return "", false
}

// SubjectMatches reports whether subject, which may itself contain wildcards,
// is covered by pattern
func SubjectMatches(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")

	for i, tok := range p {
		if tok == ">" {
			return i < len(s)
		}
		if i >= len(s) {
			return false
		}
		if tok != "*" && tok != s[i] {
			return false
		}
	}
	return len(p) == len(s)
}

var (
	tokenEscaper   = strings.NewReplacer("%", "%25", ".", "%2E", " ", "%20", "*", "%2A", ">", "%3E")
	tokenUnescaper = strings.NewReplacer("%2E", ".", "%20", " ", "%2A", "*", "%3E", ">", "%25", "%")
)

// SubjectFromTopic maps an MQTT-style topic or filter to a NATS subject.
// Levels are escaped so that location names with spaces or dots survive.
func SubjectFromTopic(topic string) string {
	levels := strings.Split(topic, "/")
	for i, l := range levels {
		switch l {
		case "+":
			levels[i] = "*"
		case "#":
			levels[i] = ">"
		default:
			levels[i] = tokenEscaper.Replace(l)
		}
	}
	return strings.Join(levels, ".")
}

// TopicFromSubject reverses SubjectFromTopic for concrete subjects
func TopicFromSubject(subject string) string {
	tokens := strings.Split(subject, ".")
	for i, t := range tokens {
		tokens[i] = tokenUnescaper.Replace(t)
	}
	return strings.Join(tokens, "/")
}
