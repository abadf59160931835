package alert

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattpat48/se4iot-se4as/pkg/messages"
	"github.com/mattpat48/se4iot-se4as/pkg/transport"
)

// TestDispatcherShards tests shard assignment
func TestDispatcherShards(t *testing.T) {
	d := NewDispatcher(4, func(context.Context, Job) {})
	assert.Equal(t, 4, d.Workers())
	assert.Equal(t, d.shardFor(1), d.shardFor(5))
	assert.NotEqual(t, d.shardFor(1), d.shardFor(2))
	assert.Equal(t, 1, d.shardFor(-1))

	assert.Equal(t, DefaultWorkers, NewDispatcher(0, nil).Workers())
}

// TestDispatcherPerSensorOrder tests that one sensor's jobs run in submission order
func TestDispatcherPerSensorOrder(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int][]float64)

	var wg sync.WaitGroup
	const sensors, perSensor = 8, 100
	wg.Add(sensors * perSensor)

	d := NewDispatcher(3, func(_ context.Context, job Job) {
		mu.Lock()
		seen[job.Reading.SensorID] = append(seen[job.Reading.SensorID], job.Reading.Value)
		mu.Unlock()
		wg.Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	for i := 0; i < perSensor; i++ {
		for id := 1; id <= sensors; id++ {
			require.NoError(t, d.Submit(ctx, Job{Reading: messages.Reading{SensorID: id, Value: float64(i)}}))
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for id := 1; id <= sensors; id++ {
		values := seen[id]
		require.Len(t, values, perSensor)
		for i, v := range values {
			assert.Equal(t, float64(i), v, "sensor %d out of order", id)
		}
	}
}

// TestDispatcherSubmitCancelled tests that Submit gives up when the context ends
func TestDispatcherSubmitCancelled(t *testing.T) {
	d := NewDispatcher(1, func(context.Context, Job) {})

	// Fill the only shard; no workers are running
	for i := 0; i < shardBuffer; i++ {
		require.NoError(t, d.Submit(context.Background(), Job{}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Submit(ctx, Job{}), context.DeadlineExceeded)
}

type collector struct {
	mu     sync.Mutex
	events []messages.AlertEvent
	topics []string
}

func (c *collector) handle(msg transport.Message) {
	var ev messages.AlertEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	c.topics = append(c.topics, msg.Topic)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func publishReading(t *testing.T, bus transport.Bus, location string, r messages.Reading) {
	t.Helper()
	require.NoError(t, transport.PublishJSON(context.Background(), bus, messages.DataTopic(location, r.Type), r, false))
}

// TestAnalyzerEndToEnd tests readings in, alert events out over the bus
func TestAnalyzerEndToEnd(t *testing.T) {
	bus := transport.NewMemoryBus()
	require.NoError(t, bus.Connect(context.Background()))

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	a := NewAnalyzer(NewEngine("analyzer-test", map[string]float64{"temperature": 30}), bus, WithMetrics(m), WithWorkers(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Subscribe(ctx, bus))
	go a.Run(ctx)

	alerts := &collector{}
	require.NoError(t, bus.Subscribe(ctx, messages.TopicAlertsFilter, alerts.handle))

	for _, v := range []float64{28, 31, 32, 29} {
		publishReading(t, bus, "Park", messages.Reading{SensorID: 1, Type: "temperature", Unit: "°C", Value: v})
	}

	require.Eventually(t, func() bool { return alerts.len() == 2 }, time.Second, 5*time.Millisecond)

	alerts.mu.Lock()
	assert.Equal(t, messages.AlertKindAlert, alerts.events[0].Kind)
	assert.Equal(t, messages.AlertKindRecovery, alerts.events[1].Kind)
	assert.Equal(t, "City/alerts/Park/temperature", alerts.topics[0])
	assert.Equal(t, "Park", alerts.events[0].Location)
	alerts.mu.Unlock()

	assert.Equal(t, 4.0, testutil.ToFloat64(m.readings.WithLabelValues("received")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alerts.WithLabelValues(string(messages.AlertKindAlert), "temperature")))
}

// TestAnalyzerThresholdUpdates tests threshold control messages over the bus
func TestAnalyzerThresholdUpdates(t *testing.T) {
	tests := []struct {
		name    string
		restore bool
		want    float64
	}{
		{name: "restore applies retained thresholds", restore: true, want: 50},
		{name: "fresh start discards retained thresholds", restore: false, want: 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := transport.NewMemoryBus()
			require.NoError(t, bus.Connect(context.Background()))
			require.NoError(t, bus.Publish(context.Background(), messages.TopicThresholds, []byte(`{"thresholds":{"temperature":50}}`), true))

			a := NewAnalyzer(NewEngine("analyzer-test", map[string]float64{"temperature": 30}), bus, WithRestore(tt.restore))
			require.NoError(t, a.Subscribe(context.Background(), bus))
			assert.Equal(t, tt.want, a.Engine().Thresholds()["temperature"])

			require.NoError(t, bus.Publish(context.Background(), messages.TopicThresholds, []byte(`{"thresholds":{"co2":900}}`), true))
			th := a.Engine().Thresholds()
			assert.Equal(t, 900.0, th["co2"])
			assert.Equal(t, tt.want, th["temperature"], "updates merge")
		})
	}
}

// TestAnalyzerRejects tests malformed readings and threshold updates
func TestAnalyzerRejects(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	a := NewAnalyzer(NewEngine("analyzer-test", map[string]float64{"temperature": 30}), transport.NewMemoryBus(), WithMetrics(m))

	err := a.HandleReading(context.Background(), transport.Message{Topic: "City/data/Park", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, messages.ErrInvalidValue)

	err = a.HandleReading(context.Background(), transport.Message{Topic: "City/data/Park/temperature", Payload: []byte(`{"sensor_id":1}`)})
	assert.ErrorIs(t, err, messages.ErrMissingField)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.readings.WithLabelValues("malformed")))

	err = a.HandleThresholds(transport.Message{Topic: messages.TopicThresholds, Payload: []byte(`not json`)})
	assert.ErrorIs(t, err, messages.ErrMalformedPayload)
	assert.Equal(t, 30.0, a.Engine().Thresholds()["temperature"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.controlRejected.WithLabelValues(messages.TopicThresholds)))
}
