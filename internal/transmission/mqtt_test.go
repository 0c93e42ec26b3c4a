package transmission

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jkaberg/robovac-hass/internal/config"
	"github.com/jkaberg/robovac-hass/internal/registry"
	"github.com/jkaberg/robovac-hass/internal/sensors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	topic    string
	payload  string
	retained bool
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	failOn    string
	messages  []message
}

func (f *fakePublisher) Publish(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.HasSuffix(topic, f.failOn) {
		return errors.New("broker said no")
	}
	f.messages = append(f.messages, message{topic, string(payload), retained})
	return nil
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func (f *fakePublisher) byTopic(topic string) []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []message
	for _, m := range f.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func newTestTransmitter(t *testing.T) (*MQTTTransmitter, *fakePublisher, *sensors.BatterySensor) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	pub := &fakePublisher{connected: true}
	tx := NewMQTTTransmitter(pub, "homeassistant", logger)

	s, err := sensors.NewBatterySensor(config.VacuumEntry{ID: "vac1", Name: "Living Room"}, registry.New(), logger)
	require.NoError(t, err)
	tx.AddEntities([]*sensors.BatterySensor{s})
	return tx, pub, s
}

func intPtr(v int) *int { return &v }

func TestTransmitPublishesDiscoveryOnce(t *testing.T) {
	tx, pub, _ := newTestTransmitter(t)
	st := sensors.State{UniqueID: "vac1_battery", DeviceID: "vac1", Value: intPtr(42), Available: true}

	require.NoError(t, tx.Transmit([]sensors.State{st}))
	require.NoError(t, tx.Transmit([]sensors.State{st}))

	msgs := pub.byTopic("homeassistant/sensor/robovac_vac1/battery/config")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].retained)

	var cfg HADiscoveryConfig
	require.NoError(t, json.Unmarshal([]byte(msgs[0].payload), &cfg))
	assert.Equal(t, "Battery", cfg.Name)
	assert.Equal(t, "vac1_battery", cfg.UniqueID)
	assert.Equal(t, "robovac/vac1/battery/state", cfg.StateTopic)
	assert.Equal(t, []HAAvailability{
		{Topic: "robovac/bridge/status"},
		{Topic: "robovac/vac1/battery/availability"},
	}, cfg.Availability)
	assert.Equal(t, "all", cfg.AvailabilityMode)
	assert.Equal(t, "battery", cfg.DeviceClass)
	assert.Equal(t, "%", cfg.UnitOfMeasurement)
	assert.Equal(t, "measurement", cfg.StateClass)
	assert.Equal(t, "diagnostic", cfg.EntityCategory)
	assert.Equal(t, []string{"robovac_vac1"}, cfg.Device.Identifiers)
	assert.Equal(t, "Living Room", cfg.Device.Name)

	tx.ResetDiscovery()
	require.NoError(t, tx.Transmit([]sensors.State{st}))
	assert.Len(t, pub.byTopic("homeassistant/sensor/robovac_vac1/battery/config"), 2)
}

func TestDiscoveryFollowsBridgeStatus(t *testing.T) {
	tx, pub, _ := newTestTransmitter(t)
	st := sensors.State{UniqueID: "vac1_battery", DeviceID: "vac1", Value: intPtr(42), Available: true}
	require.NoError(t, tx.Transmit([]sensors.State{st}))

	msgs := pub.byTopic("homeassistant/sensor/robovac_vac1/battery/config")
	require.Len(t, msgs, 1)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(msgs[0].payload), &raw))
	assert.NotContains(t, raw, "availability_topic")
	assert.Equal(t, "all", raw["availability_mode"])

	topics := []string{}
	for _, a := range raw["availability"].([]any) {
		topics = append(topics, a.(map[string]any)["topic"].(string))
	}
	assert.Contains(t, topics, config.BridgeStatusTopic)
}

func TestTransmitAvailableState(t *testing.T) {
	tx, pub, _ := newTestTransmitter(t)

	err := tx.Transmit([]sensors.State{{UniqueID: "vac1_battery", DeviceID: "vac1", Value: intPtr(42), Available: true}})
	require.NoError(t, err)

	state := pub.byTopic("robovac/vac1/battery/state")
	require.Len(t, state, 1)
	assert.Equal(t, "42", state[0].payload)

	avail := pub.byTopic("robovac/vac1/battery/availability")
	require.Len(t, avail, 1)
	assert.Equal(t, "online", avail[0].payload)
}

func TestTransmitUnavailableSkipsStaleValue(t *testing.T) {
	tx, pub, _ := newTestTransmitter(t)

	err := tx.Transmit([]sensors.State{{UniqueID: "vac1_battery", DeviceID: "vac1", Value: intPtr(42), Available: false}})
	require.NoError(t, err)

	assert.Empty(t, pub.byTopic("robovac/vac1/battery/state"))
	avail := pub.byTopic("robovac/vac1/battery/availability")
	require.Len(t, avail, 1)
	assert.Equal(t, "offline", avail[0].payload)
}

func TestTransmitNotConnected(t *testing.T) {
	tx, pub, _ := newTestTransmitter(t)
	pub.connected = false

	err := tx.Transmit([]sensors.State{{UniqueID: "vac1_battery", DeviceID: "vac1"}})
	assert.Error(t, err)
	assert.Empty(t, pub.messages)
}

func TestTransmitUnknownEntity(t *testing.T) {
	tx, _, _ := newTestTransmitter(t)

	err := tx.Transmit([]sensors.State{{UniqueID: "ghost_battery", DeviceID: "ghost"}})
	assert.ErrorContains(t, err, "unknown entity")
}

func TestTransmitDiscoveryFailureRetried(t *testing.T) {
	tx, pub, _ := newTestTransmitter(t)
	pub.failOn = "/config"
	st := sensors.State{UniqueID: "vac1_battery", DeviceID: "vac1", Value: intPtr(42), Available: true}

	assert.Error(t, tx.Transmit([]sensors.State{st}))
	assert.Empty(t, pub.byTopic("robovac/vac1/battery/state"))

	pub.failOn = ""
	require.NoError(t, tx.Transmit([]sensors.State{st}))
	assert.Len(t, pub.byTopic("homeassistant/sensor/robovac_vac1/battery/config"), 1)
}
