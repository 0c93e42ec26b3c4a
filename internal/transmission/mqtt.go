package transmission

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/jkaberg/robovac-hass/internal/config"
	"github.com/jkaberg/robovac-hass/internal/sensors"
	"github.com/sirupsen/logrus"
)

// MQTTTransmitter renders battery sensors as Home Assistant MQTT entities
type MQTTTransmitter struct {
	client          Publisher
	discoveryPrefix string
	logger          *logrus.Logger

	mu               sync.Mutex
	entities         map[string]entity // by unique id
	publishedSensors map[string]bool   // Tracks published discovery configs
}

type entity struct {
	deviceID    string
	description sensors.EntityDescription
	device      HADevice
}

// HADiscoveryConfig represents Home Assistant MQTT discovery configuration
type HADiscoveryConfig struct {
	Name              string           `json:"name"`
	UniqueID          string           `json:"unique_id"`
	StateTopic        string           `json:"state_topic"`
	DeviceClass       string           `json:"device_class,omitempty"`
	UnitOfMeasurement string           `json:"unit_of_measurement,omitempty"`
	Device            HADevice         `json:"device"`
	Availability      []HAAvailability `json:"availability"`
	AvailabilityMode  string           `json:"availability_mode"`
	Icon              string           `json:"icon,omitempty"`
	StateClass        string           `json:"state_class,omitempty"`
	EntityCategory    string           `json:"entity_category,omitempty"`
}

// HAAvailability is one entry of a discovery availability list
type HAAvailability struct {
	Topic string `json:"topic"`
}

// HADevice represents the device information for Home Assistant
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// NewMQTTTransmitter creates a new MQTT transmitter
func NewMQTTTransmitter(client Publisher, discoveryPrefix string, logger *logrus.Logger) *MQTTTransmitter {
	return &MQTTTransmitter{
		client:           client,
		discoveryPrefix:  discoveryPrefix,
		logger:           logger,
		entities:         make(map[string]entity),
		publishedSensors: make(map[string]bool),
	}
}

// AddEntities makes the sensors known to Home Assistant on the next
// transmit. It matches sensors.AddEntitiesFunc.
func (t *MQTTTransmitter) AddEntities(list []*sensors.BatterySensor) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range list {
		info := s.DeviceInfo()
		ids := make([]string, 0, len(info.Identifiers))
		for _, id := range info.Identifiers {
			ids = append(ids, id.String())
		}
		t.entities[s.UniqueID()] = entity{
			deviceID:    s.DeviceID(),
			description: s.Description(),
			device: HADevice{
				Identifiers:  ids,
				Name:         info.Name,
				Model:        "RoboVac",
				Manufacturer: "Eufy",
			},
		}
	}
}

// ResetDiscovery forgets which discovery configs were published so they are
// sent again, e.g. after the broker lost retained messages.
func (t *MQTTTransmitter) ResetDiscovery() {
	t.mu.Lock()
	t.publishedSensors = make(map[string]bool)
	t.mu.Unlock()
}

// BaseTopic returns the topic root of one entity.
func BaseTopic(deviceID, key string) string {
	return fmt.Sprintf("%s/%s/%s", config.Domain, deviceID, key)
}

// DiscoveryTopic returns the Home Assistant discovery topic of one entity.
func (t *MQTTTransmitter) DiscoveryTopic(entityType, deviceID, key string) string {
	return fmt.Sprintf("%s/%s/%s_%s/%s/config", t.discoveryPrefix, entityType, config.Domain, deviceID, key)
}

// publishDiscoveryForSensor publishes the discovery config for a single sensor.
func (t *MQTTTransmitter) publishDiscoveryForSensor(uniqueID string, e entity) error {
	t.mu.Lock()
	done := t.publishedSensors[uniqueID]
	t.mu.Unlock()
	if done {
		return nil
	}

	d := e.description
	baseTopic := BaseTopic(e.deviceID, d.Key)
	cfg := HADiscoveryConfig{
		Name:              d.Name,
		UniqueID:          uniqueID,
		StateTopic:        baseTopic + "/state",
		DeviceClass:       d.DeviceClass,
		UnitOfMeasurement: d.UnitOfMeasurement,
		StateClass:        d.StateClass,
		EntityCategory:    d.EntityCategory,
		Device:            e.device,
		// Available only while both the bridge and the sensor report online.
		Availability: []HAAvailability{
			{Topic: config.BridgeStatusTopic},
			{Topic: baseTopic + "/availability"},
		},
		AvailabilityMode: "all",
	}

	topic := t.DiscoveryTopic(d.EntityType, e.deviceID, d.Key)
	if err := t.publishConfigRaw(topic, cfg); err != nil {
		return fmt.Errorf("failed to publish %s discovery config: %w", uniqueID, err)
	}

	t.logger.WithFields(logrus.Fields{
		"unique_id": uniqueID,
		"topic":     topic,
	}).Info("Published sensor discovery config")

	t.mu.Lock()
	t.publishedSensors[uniqueID] = true
	t.mu.Unlock()
	return nil
}

// publishConfigRaw publishes a raw configuration object
func (t *MQTTTransmitter) publishConfigRaw(topic string, config interface{}) error {
	payload, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery config: %w", err)
	}

	if err := t.client.Publish(topic, payload, true); err != nil {
		return fmt.Errorf("failed to publish discovery config to %s: %w", topic, err)
	}

	return nil
}

// Transmit publishes discovery, availability and value for every state.
// A failure on one sensor does not stop the others; all errors are returned
// joined.
func (t *MQTTTransmitter) Transmit(states []sensors.State) error {
	if !t.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	var errs []error
	for _, st := range states {
		if err := t.transmitOne(st); err != nil {
			t.logger.WithError(err).WithField("unique_id", st.UniqueID).Warn("Failed to transmit sensor")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	t.logger.WithField("sensors", len(states)).Debug("Data transmitted successfully")
	return nil
}

func (t *MQTTTransmitter) transmitOne(st sensors.State) error {
	t.mu.Lock()
	e, ok := t.entities[st.UniqueID]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown entity %s", st.UniqueID)
	}

	if err := t.publishDiscoveryForSensor(st.UniqueID, e); err != nil {
		return err
	}

	baseTopic := BaseTopic(e.deviceID, e.description.Key)
	if st.Available && st.Value != nil {
		topic := baseTopic + "/state"
		if err := t.client.Publish(topic, []byte(strconv.Itoa(*st.Value)), true); err != nil {
			return fmt.Errorf("failed to publish sensor state to %s: %w", topic, err)
		}
	}

	return t.publishAvailability(baseTopic, st.Available && st.Value != nil)
}

// publishAvailability publishes the availability status
func (t *MQTTTransmitter) publishAvailability(baseTopic string, online bool) error {
	payload := "online"
	if !online {
		payload = "offline"
	}

	topic := baseTopic + "/availability"
	if err := t.client.Publish(topic, []byte(payload), true); err != nil {
		return fmt.Errorf("failed to publish availability to %s: %w", topic, err)
	}
	return nil
}
