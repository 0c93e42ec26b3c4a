package config

import "time"

// Central place for all application-wide timing constants and other defaults.
// Changing a value here immediately affects all components that import
// github.com/jkaberg/robovac-hass/internal/config.

const (
	// Polling / transmission intervals
	DefaultRefreshRate   = 6 * time.Second  // Poll every battery sensor
	MQTTTransmitInterval = 60 * time.Second // Forced re-publish of unchanged sensors

	// Operation time-outs (to avoid blocking goroutines)
	MQTTTimeout = 5 * time.Second // MQTT publish / subscribe

	// Home Assistant
	Domain                 = "robovac"
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultStatePrefix     = "eufy_robovac"
	BridgeStatusTopic      = Domain + "/bridge/status"
)
