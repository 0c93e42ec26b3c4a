package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all configuration options for the robovac-hass bridge
type Config struct {
	// MQTT Configuration
	MQTTUrl         string `json:"mqtt_url"`         // MQTT URL (supports both WebSocket and standard MQTT)
	DiscoveryPrefix string `json:"discovery_prefix"` // Home Assistant discovery prefix
	StatePrefix     string `json:"state_prefix"`     // Topic prefix the vacuum bridge reports on

	// Vacuum Configuration
	VacuumsFile string `json:"vacuums_file"` // YAML file holding the configured vacuums

	// Application Configuration
	Verbose             bool          `json:"verbose"`               // Enable verbose logging
	RefreshRate         time.Duration `json:"refresh_rate"`          // Battery poll interval
	ForceUpdateInterval time.Duration `json:"force_update_interval"` // Re-publish unchanged sensors (0 = disabled)
	MetricsAddr         string        `json:"metrics_addr"`          // Prometheus listen address ("" = disabled)
}

// GetDefaultConfig returns a configuration with sensible defaults
func GetDefaultConfig() *Config {
	return &Config{
		DiscoveryPrefix:     DefaultDiscoveryPrefix,
		StatePrefix:         DefaultStatePrefix,
		VacuumsFile:         "vacuums.yaml",
		Verbose:             false,
		RefreshRate:         DefaultRefreshRate,
		ForceUpdateInterval: MQTTTransmitInterval,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.MQTTUrl == "" {
		return fmt.Errorf("MQTT URL is required")
	}

	// MQTT validation - support both WebSocket and standard MQTT protocols
	if !strings.HasPrefix(c.MQTTUrl, "ws://") &&
		!strings.HasPrefix(c.MQTTUrl, "wss://") &&
		!strings.HasPrefix(c.MQTTUrl, "mqtt://") &&
		!strings.HasPrefix(c.MQTTUrl, "mqtts://") {
		return fmt.Errorf("MQTT URL must use supported protocol (ws://, wss://, mqtt://, or mqtts://)")
	}

	if c.VacuumsFile == "" {
		return fmt.Errorf("vacuums file is required")
	}
	if strings.ContainsAny(c.StatePrefix, "+#") || strings.ContainsAny(c.DiscoveryPrefix, "+#") {
		return fmt.Errorf("topic prefixes must not contain MQTT wildcards")
	}

	// Set defaults for invalid values
	if c.RefreshRate <= 0 {
		c.RefreshRate = DefaultRefreshRate
	}
	if c.ForceUpdateInterval < 0 {
		c.ForceUpdateInterval = 0
	}

	return nil
}

// HasMetrics returns true if the Prometheus endpoint is enabled
func (c *Config) HasMetrics() bool {
	return c.MetricsAddr != ""
}
