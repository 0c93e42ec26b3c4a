package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/jkaberg/robovac-hass/internal/registry"
	"github.com/sirupsen/logrus"
)

// Subscriber is the slice of the MQTT client the collector needs.
type Subscriber interface {
	Subscribe(topic string, handler func(topic string, payload []byte)) error
}

// Collector keeps the registry in sync with the state reports an external
// vacuum bridge publishes on <prefix>/<vacuum id>/state. It never talks to
// a vacuum itself.
//
// Accepted payloads:
//
//	{"battery_level": 42}   reading
//	{"batPct": 42}          reading (Roomba style)
//	{"battery_level": null} alive, no reading
//	empty payload           vacuum gone, removed from the registry
//
// Anything else marks the vacuum inconsistent until its next good report.
type Collector struct {
	reg    *registry.Registry
	prefix string
	known  map[string]struct{}
	logger *logrus.Logger
}

type report struct {
	BatteryLevel json.RawMessage `json:"battery_level"`
	BatPct       json.RawMessage `json:"batPct"`
}

// New creates a collector for the given configured vacuum ids.
func New(reg *registry.Registry, prefix string, ids []string, logger *logrus.Logger) *Collector {
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return &Collector{
		reg:    reg,
		prefix: strings.TrimSuffix(prefix, "/"),
		known:  known,
		logger: logger,
	}
}

// Topic is the wildcard subscription covering every vacuum.
func (c *Collector) Topic() string {
	return c.prefix + "/+/state"
}

// Start subscribes to the report topic.
func (c *Collector) Start(sub Subscriber) error {
	if err := sub.Subscribe(c.Topic(), c.Handle); err != nil {
		return fmt.Errorf("collector: %w", err)
	}
	c.logger.WithField("topic", c.Topic()).Info("Listening for vacuum reports")
	return nil
}

// Handle applies a single report to the registry.
func (c *Collector) Handle(topic string, payload []byte) {
	id, ok := c.vacuumID(topic)
	if !ok {
		c.logger.WithField("topic", topic).Debug("Ignoring report on unexpected topic")
		return
	}
	if _, ok := c.known[id]; !ok {
		c.logger.WithField("device_id", id).Debug("Ignoring report for unconfigured vacuum")
		return
	}

	if len(bytes.TrimSpace(payload)) == 0 {
		c.reg.Remove(id)
		c.logger.WithField("device_id", id).Debug("Vacuum removed")
		return
	}

	level, err := parseBattery(payload)
	if err != nil {
		c.logger.WithError(err).WithField("device_id", id).Debug("Undecodable vacuum report")
		c.reg.MarkBroken(id, err)
		return
	}
	c.reg.Update(id, level)
}

func (c *Collector) vacuumID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, c.prefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/state")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func parseBattery(payload []byte) (*int, error) {
	var r report
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("invalid report: %w", err)
	}

	raw := r.BatteryLevel
	if isNull(raw) {
		raw = r.BatPct
	}
	if isNull(raw) {
		return nil, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("invalid battery level %s: %w", raw, err)
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("battery level %v is not a whole percentage", f)
	}
	level := int(f)
	return &level, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
