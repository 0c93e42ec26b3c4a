package sensors

import "github.com/jkaberg/robovac-hass/internal/config"

// Home Assistant sensor vocabulary used by the entity contract.
const (
	DeviceClassBattery = "battery"

	StateClassMeasurement = "measurement"

	EntityCategoryDiagnostic = "diagnostic"

	UnitPercentage = "%"

	EntityTypeSensor = "sensor"
)

// EntityDescription provides the static metadata Home Assistant reads to
// render an entity.
type EntityDescription struct {
	Key               string // suffix of the unique id and the topic segment
	Name              string
	EntityType        string // "sensor"
	DeviceClass       string
	StateClass        string
	EntityCategory    string
	UnitOfMeasurement string
	HasEntityName     bool
}

// BatteryDescription describes every vacuum battery sensor.
var BatteryDescription = EntityDescription{
	Key:               "battery",
	Name:              "Battery",
	EntityType:        EntityTypeSensor,
	DeviceClass:       DeviceClassBattery,
	StateClass:        StateClassMeasurement,
	EntityCategory:    EntityCategoryDiagnostic,
	UnitOfMeasurement: UnitPercentage,
	HasEntityName:     true,
}

// DeviceIdentifier is a (domain, id) pair grouping entities under one device.
type DeviceIdentifier struct {
	Domain string
	ID     string
}

// String renders the identifier the way MQTT discovery expects it.
func (d DeviceIdentifier) String() string {
	return d.Domain + "_" + d.ID
}

// DeviceInfo is the physical-device record an entity belongs to.
type DeviceInfo struct {
	Identifiers []DeviceIdentifier
	Name        string
}

func deviceInfoFor(entry config.VacuumEntry) DeviceInfo {
	return DeviceInfo{
		Identifiers: []DeviceIdentifier{{Domain: config.Domain, ID: entry.ID}},
		Name:        entry.Name,
	}
}

// State is a point-in-time copy of a sensor as seen by publishers.
// Value is only meaningful when Available is true.
type State struct {
	UniqueID   string
	DeviceID   string
	DeviceName string
	Value      *int
	Available  bool
}

// Equal reports whether two states would render identically.
func (s State) Equal(o State) bool {
	if s.UniqueID != o.UniqueID || s.Available != o.Available {
		return false
	}
	if !s.Available {
		return true
	}
	if s.Value == nil || o.Value == nil {
		return s.Value == o.Value
	}
	return *s.Value == *o.Value
}
