package sensors

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jkaberg/robovac-hass/internal/config"
	"github.com/jkaberg/robovac-hass/internal/registry"
	"github.com/sirupsen/logrus"
)

// ErrInvalidEntry is returned when a vacuum entry lacks its id or name.
var ErrInvalidEntry = errors.New("invalid vacuum entry")

// VacuumLookup is the read side of the shared device registry.
type VacuumLookup interface {
	Lookup(id string) (registry.Vacuum, error)
}

// Outcome classifies a single poll.
type Outcome int

const (
	// OutcomeEmpty: the vacuum is unknown or has no battery reading yet.
	OutcomeEmpty Outcome = iota
	// OutcomeReading: a concrete battery percentage was read.
	OutcomeReading
	// OutcomeFailed: the registry lookup or attribute read failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmpty:
		return "empty"
	case OutcomeReading:
		return "reading"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// PollResult is what a poll observed. Value is set for OutcomeReading and
// Err for OutcomeFailed.
type PollResult struct {
	Outcome Outcome
	Value   int
	Err     error
}

// BatterySensor exposes one vacuum's battery level as a diagnostic
// percentage sensor.
type BatterySensor struct {
	deviceID   string
	uniqueID   string
	deviceInfo DeviceInfo

	lookup VacuumLookup
	logger logrus.FieldLogger

	mu        sync.Mutex
	value     *int
	available bool
}

// NewBatterySensor builds the sensor for a configured vacuum. The sensor
// starts unavailable with no value.
func NewBatterySensor(entry config.VacuumEntry, lookup VacuumLookup, logger logrus.FieldLogger) (*BatterySensor, error) {
	if entry.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidEntry)
	}
	if entry.Name == "" {
		return nil, fmt.Errorf("%w: name is required for %s", ErrInvalidEntry, entry.ID)
	}
	if lookup == nil {
		return nil, fmt.Errorf("vacuum lookup is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &BatterySensor{
		deviceID:   entry.ID,
		uniqueID:   entry.ID + "_" + BatteryDescription.Key,
		deviceInfo: deviceInfoFor(entry),
		lookup:     lookup,
		logger:     logger,
	}, nil
}

// Poll refreshes the sensor from the registry. It never fails: errors are
// logged at debug level and turn the sensor unavailable.
func (s *BatterySensor) Poll() PollResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.read()

	switch res.Outcome {
	case OutcomeReading:
		v := res.Value
		s.value = &v
		s.available = true
	case OutcomeEmpty:
		// A vacuum without a reading keeps its last value; only availability drops.
		s.available = false
	case OutcomeFailed:
		s.logger.WithFields(logrus.Fields{
			"device_id": s.deviceID,
		}).WithError(res.Err).Debug("Failed to get battery level")
		s.value = nil
		s.available = false
	}

	return res
}

func (s *BatterySensor) read() (res PollResult) {
	defer func() {
		if r := recover(); r != nil {
			res = PollResult{Outcome: OutcomeFailed, Err: fmt.Errorf("lookup panicked: %v", r)}
		}
	}()

	vac, err := s.lookup.Lookup(s.deviceID)
	if errors.Is(err, registry.ErrNotFound) {
		return PollResult{Outcome: OutcomeEmpty}
	}
	if err != nil {
		return PollResult{Outcome: OutcomeFailed, Err: err}
	}
	if vac.BatteryLevel == nil {
		return PollResult{Outcome: OutcomeEmpty}
	}
	return PollResult{Outcome: OutcomeReading, Value: *vac.BatteryLevel}
}

// DeviceID returns the configured vacuum id.
func (s *BatterySensor) DeviceID() string { return s.deviceID }

// UniqueID returns "<device id>_battery".
func (s *BatterySensor) UniqueID() string { return s.uniqueID }

// Name returns the entity display name.
func (s *BatterySensor) Name() string { return BatteryDescription.Name }

// Description returns the static entity metadata.
func (s *BatterySensor) Description() EntityDescription { return BatteryDescription }

// DeviceInfo returns the device grouping identity.
func (s *BatterySensor) DeviceInfo() DeviceInfo {
	info := s.deviceInfo
	info.Identifiers = append([]DeviceIdentifier(nil), s.deviceInfo.Identifiers...)
	return info
}

// NativeValue returns the last stored battery percentage, or nil when unset.
// Callers should consult Available first.
func (s *BatterySensor) NativeValue() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyInt(s.value)
}

// Available reports whether the last poll produced a current reading.
func (s *BatterySensor) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// State returns a snapshot for publishers.
func (s *BatterySensor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		UniqueID:   s.uniqueID,
		DeviceID:   s.deviceID,
		DeviceName: s.deviceInfo.Name,
		Value:      copyInt(s.value),
		Available:  s.available,
	}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
