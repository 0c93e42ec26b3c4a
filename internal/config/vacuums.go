package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrNoVacuums is returned when the vacuums file configures nothing.
var ErrNoVacuums = errors.New("no vacuums configured")

// validID matches ids usable as MQTT topic levels and HA discovery node ids.
var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// VacuumEntry is one configured vacuum. Both fields are required.
type VacuumEntry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// VacuumsFile is the on-disk layout. Vacuums are keyed by their device id,
// and the key must match the entry's own id.
type VacuumsFile struct {
	Vacuums map[string]VacuumEntry `yaml:"vacuums"`
}

// LoadVacuums reads and validates a vacuums YAML file.
func LoadVacuums(path string) (map[string]VacuumEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vacuums file: %w", err)
	}
	return ParseVacuums(data)
}

// ParseVacuums decodes the vacuums mapping. An entry without an explicit id
// inherits its map key.
func ParseVacuums(data []byte) (map[string]VacuumEntry, error) {
	var file VacuumsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vacuums file: %w", err)
	}
	if len(file.Vacuums) == 0 {
		return nil, ErrNoVacuums
	}

	keys := make([]string, 0, len(file.Vacuums))
	for k := range file.Vacuums {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]VacuumEntry, len(file.Vacuums))
	for _, key := range keys {
		entry := file.Vacuums[key]
		if entry.ID == "" {
			entry.ID = key
		}
		if entry.ID != key {
			return nil, fmt.Errorf("vacuum %q: id %q does not match its key", key, entry.ID)
		}
		if !validID.MatchString(entry.ID) {
			return nil, fmt.Errorf("vacuum %q: id may only contain letters, digits, '_' and '-'", key)
		}
		if entry.Name == "" {
			return nil, fmt.Errorf("vacuum %q: name is required", key)
		}
		out[key] = entry
	}
	return out, nil
}
