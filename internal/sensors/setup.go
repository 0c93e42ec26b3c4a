package sensors

import (
	"fmt"
	"sort"

	"github.com/jkaberg/robovac-hass/internal/config"
	"github.com/sirupsen/logrus"
)

// AddEntitiesFunc receives the sensors created during setup.
type AddEntitiesFunc func(entities []*BatterySensor)

// Setup creates one battery sensor per configured vacuum, ordered by id,
// and hands them to add in a single call.
func Setup(vacuums map[string]config.VacuumEntry, lookup VacuumLookup, add AddEntitiesFunc, logger logrus.FieldLogger) error {
	ids := make([]string, 0, len(vacuums))
	for id := range vacuums {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entities := make([]*BatterySensor, 0, len(ids))
	for _, id := range ids {
		s, err := NewBatterySensor(vacuums[id], lookup, logger)
		if err != nil {
			return fmt.Errorf("failed to set up battery sensor for %s: %w", id, err)
		}
		entities = append(entities, s)
	}

	add(entities)
	return nil
}
