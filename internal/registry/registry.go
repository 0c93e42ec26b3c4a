package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned by Lookup when no vacuum is known under the id.
	ErrNotFound = errors.New("vacuum not found")
	// ErrInconsistent is returned by Lookup when the last report for the
	// vacuum could not be turned into a usable state.
	ErrInconsistent = errors.New("vacuum state inconsistent")
)

// Vacuum is an immutable snapshot of one live vacuum.
// BatteryLevel is nil until the vacuum has reported a reading.
type Vacuum struct {
	ID           string
	BatteryLevel *int
	UpdatedAt    time.Time
}

type entry struct {
	vacuum Vacuum
	broken error
}

// Registry is the in-memory set of live vacuums shared by every entity of
// the integration. Writers are the collaborators that talk to (or listen
// for) the devices; sensors only read through Lookup.
//
// All methods are safe for concurrent use. Lookup hands out copies, so a
// reader always sees either the previous or the next full state.
type Registry struct {
	mu      sync.RWMutex
	vacuums map[string]entry
	now     func() time.Time
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		vacuums: make(map[string]entry),
		now:     time.Now,
	}
}

// Lookup returns a snapshot of the vacuum with the given id.
func (r *Registry) Lookup(id string) (Vacuum, error) {
	r.mu.RLock()
	e, ok := r.vacuums[id]
	r.mu.RUnlock()

	if !ok {
		return Vacuum{}, ErrNotFound
	}
	if e.broken != nil {
		return Vacuum{}, fmt.Errorf("%w: %s: %v", ErrInconsistent, id, e.broken)
	}
	return copyVacuum(e.vacuum), nil
}

// Update stores a new battery reading for the vacuum, creating it if needed.
// A nil level records that the vacuum is alive but has no reading. Levels
// outside 0..100 mark the vacuum inconsistent instead of being stored.
func (r *Registry) Update(id string, level *int) {
	if level != nil && (*level < 0 || *level > 100) {
		r.MarkBroken(id, fmt.Errorf("battery level %d out of range", *level))
		return
	}

	v := Vacuum{ID: id, UpdatedAt: r.now()}
	if level != nil {
		l := *level
		v.BatteryLevel = &l
	}

	r.mu.Lock()
	r.vacuums[id] = entry{vacuum: v}
	r.mu.Unlock()
}

// MarkBroken flags the vacuum as inconsistent until the next Update.
func (r *Registry) MarkBroken(id string, cause error) {
	if cause == nil {
		cause = errors.New("unknown cause")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.vacuums[id]
	e.vacuum.ID = id
	e.vacuum.UpdatedAt = r.now()
	e.broken = cause
	r.vacuums[id] = e
}

// Remove forgets the vacuum.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.vacuums, id)
	r.mu.Unlock()
}

func copyVacuum(v Vacuum) Vacuum {
	if v.BatteryLevel != nil {
		l := *v.BatteryLevel
		v.BatteryLevel = &l
	}
	return v
}
