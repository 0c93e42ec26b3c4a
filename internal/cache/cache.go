package cache

import (
	"sync"
	"time"

	"github.com/jkaberg/robovac-hass/internal/sensors"
)

// Manager remembers the last transmitted state of every sensor and answers
// the question: "which of these states are worth sending again?".
//
// Behaviour:
//   - The first state seen for a sensor is always changed.
//   - Values hidden behind an unavailable state are not compared.
//   - With a non-zero force interval, a sensor is resent once that much time
//     passed since it was last marked sent, even if nothing changed.
type Manager struct {
	mu       sync.Mutex
	prev     map[string]entry
	interval time.Duration
	now      func() time.Time
}

type entry struct {
	state  sensors.State
	sentAt time.Time
}

// NewManager returns a ready-to-use cache manager.
func NewManager(forceInterval time.Duration) *Manager {
	return &Manager{
		prev:     make(map[string]entry),
		interval: forceInterval,
		now:      time.Now,
	}
}

// Changed filters states down to those that differ from (or are due for a
// refresh against) the last states passed to MarkSent.
func (m *Manager) Changed(states []sensors.State) []sensors.State {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []sensors.State
	for _, st := range states {
		prev, ok := m.prev[st.UniqueID]
		switch {
		case !ok, !prev.state.Equal(st):
			out = append(out, st)
		case m.interval > 0 && now.Sub(prev.sentAt) >= m.interval:
			out = append(out, st)
		}
	}
	return out
}

// MarkSent records states as transmitted.
func (m *Manager) MarkSent(states []sensors.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, st := range states {
		m.prev[st.UniqueID] = entry{state: st, sentAt: now}
	}
}

// Forget drops the remembered state so the next Changed reports the sensors
// again. Used after a failed transmit.
func (m *Manager) Forget(states []sensors.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range states {
		delete(m.prev, st.UniqueID)
	}
}
