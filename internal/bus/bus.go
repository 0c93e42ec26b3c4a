package bus

import (
	"sync"

	"github.com/jkaberg/robovac-hass/internal/sensors"
)

// Bus provides fan-out pub/sub semantics for batches of sensor states, one
// batch per poll cycle. Each Subscribe call gets its own channel that
// receives every future publication. Past messages are not replayed. The
// implementation is safe for concurrent publishers and subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan []sensors.State
}

// New creates a ready-to-use Bus.
func New() *Bus { return &Bus{} }

// Subscribe returns a read-only channel that will receive all future
// state batches.
func (b *Bus) Subscribe() <-chan []sensors.State {
	ch := make(chan []sensors.State, 1) // small buffer avoids blocking
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers the batch to all subscribers in a best-effort, non-blocking
// way. A busy subscriber misses this batch and gets the next one.
func (b *Bus) Publish(states []sensors.State) {
	b.mu.RLock()
	subs := make([]chan []sensors.State, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- states:
		default:
		}
	}
}

// Close closes every subscriber channel. Publish must not be called after.
func (b *Bus) Close() {
	b.mu.Lock()
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
	b.mu.Unlock()
}
