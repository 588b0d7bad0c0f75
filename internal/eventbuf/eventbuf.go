/*
Package eventbuf is a bounded FIFO buffer of captured events shared
between the data plane (which appends) and the control plane (which
snapshots). A single mutex is sufficient at the throughput this proxy
sees; the teacher's logbuf ring buffer shows the same single-mutex
fixed-capacity shape for its own log entries.
*/
package eventbuf

import (
	"sync"

	"github.com/jnakagawa/loggy/internal/extractor"
)

// DefaultCapacity is the ring buffer size used when none is configured.
const DefaultCapacity = 1000

// Buffer is a bounded, FIFO-evicting sequence of captured events.
// Append and evict are O(1); Snapshot takes a point-in-time copy under
// the mutex.
type Buffer struct {
	mu       sync.Mutex
	events   []extractor.Event
	capacity int
}

// New returns an empty buffer with the given capacity. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		events:   make([]extractor.Event, 0, capacity),
		capacity: capacity,
	}
}

// Append adds events to the buffer in order, evicting the oldest entries
// first if the buffer would exceed capacity.
func (b *Buffer) Append(events ...extractor.Event) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, events...)
	if over := len(b.events) - b.capacity; over > 0 {
		b.events = b.events[over:]
	}
}

// Snapshot returns a copy of the buffer's current contents, oldest
// first. The returned slice's length always equals Count() at the
// instant of the call.
func (b *Buffer) Snapshot() []extractor.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]extractor.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Count returns the current number of buffered events.
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = b.events[:0]
}
