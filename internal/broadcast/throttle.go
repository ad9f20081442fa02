package broadcast

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ThrottleRegistry caps emission frequency per broadcast key. A suppressed
// emission is dropped, not queued: the next update for the same key carries
// current data, so staleness is self-healing and bounded by the interval.
type ThrottleRegistry struct {
	mu           sync.Mutex
	lastEmission map[string]time.Time
	clock        clockwork.Clock
}

func NewThrottleRegistry(clock clockwork.Clock) *ThrottleRegistry {
	return &ThrottleRegistry{
		lastEmission: make(map[string]time.Time),
		clock:        clock,
	}
}

// ShouldEmit reports whether an emission for key may go out now, and records
// the emission time if so. Check and record are one atomic operation so two
// concurrent producers can never both pass the gate for the same key.
// Unknown keys always pass.
func (t *ThrottleRegistry) ShouldEmit(key string, minInterval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if last, seen := t.lastEmission[key]; seen && now.Sub(last) < minInterval {
		return false
	}
	t.lastEmission[key] = now
	return true
}

// Forget drops the throttle state for a key.
func (t *ThrottleRegistry) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastEmission, key)
}

// Len returns the number of tracked keys.
func (t *ThrottleRegistry) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastEmission)
}
