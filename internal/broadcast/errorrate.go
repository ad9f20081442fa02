package broadcast

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mytechsonamy/mytrader-sub018/internal/domain"
	"github.com/mytechsonamy/mytrader-sub018/internal/metrics"
)

const (
	// DefaultErrorWindow is the failure-counting window per connection.
	DefaultErrorWindow = time.Minute
	// DefaultErrorCeiling is the failure count at which a connection is throttled.
	DefaultErrorCeiling = 10
)

type failureWindow struct {
	count     int
	startedAt time.Time
}

// ErrorRateTracker is a per-connection circuit breaker: a connection that
// accumulates ceiling failures within one window is throttled until the
// window expires. There is no external reset; the only way out of the
// throttled state is time-based decay, so a single bad window can never
// blacklist a client permanently.
type ErrorRateTracker struct {
	mu      sync.Mutex
	windows map[domain.ConnectionID]*failureWindow
	clock   clockwork.Clock
	window  time.Duration
	ceiling int
	total   int64
}

// NewErrorRateTracker creates a tracker. A zero window or ceiling falls back
// to the defaults (one minute, ten failures).
func NewErrorRateTracker(clock clockwork.Clock, window time.Duration, ceiling int) *ErrorRateTracker {
	if window <= 0 {
		window = DefaultErrorWindow
	}
	if ceiling <= 0 {
		ceiling = DefaultErrorCeiling
	}
	return &ErrorRateTracker{
		windows: make(map[domain.ConnectionID]*failureWindow),
		clock:   clock,
		window:  window,
		ceiling: ceiling,
	}
}

// RecordFailure increments the connection's count in the current window,
// starting a fresh window if the previous one expired.
func (t *ErrorRateTracker) RecordFailure(id domain.ConnectionID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	w := t.windows[id]
	if w == nil || now.Sub(w.startedAt) >= t.window {
		w = &failureWindow{startedAt: now}
		t.windows[id] = w
	}
	w.count++
	t.total++
	t.updateThrottledGaugeLocked(now)
}

// IsThrottled reports whether the connection's failure count in the current
// (non-expired) window has reached the ceiling.
func (t *ErrorRateTracker) IsThrottled(id domain.ConnectionID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.windows[id]
	if w == nil {
		return false
	}
	now := t.clock.Now()
	if now.Sub(w.startedAt) >= t.window {
		delete(t.windows, id)
		t.updateThrottledGaugeLocked(now)
		return false
	}
	return w.count >= t.ceiling
}

// Forget discards all state for a connection. Called on disconnect; ids are
// never reused, so retained windows would only leak.
func (t *ErrorRateTracker) Forget(id domain.ConnectionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.windows, id)
	t.updateThrottledGaugeLocked(t.clock.Now())
}

// FailureCount returns the connection's count in the current window.
func (t *ErrorRateTracker) FailureCount(id domain.ConnectionID) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.windows[id]
	if w == nil || t.clock.Now().Sub(w.startedAt) >= t.window {
		return 0
	}
	return w.count
}

// TotalFailures returns the cumulative number of failures recorded since
// startup, for health reporting.
func (t *ErrorRateTracker) TotalFailures() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// ThrottledCount returns the number of connections currently throttled.
func (t *ErrorRateTracker) ThrottledCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	count := 0
	for _, w := range t.windows {
		if now.Sub(w.startedAt) < t.window && w.count >= t.ceiling {
			count++
		}
	}
	return count
}

func (t *ErrorRateTracker) updateThrottledGaugeLocked(now time.Time) {
	count := 0
	for _, w := range t.windows {
		if now.Sub(w.startedAt) < t.window && w.count >= t.ceiling {
			count++
		}
	}
	metrics.ConnectionsThrottledCurrent.Set(float64(count))
}
