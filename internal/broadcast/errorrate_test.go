package broadcast

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestErrorRateTracker_BelowCeilingNotThrottled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewErrorRateTracker(clock, time.Minute, 10)

	for range 9 {
		tracker.RecordFailure("c1")
	}

	assert.False(t, tracker.IsThrottled("c1"))
	assert.Equal(t, 9, tracker.FailureCount("c1"))
}

func TestErrorRateTracker_ThrottlesAtCeiling(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewErrorRateTracker(clock, time.Minute, 10)

	for range 10 {
		tracker.RecordFailure("c1")
	}

	assert.True(t, tracker.IsThrottled("c1"))
	assert.Equal(t, 1, tracker.ThrottledCount())
}

func TestErrorRateTracker_ThrottleDecaysWithWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewErrorRateTracker(clock, time.Minute, 10)

	for range 10 {
		tracker.RecordFailure("c1")
	}
	assert.True(t, tracker.IsThrottled("c1"))

	clock.Advance(59 * time.Second)
	assert.True(t, tracker.IsThrottled("c1"), "still inside the window")

	clock.Advance(time.Second)
	assert.False(t, tracker.IsThrottled("c1"), "window expired, throttle must decay")
	assert.Equal(t, 0, tracker.FailureCount("c1"))
}

func TestErrorRateTracker_FailureAfterExpiryStartsFreshWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewErrorRateTracker(clock, time.Minute, 10)

	for range 10 {
		tracker.RecordFailure("c1")
	}
	clock.Advance(time.Minute)

	tracker.RecordFailure("c1")
	assert.Equal(t, 1, tracker.FailureCount("c1"))
	assert.False(t, tracker.IsThrottled("c1"))
}

func TestErrorRateTracker_ConnectionsAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewErrorRateTracker(clock, time.Minute, 10)

	for range 10 {
		tracker.RecordFailure("noisy")
	}
	tracker.RecordFailure("quiet")

	assert.True(t, tracker.IsThrottled("noisy"))
	assert.False(t, tracker.IsThrottled("quiet"))
}

func TestErrorRateTracker_ForgetClearsState(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewErrorRateTracker(clock, time.Minute, 10)

	for range 10 {
		tracker.RecordFailure("c1")
	}
	tracker.Forget("c1")

	assert.False(t, tracker.IsThrottled("c1"))
	assert.Equal(t, 0, tracker.FailureCount("c1"))
}

func TestErrorRateTracker_TotalFailuresIsCumulative(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewErrorRateTracker(clock, time.Minute, 10)

	tracker.RecordFailure("c1")
	tracker.RecordFailure("c2")
	clock.Advance(2 * time.Minute)
	tracker.RecordFailure("c1")

	// Window expiry and Forget never roll back the lifetime counter.
	tracker.Forget("c2")
	assert.Equal(t, int64(3), tracker.TotalFailures())
}

func TestErrorRateTracker_ZeroConfigFallsBackToDefaults(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewErrorRateTracker(clock, 0, 0)

	for range DefaultErrorCeiling {
		tracker.RecordFailure("c1")
	}
	assert.True(t, tracker.IsThrottled("c1"))

	clock.Advance(DefaultErrorWindow)
	assert.False(t, tracker.IsThrottled("c1"))
}
