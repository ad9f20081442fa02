package broadcast

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestThrottleRegistry_UnknownKeyPasses(t *testing.T) {
	throttle := NewThrottleRegistry(clockwork.NewFakeClock())
	assert.True(t, throttle.ShouldEmit("prices:BTCUSDT", time.Second))
}

func TestThrottleRegistry_SuppressesWithinInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	throttle := NewThrottleRegistry(clock)

	assert.True(t, throttle.ShouldEmit("prices:BTCUSDT", time.Second))
	assert.False(t, throttle.ShouldEmit("prices:BTCUSDT", time.Second))

	clock.Advance(999 * time.Millisecond)
	assert.False(t, throttle.ShouldEmit("prices:BTCUSDT", time.Second))

	clock.Advance(time.Millisecond)
	assert.True(t, throttle.ShouldEmit("prices:BTCUSDT", time.Second))
}

func TestThrottleRegistry_SuppressedEmissionDoesNotResetWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	throttle := NewThrottleRegistry(clock)

	assert.True(t, throttle.ShouldEmit("k", time.Second))

	// A rejected attempt halfway through must not push the window forward.
	clock.Advance(500 * time.Millisecond)
	assert.False(t, throttle.ShouldEmit("k", time.Second))

	clock.Advance(500 * time.Millisecond)
	assert.True(t, throttle.ShouldEmit("k", time.Second))
}

func TestThrottleRegistry_KeysAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	throttle := NewThrottleRegistry(clock)

	assert.True(t, throttle.ShouldEmit("prices:BTCUSDT", time.Second))
	assert.True(t, throttle.ShouldEmit("prices:ETHUSDT", time.Second))
	assert.False(t, throttle.ShouldEmit("prices:BTCUSDT", time.Second))
	assert.False(t, throttle.ShouldEmit("prices:ETHUSDT", time.Second))
	assert.Equal(t, 2, throttle.Len())
}

func TestThrottleRegistry_Forget(t *testing.T) {
	clock := clockwork.NewFakeClock()
	throttle := NewThrottleRegistry(clock)

	assert.True(t, throttle.ShouldEmit("k", time.Hour))
	throttle.Forget("k")
	assert.True(t, throttle.ShouldEmit("k", time.Hour))
}
