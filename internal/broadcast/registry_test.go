package broadcast

import (
	"context"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytechsonamy/mytrader-sub018/internal/domain"
)

// closableSender is a mockSender that can also receive a graceful close.
type closableSender struct {
	mockSender

	closeMu    sync.Mutex
	closedWith string
	closed     bool
}

func (s *closableSender) StopGraceful(reason string) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	s.closed = true
	s.closedWith = reason
}

func (s *closableSender) closedReason() (bool, string) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed, s.closedWith
}

func TestConnectionRegistry_RegisterIsIdempotent(t *testing.T) {
	registry := NewConnectionRegistry(clockwork.NewFakeClock())
	first := &mockSender{}
	second := &mockSender{}

	registry.Register("dashboard", "c1", domain.Identity{UserID: "alice"}, first)
	registry.Register("dashboard", "c1", domain.Identity{UserID: "mallory"}, second)

	assert.Equal(t, 1, registry.Count())

	// First registration wins; the duplicate must not swap sender or identity.
	require.NoError(t, registry.Send(context.Background(), "c1", []byte("x")))
	assert.Equal(t, 1, first.count())
	assert.Equal(t, 0, second.count())

	identity, ok := registry.Identity("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", identity.UserID)
}

func TestConnectionRegistry_UnregisterUnknownIsNoOp(t *testing.T) {
	registry := NewConnectionRegistry(clockwork.NewFakeClock())

	registry.Register("dashboard", "c1", domain.Identity{}, &mockSender{})
	registry.Unregister("dashboard", "never-registered")
	registry.Unregister("dashboard", "c1")
	registry.Unregister("dashboard", "c1")

	assert.Equal(t, 0, registry.Count())
	assert.False(t, registry.Registered("c1"))
}

func TestConnectionRegistry_SendUnknownConnection(t *testing.T) {
	registry := NewConnectionRegistry(clockwork.NewFakeClock())

	err := registry.Send(context.Background(), "ghost", []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestConnectionRegistry_ChannelsAreIsolated(t *testing.T) {
	registry := NewConnectionRegistry(clockwork.NewFakeClock())

	registry.Register("dashboard", "c1", domain.Identity{}, &mockSender{})
	registry.Register("dashboard", "c2", domain.Identity{}, &mockSender{})
	registry.Register("market-data", "c3", domain.Identity{}, &mockSender{})

	assert.Equal(t, 2, registry.CountChannel("dashboard"))
	assert.Equal(t, 1, registry.CountChannel("market-data"))
	assert.Equal(t, 3, registry.Count())
	assert.ElementsMatch(t, []domain.ConnectionID{"c1", "c2"}, registry.ListChannel("dashboard"))
}

func TestConnectionRegistry_CloseChannel(t *testing.T) {
	registry := NewConnectionRegistry(clockwork.NewFakeClock())

	closable := &closableSender{}
	plain := &mockSender{}
	other := &closableSender{}
	registry.Register("dashboard", "c1", domain.Identity{}, closable)
	registry.Register("dashboard", "c2", domain.Identity{}, plain)
	registry.Register("market-data", "c3", domain.Identity{}, other)

	registry.CloseChannel("dashboard", "server shutting down")

	closed, reason := closable.closedReason()
	assert.True(t, closed)
	assert.Equal(t, "server shutting down", reason)

	// Senders without close support and other channels are left alone.
	closed, _ = other.closedReason()
	assert.False(t, closed)
}

func TestConnectionRegistry_ListChannelIsSnapshot(t *testing.T) {
	registry := NewConnectionRegistry(clockwork.NewFakeClock())
	registry.Register("dashboard", "c1", domain.Identity{}, &mockSender{})

	snapshot := registry.ListChannel("dashboard")
	registry.Unregister("dashboard", "c1")

	require.Len(t, snapshot, 1)
	assert.Empty(t, registry.ListChannel("dashboard"))
}
