package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mytechsonamy/mytrader-sub018/internal/domain"
	"github.com/mytechsonamy/mytrader-sub018/internal/metrics"
)

// ErrUnknownConnection is returned by Send when the target connection is not
// (or no longer) registered.
var ErrUnknownConnection = errors.New("unknown connection")

// Sender delivers one payload to one connection. Implementations must be
// safe for concurrent use and must respect the context deadline; a full
// outbound buffer or a closed transport is reported as an error, never a
// block.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// GracefulCloser is implemented by senders that can emit a close frame before
// tearing the transport down. Used at shutdown so clients can tell a planned
// stop from a network failure.
type GracefulCloser interface {
	StopGraceful(reason string)
}

type connEntry struct {
	channel     string
	identity    domain.Identity
	sender      Sender
	connectedAt time.Time
}

// ConnectionRegistry is the authoritative registry of live connections,
// scoped per logical channel ("dashboard", "market-data", ...).
type ConnectionRegistry struct {
	mu       sync.RWMutex
	conns    map[domain.ConnectionID]*connEntry
	channels map[string]map[domain.ConnectionID]struct{}
	clock    clockwork.Clock
}

func NewConnectionRegistry(clock clockwork.Clock) *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:    make(map[domain.ConnectionID]*connEntry),
		channels: make(map[string]map[domain.ConnectionID]struct{}),
		clock:    clock,
	}
}

// Register inserts a connection into a channel. Registering an already
// registered id is a no-op: retried connect handlers must be safe.
func (r *ConnectionRegistry) Register(channel string, id domain.ConnectionID, identity domain.Identity, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; exists {
		return
	}

	r.conns[id] = &connEntry{
		channel:     channel,
		identity:    identity,
		sender:      sender,
		connectedAt: r.clock.Now(),
	}
	members := r.channels[channel]
	if members == nil {
		members = make(map[domain.ConnectionID]struct{})
		r.channels[channel] = members
	}
	members[id] = struct{}{}

	metrics.ConnectionsCurrent.Set(float64(len(r.conns)))
}

// Unregister removes a connection. Unregistering an unknown id is a no-op
// (disconnect commonly fires twice).
func (r *ConnectionRegistry) Unregister(channel string, id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; !exists {
		return
	}
	delete(r.conns, id)

	if members := r.channels[channel]; members != nil {
		delete(members, id)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}

	metrics.ConnectionsCurrent.Set(float64(len(r.conns)))
}

// Send attempts delivery to one connection. It returns an error instead of
// panicking so callers can keep fanning out to remaining recipients. The
// sender is invoked outside the registry lock.
func (r *ConnectionRegistry) Send(ctx context.Context, id domain.ConnectionID, payload []byte) error {
	r.mu.RLock()
	entry, exists := r.conns[id]
	r.mu.RUnlock()

	if !exists {
		return ErrUnknownConnection
	}
	return entry.sender.Send(ctx, payload)
}

// CloseChannel gracefully closes every connection in a channel with the given
// reason. The sender snapshot is taken under the read lock; the closes happen
// outside it because a close waits for the writer goroutine to drain. Senders
// that cannot emit a close frame are skipped and die with the process.
func (r *ConnectionRegistry) CloseChannel(channel, reason string) {
	r.mu.RLock()
	senders := make([]Sender, 0, len(r.channels[channel]))
	for id := range r.channels[channel] {
		if entry := r.conns[id]; entry != nil {
			senders = append(senders, entry.sender)
		}
	}
	r.mu.RUnlock()

	for _, sender := range senders {
		if closer, ok := sender.(GracefulCloser); ok {
			closer.StopGraceful(reason)
		}
	}
}

// Identity returns the identity attached to a connection, if registered.
func (r *ConnectionRegistry) Identity(id domain.ConnectionID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.conns[id]
	if !exists {
		return domain.Identity{}, false
	}
	return entry.identity, true
}

// Registered reports whether the connection is currently registered.
func (r *ConnectionRegistry) Registered(id domain.ConnectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.conns[id]
	return exists
}

// ListChannel returns a point-in-time copy of the connection ids in a
// channel. The live structure is never exposed.
func (r *ConnectionRegistry) ListChannel(channel string) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.channels[channel]
	ids := make([]domain.ConnectionID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// CountChannel returns the number of connections in a channel.
func (r *ConnectionRegistry) CountChannel(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

// Count returns the total number of registered connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
