package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mytechsonamy/mytrader-sub018/internal/domain"
	apperrors "github.com/mytechsonamy/mytrader-sub018/internal/errors"
	"github.com/mytechsonamy/mytrader-sub018/internal/logging"
	"github.com/mytechsonamy/mytrader-sub018/internal/metrics"
)

// SnapshotProvider produces the payload for a client-initiated snapshot
// request. Producers own the data; the session only routes it to the caller.
type SnapshotProvider func(dataType string, params map[string]string) (any, error)

// SubscriptionAck confirms a subscribe/unsubscribe command to the caller.
type SubscriptionAck struct {
	Type     string          `json:"type"`
	Category domain.Category `json:"category"`
	Targets  []string        `json:"targets"`
	Count    int             `json:"count"`
}

// Pong answers a liveness probe.
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"ts"`
}

// HealthStatus is the per-channel diagnostic surface.
type HealthStatus struct {
	IsHealthy       bool  `json:"isHealthy"`
	ErrorCount      int64 `json:"errorCount"`
	ConnectionCount int   `json:"connectionCount"`
	GroupCount      int   `json:"groupCount"`
}

// ChannelSession orchestrates per-connection lifecycle for one logical
// channel: on-connect registration, subscription commands, liveness probes,
// and guaranteed on-disconnect cleanup.
type ChannelSession struct {
	channel     string
	registry    *ConnectionRegistry
	groups      *GroupIndex
	tracker     *ErrorRateTracker
	clock       clockwork.Clock
	snapshots   SnapshotProvider
	sendTimeout time.Duration
}

// NewChannelSession binds a session handler to one channel. snapshots may be
// nil if the channel serves no snapshot requests.
func NewChannelSession(channel string, registry *ConnectionRegistry, groups *GroupIndex, tracker *ErrorRateTracker, clock clockwork.Clock, snapshots SnapshotProvider, sendTimeout time.Duration) *ChannelSession {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &ChannelSession{
		channel:     channel,
		registry:    registry,
		groups:      groups,
		tracker:     tracker,
		clock:       clock,
		snapshots:   snapshots,
		sendTimeout: sendTimeout,
	}
}

// Channel returns the channel name this session is bound to.
func (s *ChannelSession) Channel() string {
	return s.channel
}

// OnConnect registers the connection, auto-joins the per-user portfolio
// group for authenticated identities, and pushes a hello frame to the caller
// alone. A failed hello is logged but does not fail the connect.
func (s *ChannelSession) OnConnect(ctx context.Context, id domain.ConnectionID, identity domain.Identity, sender Sender) {
	s.registry.Register(s.channel, id, identity, sender)

	if !identity.Anonymous() {
		s.groups.Join(id, domain.PortfolioGroup(identity.UserID), domain.FilterParams{})
	}

	hello := domain.Event{
		Type: "connected",
		Data: map[string]string{
			"connectionId": string(id),
			"channel":      s.channel,
		},
		Timestamp: s.clock.Now().UnixMilli(),
	}
	if err := s.sendToCaller(ctx, id, hello); err != nil {
		logging.WithChannel(s.channel).Warn("Failed to send hello", "connection_id", string(id), "error", err)
	}

	logging.WithChannel(s.channel).Debug("Connection established", "connection_id", string(id), "user_id", identity.UserID)
}

// OnDisconnect tears the connection's state down: every group membership is
// removed, the registry entry dropped and the error window forgotten. It is
// idempotent and runs to completion even when the transport already failed —
// leaked memberships would keep attracting sends against a dead connection
// indefinitely.
func (s *ChannelSession) OnDisconnect(id domain.ConnectionID) {
	left := s.groups.LeaveAll(id)
	s.registry.Unregister(s.channel, id)
	s.tracker.Forget(id)

	if len(left) > 0 {
		logging.WithChannel(s.channel).Debug("Connection cleaned up", "connection_id", string(id), "groups_left", len(left))
	}
}

// HandleSubscribe replaces (not merges) the connection's subscriptions
// within one category: prior entries in that category are cleared before the
// new targets are added. A connection whose error budget is exhausted gets a
// typed rate-limited rejection instead of a state change.
func (s *ChannelSession) HandleSubscribe(id domain.ConnectionID, category domain.Category, targets []string, filter domain.FilterParams) (*SubscriptionAck, error) {
	if err := s.checkCommand(id); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, apperrors.ValidationError("unknown subscription category").WithContext("category", string(category))
	}
	if len(targets) == 0 {
		return nil, apperrors.ValidationError("at least one target is required")
	}

	groups := make([]domain.Group, 0, len(targets))
	for _, target := range targets {
		group, err := domain.NewGroup(category, target)
		if err != nil {
			return nil, apperrors.ValidationError("invalid subscription target").WithContext("target", target)
		}
		groups = append(groups, group)
	}

	s.groups.ReplaceCategory(id, category, groups, filter)

	return &SubscriptionAck{
		Type:     "subscription_confirmed",
		Category: category,
		Targets:  targets,
		Count:    len(groups),
	}, nil
}

// HandleUnsubscribe removes the given targets from the connection's
// subscriptions. Unknown targets are no-ops.
func (s *ChannelSession) HandleUnsubscribe(id domain.ConnectionID, category domain.Category, targets []string) (*SubscriptionAck, error) {
	if err := s.checkCommand(id); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, apperrors.ValidationError("unknown subscription category").WithContext("category", string(category))
	}

	for _, target := range targets {
		group, err := domain.NewGroup(category, target)
		if err != nil {
			continue
		}
		s.groups.Leave(id, group)
	}

	remaining := 0
	for _, group := range s.groups.GroupsOf(id) {
		if group.Category() == category {
			remaining++
		}
	}

	return &SubscriptionAck{
		Type:     "unsubscription_confirmed",
		Category: category,
		Targets:  targets,
		Count:    remaining,
	}, nil
}

// Ping answers a liveness probe, independent of data flow.
func (s *ChannelSession) Ping(id domain.ConnectionID) (*Pong, error) {
	if !s.registry.Registered(id) {
		return nil, apperrors.NotFoundError("unknown connection")
	}
	return &Pong{Type: "pong", Timestamp: s.clock.Now().UnixMilli()}, nil
}

// RequestSnapshot pushes a point-in-time data snapshot to the caller only,
// never broadcast.
func (s *ChannelSession) RequestSnapshot(ctx context.Context, id domain.ConnectionID, dataType string, params map[string]string) error {
	if err := s.checkCommand(id); err != nil {
		return err
	}
	if s.snapshots == nil {
		return apperrors.NotFoundError("snapshots are not available on this channel")
	}

	payload, err := s.snapshots(dataType, params)
	if err != nil {
		return apperrors.InternalError("snapshot failed", err).WithContext("data_type", dataType)
	}

	event := domain.Event{
		Type:      "snapshot",
		Data:      payload,
		Timestamp: s.clock.Now().UnixMilli(),
	}
	if err := s.sendToCaller(ctx, id, event); err != nil {
		s.tracker.RecordFailure(id)
		return apperrors.InternalError("snapshot delivery failed", err)
	}
	return nil
}

// Shutdown gracefully closes every live connection on this channel. Each
// client receives a close frame with the reason; the per-connection cleanup
// itself still runs through the normal disconnect path when the transport's
// read loop notices the close.
func (s *ChannelSession) Shutdown(reason string) {
	count := s.registry.CountChannel(s.channel)
	s.registry.CloseChannel(s.channel, reason)
	logging.WithChannel(s.channel).Info("Channel shut down", "connections_closed", count)
}

// HealthStatus reports the channel's diagnostic counters. The channel is
// considered healthy while no connection is sitting in the throttled state.
func (s *ChannelSession) HealthStatus() HealthStatus {
	return HealthStatus{
		IsHealthy:       s.tracker.ThrottledCount() == 0,
		ErrorCount:      s.tracker.TotalFailures(),
		ConnectionCount: s.registry.CountChannel(s.channel),
		GroupCount:      s.groups.GroupCount(),
	}
}

// checkCommand gates client commands: unknown connections are rejected, and
// connections with an exhausted error budget get a typed rate-limited error
// so clients can back off deliberately.
func (s *ChannelSession) checkCommand(id domain.ConnectionID) error {
	if !s.registry.Registered(id) {
		return apperrors.NotFoundError("unknown connection")
	}
	if s.tracker.IsThrottled(id) {
		metrics.RateLimitedCommandsTotal.Inc()
		return apperrors.RateLimitedError("too many failed operations, retry later").
			WithContext("connection_id", string(id))
	}
	return nil
}

func (s *ChannelSession) sendToCaller(ctx context.Context, id domain.ConnectionID, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	return s.registry.Send(sendCtx, id, data)
}
