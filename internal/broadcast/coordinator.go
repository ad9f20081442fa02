package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mytechsonamy/mytrader-sub018/internal/domain"
	"github.com/mytechsonamy/mytrader-sub018/internal/logging"
	"github.com/mytechsonamy/mytrader-sub018/internal/metrics"
)

// DefaultSendTimeout bounds a single recipient's Send so one stalled
// consumer cannot starve a broadcast.
const DefaultSendTimeout = 2 * time.Second

// FilterPredicate decides, per recipient, whether an event passes that
// recipient's subscription filter. It is evaluated at publish time against
// the filter params committed at the moment the member snapshot was taken.
type FilterPredicate func(filter domain.FilterParams) bool

// Coordinator is the façade producers use to publish events to a group. It
// resolves group → member snapshot, applies throttling, dispatches with a
// bounded per-recipient timeout and isolates per-recipient failures:
// a failed send is recorded and logged but never aborts the rest of the
// fan-out.
type Coordinator struct {
	registry    *ConnectionRegistry
	groups      *GroupIndex
	throttle    *ThrottleRegistry
	tracker     *ErrorRateTracker
	clock       clockwork.Clock
	sendTimeout time.Duration
}

// NewCoordinator wires a coordinator over explicitly-owned registries. A
// zero sendTimeout falls back to DefaultSendTimeout.
func NewCoordinator(registry *ConnectionRegistry, groups *GroupIndex, throttle *ThrottleRegistry, tracker *ErrorRateTracker, clock clockwork.Clock, sendTimeout time.Duration) *Coordinator {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Coordinator{
		registry:    registry,
		groups:      groups,
		throttle:    throttle,
		tracker:     tracker,
		clock:       clock,
		sendTimeout: sendTimeout,
	}
}

// Publish dispatches an event to every current member of the group and
// returns the number of successful deliveries.
func (c *Coordinator) Publish(ctx context.Context, group domain.Group, eventType string, payload any) int {
	return c.dispatch(ctx, group, eventType, payload, nil)
}

// PublishThrottled is Publish gated by the throttle registry: if less than
// minInterval has elapsed since the last emission for throttleKey, the event
// is dropped entirely. The drop is deliberate and silent (zero deliveries,
// not an error); the next update for the key supersedes the lost one.
func (c *Coordinator) PublishThrottled(ctx context.Context, group domain.Group, eventType string, payload any, throttleKey string, minInterval time.Duration) int {
	if !c.throttle.ShouldEmit(throttleKey, minInterval) {
		metrics.PublishesTotal.WithLabelValues("throttled").Inc()
		return 0
	}
	return c.dispatch(ctx, group, eventType, payload, nil)
}

// PublishFiltered dispatches to the group members whose subscription filter
// passes the predicate; other members are skipped even though they belong to
// the group. Used for confidence-gated signal alerts.
func (c *Coordinator) PublishFiltered(ctx context.Context, group domain.Group, eventType string, payload any, pass FilterPredicate) int {
	return c.dispatch(ctx, group, eventType, payload, pass)
}

func (c *Coordinator) dispatch(ctx context.Context, group domain.Group, eventType string, payload any, pass FilterPredicate) int {
	members := c.groups.MembersWithFilters(group)
	if len(members) == 0 {
		metrics.PublishesTotal.WithLabelValues("empty").Inc()
		return 0
	}

	event := domain.Event{
		Type:      eventType,
		Data:      payload,
		Timestamp: c.clock.Now().UnixMilli(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		logging.WithError(err).Error("Failed to marshal event", "group", string(group), "event_type", eventType)
		return 0
	}

	metrics.PublishesTotal.WithLabelValues("dispatched").Inc()

	delivered := 0
	for id, filter := range members {
		if pass != nil && !pass(filter) {
			metrics.DeliveriesTotal.WithLabelValues("filtered").Inc()
			continue
		}
		// Recipients with an exhausted error budget are skipped, not attempted.
		if c.tracker.IsThrottled(id) {
			metrics.DeliveriesTotal.WithLabelValues("skipped").Inc()
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
		err := c.registry.Send(sendCtx, id, data)
		cancel()

		if err != nil {
			c.tracker.RecordFailure(id)
			metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
			logging.WithGroup(string(group)).Warn("Send failed, continuing fan-out",
				"event_type", eventType,
				"connection_id", string(id),
				"error", err,
			)
			continue
		}
		delivered++
		metrics.DeliveriesTotal.WithLabelValues("sent").Inc()
	}

	return delivered
}
