package broadcast

import (
	"sync"

	"github.com/mytechsonamy/mytrader-sub018/internal/domain"
	"github.com/mytechsonamy/mytrader-sub018/internal/metrics"
)

// GroupIndex is the bidirectional join table between connections and groups.
// It is the sole source of truth for subscriptions: groups come into
// existence on first join and disappear when their last member leaves (no
// tombstones). Filter params live on the membership edge, so a publish-time
// read always sees the most recently committed value.
//
// All read methods return copies; iterating a snapshot never blocks writers.
type GroupIndex struct {
	mu      sync.RWMutex
	members map[domain.Group]map[domain.ConnectionID]domain.FilterParams
	groups  map[domain.ConnectionID]map[domain.Group]struct{}
}

func NewGroupIndex() *GroupIndex {
	return &GroupIndex{
		members: make(map[domain.Group]map[domain.ConnectionID]domain.FilterParams),
		groups:  make(map[domain.ConnectionID]map[domain.Group]struct{}),
	}
}

// Join adds the connection to the group and the group to the connection's
// set, atomically with respect to concurrent Leave/LeaveAll for the same
// connection. Joining a group twice is idempotent; the filter params are
// updated to the latest value.
func (gi *GroupIndex) Join(id domain.ConnectionID, group domain.Group, filter domain.FilterParams) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	gi.joinLocked(id, group, filter)
}

// Leave removes the connection from the group. Leaving a group the
// connection is not in is a no-op: client retries and out-of-order command
// delivery are expected.
func (gi *GroupIndex) Leave(id domain.ConnectionID, group domain.Group) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	gi.leaveLocked(id, group)
}

// LeaveAll removes the connection from every group it is in as a single
// logical operation and returns the groups it was a member of. Used on
// disconnect; a concurrent Members reader sees the connection either as a
// member or not, never half-removed.
func (gi *GroupIndex) LeaveAll(id domain.ConnectionID) []domain.Group {
	gi.mu.Lock()
	defer gi.mu.Unlock()

	joined := gi.groups[id]
	left := make([]domain.Group, 0, len(joined))
	for group := range joined {
		left = append(left, group)
	}
	for _, group := range left {
		gi.leaveLocked(id, group)
	}
	return left
}

// ReplaceCategory atomically swaps the connection's memberships within one
// category: existing entries in that category are cleared before the new set
// is added. Subscriptions are explicit, not additive.
func (gi *GroupIndex) ReplaceCategory(id domain.ConnectionID, category domain.Category, groups []domain.Group, filter domain.FilterParams) {
	gi.mu.Lock()
	defer gi.mu.Unlock()

	for group := range gi.groups[id] {
		if group.Category() == category {
			gi.leaveLocked(id, group)
		}
	}
	for _, group := range groups {
		gi.joinLocked(id, group, filter)
	}
}

// Members returns a snapshot of the group's member ids.
func (gi *GroupIndex) Members(group domain.Group) []domain.ConnectionID {
	gi.mu.RLock()
	defer gi.mu.RUnlock()

	members := gi.members[group]
	ids := make([]domain.ConnectionID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// MembersWithFilters returns a snapshot of the group's members together with
// each member's current filter params.
func (gi *GroupIndex) MembersWithFilters(group domain.Group) map[domain.ConnectionID]domain.FilterParams {
	gi.mu.RLock()
	defer gi.mu.RUnlock()

	members := gi.members[group]
	out := make(map[domain.ConnectionID]domain.FilterParams, len(members))
	for id, filter := range members {
		out[id] = filter
	}
	return out
}

// GroupsOf returns a snapshot of the groups the connection is in.
func (gi *GroupIndex) GroupsOf(id domain.ConnectionID) []domain.Group {
	gi.mu.RLock()
	defer gi.mu.RUnlock()

	joined := gi.groups[id]
	groups := make([]domain.Group, 0, len(joined))
	for group := range joined {
		groups = append(groups, group)
	}
	return groups
}

// GroupsByCategory returns a snapshot of all live groups in a category.
func (gi *GroupIndex) GroupsByCategory(category domain.Category) []domain.Group {
	gi.mu.RLock()
	defer gi.mu.RUnlock()

	var groups []domain.Group
	for group := range gi.members {
		if group.Category() == category {
			groups = append(groups, group)
		}
	}
	return groups
}

// GroupCount returns the number of groups with at least one member.
func (gi *GroupIndex) GroupCount() int {
	gi.mu.RLock()
	defer gi.mu.RUnlock()
	return len(gi.members)
}

func (gi *GroupIndex) joinLocked(id domain.ConnectionID, group domain.Group, filter domain.FilterParams) {
	members := gi.members[group]
	if members == nil {
		members = make(map[domain.ConnectionID]domain.FilterParams)
		gi.members[group] = members
	}
	members[id] = filter

	joined := gi.groups[id]
	if joined == nil {
		joined = make(map[domain.Group]struct{})
		gi.groups[id] = joined
	}
	joined[group] = struct{}{}

	metrics.GroupsCurrent.Set(float64(len(gi.members)))
}

func (gi *GroupIndex) leaveLocked(id domain.ConnectionID, group domain.Group) {
	if members := gi.members[group]; members != nil {
		delete(members, id)
		if len(members) == 0 {
			delete(gi.members, group)
		}
	}
	if joined := gi.groups[id]; joined != nil {
		delete(joined, group)
		if len(joined) == 0 {
			delete(gi.groups, id)
		}
	}

	metrics.GroupsCurrent.Set(float64(len(gi.members)))
}
