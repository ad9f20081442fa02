package broadcast

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytechsonamy/mytrader-sub018/internal/domain"
)

func TestGroupIndex_JoinThenLeaveAll(t *testing.T) {
	gi := NewGroupIndex()
	conn := domain.ConnectionID("c1")

	gi.Join(conn, domain.SignalsGroup("BTCUSDT"), domain.FilterParams{})
	gi.Join(conn, domain.PricesGroup("ETHUSDT"), domain.FilterParams{})

	left := gi.LeaveAll(conn)
	assert.Len(t, left, 2)
	assert.ElementsMatch(t, []domain.Group{
		domain.SignalsGroup("BTCUSDT"),
		domain.PricesGroup("ETHUSDT"),
	}, left)

	assert.NotContains(t, gi.Members(domain.SignalsGroup("BTCUSDT")), conn)
	assert.Empty(t, gi.GroupsOf(conn))
	assert.Equal(t, 0, gi.GroupCount(), "empty groups must be garbage-collected")
}

func TestGroupIndex_JoinIsIdempotent(t *testing.T) {
	gi := NewGroupIndex()
	conn := domain.ConnectionID("c1")
	group := domain.SignalsGroup("BTCUSDT")

	gi.Join(conn, group, domain.FilterParams{})
	gi.Join(conn, group, domain.FilterParams{})

	members := gi.Members(group)
	require.Len(t, members, 1)
	assert.Equal(t, conn, members[0])
}

func TestGroupIndex_JoinUpdatesFilterParams(t *testing.T) {
	gi := NewGroupIndex()
	conn := domain.ConnectionID("c1")
	group := domain.SignalsGroup("BTCUSDT")

	gi.Join(conn, group, domain.FilterParams{MinConfidence: 50})
	gi.Join(conn, group, domain.FilterParams{MinConfidence: 80})

	filters := gi.MembersWithFilters(group)
	require.Contains(t, filters, conn)
	assert.Equal(t, 80.0, filters[conn].MinConfidence, "latest committed filter wins")
}

func TestGroupIndex_LeaveUnknownIsNoOp(t *testing.T) {
	gi := NewGroupIndex()
	other := domain.ConnectionID("other")
	group := domain.PricesGroup("BTCUSDT")

	gi.Join(other, group, domain.FilterParams{})

	// Leaving a group the connection is not in changes nothing.
	gi.Leave(domain.ConnectionID("stranger"), group)
	gi.Leave(other, domain.PricesGroup("ETHUSDT"))

	assert.Len(t, gi.Members(group), 1)
	assert.Equal(t, 1, gi.GroupCount())
}

func TestGroupIndex_LeaveAllUnknownReturnsEmpty(t *testing.T) {
	gi := NewGroupIndex()
	assert.Empty(t, gi.LeaveAll(domain.ConnectionID("never-joined")))
}

func TestGroupIndex_LastLeaveDeletesGroup(t *testing.T) {
	gi := NewGroupIndex()
	group := domain.IndicatorsGroup("BTCUSDT", "1h")

	gi.Join("c1", group, domain.FilterParams{})
	gi.Join("c2", group, domain.FilterParams{})

	gi.Leave("c1", group)
	assert.Equal(t, 1, gi.GroupCount())

	gi.Leave("c2", group)
	assert.Equal(t, 0, gi.GroupCount())
}

func TestGroupIndex_ReplaceCategory(t *testing.T) {
	gi := NewGroupIndex()
	conn := domain.ConnectionID("c1")

	gi.ReplaceCategory(conn, domain.CategoryIndicators, []domain.Group{
		domain.IndicatorsGroup("BTCUSDT", "1h"),
		domain.IndicatorsGroup("ETHUSDT", "1h"),
	}, domain.FilterParams{})

	// Subscriptions from another category must survive the replace.
	gi.Join(conn, domain.SignalsGroup("BTCUSDT"), domain.FilterParams{})

	gi.ReplaceCategory(conn, domain.CategoryIndicators, []domain.Group{
		domain.IndicatorsGroup("BTCUSDT", "4h"),
	}, domain.FilterParams{})

	var indicators []domain.Group
	for _, group := range gi.GroupsOf(conn) {
		if group.Category() == domain.CategoryIndicators {
			indicators = append(indicators, group)
		}
	}
	require.Len(t, indicators, 1)
	assert.Equal(t, domain.IndicatorsGroup("BTCUSDT", "4h"), indicators[0])
	assert.Contains(t, gi.GroupsOf(conn), domain.SignalsGroup("BTCUSDT"))
}

func TestGroupIndex_GroupsByCategory(t *testing.T) {
	gi := NewGroupIndex()

	gi.Join("c1", domain.PortfolioGroup("alice"), domain.FilterParams{})
	gi.Join("c2", domain.PortfolioGroup("bob"), domain.FilterParams{})
	gi.Join("c1", domain.PricesGroup("BTCUSDT"), domain.FilterParams{})

	portfolios := gi.GroupsByCategory(domain.CategoryPortfolio)
	assert.ElementsMatch(t, []domain.Group{
		domain.PortfolioGroup("alice"),
		domain.PortfolioGroup("bob"),
	}, portfolios)
}

func TestGroupIndex_SnapshotIsolatedFromWriters(t *testing.T) {
	gi := NewGroupIndex()
	group := domain.PricesGroup("BTCUSDT")
	gi.Join("c1", group, domain.FilterParams{})

	snapshot := gi.Members(group)
	gi.Leave("c1", group)

	// The earlier snapshot is a copy; it must not observe the removal.
	require.Len(t, snapshot, 1)
	assert.Empty(t, gi.Members(group))
}

func TestGroupIndex_ConcurrentJoinLeaveMembers(t *testing.T) {
	gi := NewGroupIndex()
	group := domain.PricesGroup("BTCUSDT")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := domain.ConnectionID(rune('a' + n%26))
			gi.Join(conn, group, domain.FilterParams{})
			_ = gi.Members(group)
			gi.LeaveAll(conn)
		}(i)
	}
	wg.Wait()

	// Every join was paired with a LeaveAll; no membership may survive.
	for c := 'a'; c <= 'z'; c++ {
		assert.Empty(t, gi.GroupsOf(domain.ConnectionID(c)))
	}
}
