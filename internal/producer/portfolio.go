package producer

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mytechsonamy/mytrader-sub018/internal/broadcast"
	"github.com/mytechsonamy/mytrader-sub018/internal/domain"
	"github.com/mytechsonamy/mytrader-sub018/internal/metrics"
)

// PortfolioValuation is one simulated portfolio revaluation.
type PortfolioValuation struct {
	UserID     string  `json:"userId"`
	TotalValue float64 `json:"totalValue"`
	PnL        float64 `json:"pnl"`
}

// PortfolioValuer periodically revalues the portfolio of every user with a
// live portfolio group. Groups appear when an authenticated user connects
// and vanish with their last connection, so the valuer only works for users
// actually watching.
type PortfolioValuer struct {
	coordinator *broadcast.Coordinator
	groups      *broadcast.GroupIndex
	clock       clockwork.Clock
	interval    time.Duration

	mu     sync.Mutex
	values map[string]float64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPortfolioValuer(coordinator *broadcast.Coordinator, groups *broadcast.GroupIndex, clock clockwork.Clock, interval time.Duration) *PortfolioValuer {
	return &PortfolioValuer{
		coordinator: coordinator,
		groups:      groups,
		clock:       clock,
		interval:    interval,
		values:      make(map[string]float64),
		done:        make(chan struct{}),
	}
}

func (v *PortfolioValuer) Start() {
	v.wg.Add(1)
	go v.run()
}

func (v *PortfolioValuer) Stop() {
	v.stopOnce.Do(func() { close(v.done) })
	v.wg.Wait()
}

func (v *PortfolioValuer) run() {
	defer v.wg.Done()

	ticker := v.clock.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-v.done:
			return
		case <-ticker.Chan():
			v.tick(context.Background())
		}
	}
}

func (v *PortfolioValuer) tick(ctx context.Context) {
	for _, group := range v.groups.GroupsByCategory(domain.CategoryPortfolio) {
		userID := group.Target()

		v.mu.Lock()
		value, known := v.values[userID]
		if !known {
			value = 10000
		}
		next := value * (1 + (rand.Float64()-0.5)*0.004)
		v.values[userID] = next
		v.mu.Unlock()

		valuation := PortfolioValuation{
			UserID:     userID,
			TotalValue: next,
			PnL:        next - 10000,
		}
		v.coordinator.Publish(ctx, group, "portfolio_update", valuation)
		metrics.ProducerEventsTotal.WithLabelValues("portfolio").Inc()
	}
}
