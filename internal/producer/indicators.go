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

// IndicatorUpdate carries simulated indicator values for one
// symbol/timeframe pair.
type IndicatorUpdate struct {
	Key string  `json:"key"`
	SMA float64 `json:"sma"`
	RSI float64 `json:"rsi"`
}

// IndicatorFeed recomputes indicators for every live indicators:* group.
// Only groups somebody subscribed to are computed, and each group key is
// throttled independently (at most one update per key per minInterval).
type IndicatorFeed struct {
	coordinator *broadcast.Coordinator
	groups      *broadcast.GroupIndex
	clock       clockwork.Clock
	interval    time.Duration
	minInterval time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewIndicatorFeed(coordinator *broadcast.Coordinator, groups *broadcast.GroupIndex, clock clockwork.Clock, interval, minInterval time.Duration) *IndicatorFeed {
	return &IndicatorFeed{
		coordinator: coordinator,
		groups:      groups,
		clock:       clock,
		interval:    interval,
		minInterval: minInterval,
		done:        make(chan struct{}),
	}
}

func (f *IndicatorFeed) Start() {
	f.wg.Add(1)
	go f.run()
}

func (f *IndicatorFeed) Stop() {
	f.stopOnce.Do(func() { close(f.done) })
	f.wg.Wait()
}

func (f *IndicatorFeed) run() {
	defer f.wg.Done()

	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.Chan():
			f.tick(context.Background())
		}
	}
}

func (f *IndicatorFeed) tick(ctx context.Context) {
	for _, group := range f.groups.GroupsByCategory(domain.CategoryIndicators) {
		update := IndicatorUpdate{
			Key: group.Target(),
			SMA: 100 + rand.Float64()*10,
			RSI: 30 + rand.Float64()*40,
		}
		f.coordinator.PublishThrottled(ctx, group, "indicator_update", update,
			string(group), f.minInterval)
		metrics.ProducerEventsTotal.WithLabelValues("indicators").Inc()
	}
}
