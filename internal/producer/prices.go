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

// PriceTick is one simulated market data point.
type PriceTick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
}

// PriceFeed simulates a market data feed: a random walk per symbol,
// published to the symbol's prices group. Emissions are throttled per
// symbol so a fast tick loop cannot flood slow dashboards; a suppressed
// tick is simply superseded by the next one.
type PriceFeed struct {
	coordinator  *broadcast.Coordinator
	clock        clockwork.Clock
	symbols      []string
	tickInterval time.Duration
	minInterval  time.Duration

	mu     sync.RWMutex
	prices map[string]float64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPriceFeed(coordinator *broadcast.Coordinator, clock clockwork.Clock, symbols []string, tickInterval, minInterval time.Duration) *PriceFeed {
	prices := make(map[string]float64, len(symbols))
	for i, symbol := range symbols {
		prices[symbol] = 100 * float64(i+1)
	}
	return &PriceFeed{
		coordinator:  coordinator,
		clock:        clock,
		symbols:      symbols,
		tickInterval: tickInterval,
		minInterval:  minInterval,
		prices:       prices,
		done:         make(chan struct{}),
	}
}

// Start launches the tick loop.
func (p *PriceFeed) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop terminates the tick loop and waits for it to exit.
func (p *PriceFeed) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}

// Snapshot returns a point-in-time copy of current prices, for
// client-initiated snapshot requests.
func (p *PriceFeed) Snapshot() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]float64, len(p.prices))
	for symbol, price := range p.prices {
		out[symbol] = price
	}
	return out
}

func (p *PriceFeed) run() {
	defer p.wg.Done()

	ticker := p.clock.NewTicker(p.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.Chan():
			p.tick(context.Background())
		}
	}
}

func (p *PriceFeed) tick(ctx context.Context) {
	for _, symbol := range p.symbols {
		p.mu.Lock()
		prev := p.prices[symbol]
		price := prev * (1 + (rand.Float64()-0.5)*0.01)
		p.prices[symbol] = price
		p.mu.Unlock()

		tick := PriceTick{
			Symbol: symbol,
			Price:  price,
			Change: price - prev,
		}
		p.coordinator.PublishThrottled(ctx, domain.PricesGroup(symbol), "price_update", tick,
			"prices:"+symbol, p.minInterval)
		metrics.ProducerEventsTotal.WithLabelValues("prices").Inc()
	}
}
