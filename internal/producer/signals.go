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

// Signal is one simulated trade signal.
type Signal struct {
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
}

// SignalScanner periodically emits a signal for a random symbol. Delivery is
// filtered per subscriber: the signal's confidence is matched against each
// subscription's MinConfidence at publish time, not at subscribe time.
type SignalScanner struct {
	coordinator *broadcast.Coordinator
	clock       clockwork.Clock
	symbols     []string
	interval    time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSignalScanner(coordinator *broadcast.Coordinator, clock clockwork.Clock, symbols []string, interval time.Duration) *SignalScanner {
	return &SignalScanner{
		coordinator: coordinator,
		clock:       clock,
		symbols:     symbols,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (s *SignalScanner) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *SignalScanner) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *SignalScanner) run() {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.Chan():
			s.scan(context.Background())
		}
	}
}

func (s *SignalScanner) scan(ctx context.Context) {
	symbol := s.symbols[rand.IntN(len(s.symbols))]
	direction := "buy"
	if rand.Float64() < 0.5 {
		direction = "sell"
	}
	sig := Signal{
		Symbol:     symbol,
		Direction:  direction,
		Confidence: 50 + rand.Float64()*50,
	}

	s.coordinator.PublishFiltered(ctx, domain.SignalsGroup(symbol), "signal_alert", sig,
		func(filter domain.FilterParams) bool {
			return sig.Confidence >= filter.MinConfidence
		})
	metrics.ProducerEventsTotal.WithLabelValues("signals").Inc()
}
