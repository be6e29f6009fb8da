package bots

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"matchbook/engine"
	"matchbook/refdata"
)

// Supervisor orchestrates a swarm of bots over a shared throttled client
// and tracks the volume their orders traded.
type Supervisor struct {
	bots     []Bot
	client   *ThrottledClient
	volume   *volumeTracker
	throttle *time.Ticker
	log      *zap.Logger
}

// NewSupervisor builds the default swarm for one instrument. trades carries
// the instrument's fill stream; pass nil to consume the book directly.
func NewSupervisor(eng *engine.Engine, inst refdata.Instrument, orderInterval time.Duration, trades <-chan engine.Trade, log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	throttle := time.NewTicker(orderInterval)
	client := NewThrottledClient(eng, inst, throttle.C, trades)
	return &Supervisor{
		bots: []Bot{
			NewRandomBidBot(),
			NewRandomAskBot(),
			NewRandomBidBot(),
			NewRandomAskBot(),
			NewSweepBot(),
		},
		client:   client,
		volume:   &volumeTracker{},
		throttle: throttle,
		log:      log.Named("bots").With(zap.String("instrument", inst.Name)),
	}
}

// Start launches all bots and volume monitoring until the context ends.
func (s *Supervisor) Start(ctx context.Context) {
	logTicker := time.NewTicker(2 * time.Second)
	defer logTicker.Stop()
	defer s.throttle.Stop()

	for _, bot := range s.bots {
		go bot.Start(ctx, s.client)
	}
	go s.consumeTrades(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-logTicker.C:
			qty, notional := s.volume.Snapshot()
			s.log.Info("bot activity", zap.Float64("tradedQty", qty), zap.Float64("notional", notional))
		}
	}
}

func (s *Supervisor) consumeTrades(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trade, ok := <-s.client.Trades():
			if !ok {
				return
			}
			s.recordTrade(trade)
		}
	}
}

// recordTrade counts each match exactly once. A match produces one Trade
// record per side; the swarm records the one on its own order, and when
// both sides are bot-owned only the sell record counts.
func (s *Supervisor) recordTrade(trade engine.Trade) {
	if !s.client.OwnsOrderID(trade.OrderID) {
		return
	}
	if s.client.OwnsOrder(trade.CounterpartyClientID) && trade.Side != engine.Sell {
		return
	}
	s.volume.Record(trade)
}

type volumeTracker struct {
	mu       sync.Mutex
	quantity float64
	notional float64
}

func (v *volumeTracker) Record(trade engine.Trade) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.quantity += trade.Quantity
	v.notional += trade.Quantity * trade.Price
}

func (v *volumeTracker) Snapshot() (float64, float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.quantity, v.notional
}
