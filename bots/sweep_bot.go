package bots

import (
	"context"
	"math/rand"
	"time"

	"matchbook/engine"
)

// SweepBot periodically hits the bid with a market sell, consuming resting
// liquidity so the book keeps turning over.
type SweepBot struct {
	Interval time.Duration
	Quantity float64
	rand     *rand.Rand
}

func NewSweepBot() *SweepBot {
	return &SweepBot{
		Interval: time.Second,
		Quantity: 150,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *SweepBot) Start(ctx context.Context, client EngineClient) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweep(ctx, client)
		}
	}
}

func (b *SweepBot) sweep(ctx context.Context, client EngineClient) {
	depth, err := client.Depth(ctx, 1)
	if err != nil || len(depth.Bids) == 0 {
		return
	}
	qty := b.Quantity * (0.5 + b.rand.Float64())

	_ = client.Submit(ctx, engine.OrderParams{
		ClientOrderID: client.NextClientOrderID("sweep"),
		Instrument:    client.Instrument(),
		Side:          engine.Sell,
		Type:          engine.Market,
		Quantity:      qty,
	})
}
