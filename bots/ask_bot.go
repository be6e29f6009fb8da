package bots

import (
	"context"
	"math/rand"
	"time"

	"matchbook/engine"
)

// RandomAskBot places limit asks a little over the mid price.
type RandomAskBot struct {
	Interval   time.Duration
	Quantity   float64
	RangeCents int
	rand       *rand.Rand
}

func NewRandomAskBot() *RandomAskBot {
	return &RandomAskBot{
		Interval:   200 * time.Millisecond,
		Quantity:   100,
		RangeCents: 5,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *RandomAskBot) Start(ctx context.Context, client EngineClient) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.placeAsk(ctx, client)
		}
	}
}

func (b *RandomAskBot) placeAsk(ctx context.Context, client EngineClient) {
	depth, err := client.Depth(ctx, 1)
	if err != nil {
		return
	}
	mid := midPrice(depth, client.Instrument().ReferencePrice)
	if mid <= 0 {
		return
	}

	delta := float64(b.rand.Intn(b.RangeCents+1)) / 100
	price := roundPrice(mid + delta)

	_ = client.Submit(ctx, engine.OrderParams{
		ClientOrderID: client.NextClientOrderID("ask"),
		Instrument:    client.Instrument(),
		Side:          engine.Sell,
		Type:          engine.Limit,
		LimitPrice:    price,
		Quantity:      b.Quantity,
	})
}
