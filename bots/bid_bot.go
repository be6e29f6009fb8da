package bots

import (
	"context"
	"math/rand"
	"time"

	"matchbook/engine"
)

// RandomBidBot places limit bids a little under the mid price.
type RandomBidBot struct {
	Interval   time.Duration
	Quantity   float64
	RangeCents int
	rand       *rand.Rand
}

func NewRandomBidBot() *RandomBidBot {
	return &RandomBidBot{
		Interval:   200 * time.Millisecond,
		Quantity:   100,
		RangeCents: 5,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *RandomBidBot) Start(ctx context.Context, client EngineClient) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.placeBid(ctx, client)
		}
	}
}

func (b *RandomBidBot) placeBid(ctx context.Context, client EngineClient) {
	depth, err := client.Depth(ctx, 1)
	if err != nil {
		return
	}
	mid := midPrice(depth, client.Instrument().ReferencePrice)
	if mid <= 0 {
		return
	}

	delta := float64(b.rand.Intn(b.RangeCents+1)) / 100
	price := roundPrice(mid - delta)
	if price <= 0 {
		price = 0.01
	}

	_ = client.Submit(ctx, engine.OrderParams{
		ClientOrderID: client.NextClientOrderID("bid"),
		Instrument:    client.Instrument(),
		Side:          engine.Buy,
		Type:          engine.Limit,
		LimitPrice:    price,
		Quantity:      b.Quantity,
	})
}
