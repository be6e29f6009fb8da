package bots

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"matchbook/display"
	"matchbook/engine"
	"matchbook/refdata"
)

// ThrottledClient wraps the engine with rate limiting and bookkeeping so a
// swarm of bots cannot flood a book.
type ThrottledClient struct {
	eng      *engine.Engine
	book     *engine.OrderBook
	inst     refdata.Instrument
	throttle <-chan time.Time
	trades   <-chan engine.Trade

	mu       sync.Mutex
	owned    map[string]struct{}
	ownedIDs map[int64]struct{}
}

// NewThrottledClient builds a client for one instrument. A nil throttle
// disables rate limiting. The trades stream is injected because a book's
// fill channel has exactly one consumer; pass nil to claim it directly.
func NewThrottledClient(eng *engine.Engine, inst refdata.Instrument, throttle <-chan time.Time, trades <-chan engine.Trade) *ThrottledClient {
	book := eng.Book(inst)
	if trades == nil {
		trades = book.Trades()
	}
	return &ThrottledClient{
		eng:      eng,
		book:     book,
		inst:     inst,
		throttle: throttle,
		trades:   trades,
		owned:    make(map[string]struct{}),
		ownedIDs: make(map[int64]struct{}),
	}
}

func (c *ThrottledClient) waitThrottle(ctx context.Context) error {
	if c.throttle == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.throttle:
		return nil
	}
}

// Submit builds an order from the params and sends it fire-and-forget.
func (c *ThrottledClient) Submit(ctx context.Context, params engine.OrderParams) error {
	if err := c.waitThrottle(ctx); err != nil {
		return err
	}
	if params.Instrument.Name == "" {
		params.Instrument = c.inst
	}
	order, err := engine.NewOrder(params)
	if err != nil {
		return err
	}
	if err := c.eng.AddOrder(order); err != nil {
		return err
	}
	c.mu.Lock()
	c.owned[params.ClientOrderID] = struct{}{}
	c.ownedIDs[order.OrderID()] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Depth returns the current aggregated book view.
func (c *ThrottledClient) Depth(ctx context.Context, levels int) (display.Depth, error) {
	type result struct {
		depth display.Depth
	}
	done := make(chan result, 1)
	go func() {
		done <- result{depth: display.BookDepth(c.book, levels)}
	}()
	select {
	case <-ctx.Done():
		return display.Depth{}, ctx.Err()
	case res := <-done:
		return res.depth, nil
	}
}

// Trades exposes the instrument's fill stream.
func (c *ThrottledClient) Trades() <-chan engine.Trade {
	return c.trades
}

// Instrument returns the instrument this client trades.
func (c *ThrottledClient) Instrument() refdata.Instrument {
	return c.inst
}

// NextClientOrderID mints a unique client order id with a bot prefix.
func (c *ThrottledClient) NextClientOrderID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// OwnsOrder reports whether this client submitted the given order.
func (c *ThrottledClient) OwnsOrder(clientOrderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.owned[clientOrderID]
	return ok
}

// OwnsOrderID reports ownership by the engine-assigned id, the identity
// carried on a Trade record's own side.
func (c *ThrottledClient) OwnsOrderID(orderID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ownedIDs[orderID]
	return ok
}
