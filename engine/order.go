package engine

import (
	"fmt"
	"math"
	"sync"

	"matchbook/refdata"
)

// unassignedOrderID marks an order that has not passed through the engine yet.
const unassignedOrderID = math.MinInt64

// Trade is an immutable record of one fill event from the point of view of
// one order. A match produces two Trade records, one per side.
type Trade struct {
	OrderID              int64
	Instrument           refdata.Instrument
	Price                float64
	Quantity             float64
	Side                 Side
	TradeID              int64
	CounterpartyClientID string
}

func (t Trade) String() string {
	return fmt.Sprintf("Trade{orderId=%d, instrument=%s, price=%v, qty=%v, side=%s, tradeId=%d, counterparty=%s}",
		t.OrderID, t.Instrument.Name, t.Price, t.Quantity, t.Side, t.TradeID, t.CounterpartyClientID)
}

// Order is a mutable trading intent. It is owned exclusively by the book
// that admitted it; values handed to callers are defensive snapshots made
// with Copy. The mutex keeps a fill or rollback atomic with respect to any
// concurrent reader outside the owning lane.
type Order struct {
	mu sync.Mutex

	clientOrderID string
	orderID       int64
	instrument    refdata.Instrument
	side          Side
	orderType     OrderType

	limitPrice   float64
	avgFillPrice float64
	lastFillPx   float64

	orderedQty  float64
	cumQty      float64
	leavesQty   float64
	lastFillQty float64
	visibleQty  float64 // NaN when the order discloses its full size

	receivedAt int64 // unix nanos, set when the book admits the order
	executedAt int64

	open   bool
	trades map[int64]Trade
}

// OrderParams carries everything needed to construct an order. LimitPrice is
// required for Limit orders and ignored for Market orders. A positive
// VisibleQuantity records an iceberg display hint; matching always uses the
// full remaining quantity.
type OrderParams struct {
	ClientOrderID   string
	Instrument      refdata.Instrument
	Side            Side
	Type            OrderType
	LimitPrice      float64
	Quantity        float64
	VisibleQuantity float64
}

// NewOrder validates the parameters and returns a fresh open order.
func NewOrder(p OrderParams) (*Order, error) {
	if p.Type == Limit && (math.IsNaN(p.LimitPrice) || math.IsInf(p.LimitPrice, 0)) {
		return nil, fmt.Errorf("%w: limit order %q must have a finite price", ErrInvalidOrder, p.ClientOrderID)
	}
	if math.IsNaN(p.Quantity) || math.IsInf(p.Quantity, 0) || p.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %v for clOrdId %q", ErrInvalidOrder, p.Quantity, p.ClientOrderID)
	}
	o := &Order{
		clientOrderID: p.ClientOrderID,
		orderID:       unassignedOrderID,
		instrument:    p.Instrument,
		side:          p.Side,
		orderType:     p.Type,
		orderedQty:    p.Quantity,
		leavesQty:     p.Quantity,
		visibleQty:    math.NaN(),
		open:          true,
		trades:        make(map[int64]Trade),
	}
	if p.Type == Limit {
		o.limitPrice = p.LimitPrice
	}
	if p.VisibleQuantity > 0 {
		o.visibleQty = p.VisibleQuantity
	}
	return o, nil
}

// assignID sets the engine order id exactly once; later calls are no-ops.
func (o *Order) assignID(id int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.orderID != unassignedOrderID {
		return
	}
	o.orderID = id
}

// ClientOrderID returns the caller-supplied identifier.
func (o *Order) ClientOrderID() string { return o.clientOrderID }

// OrderID returns the engine-assigned identifier, or a sentinel below any
// real id when the order has not been submitted yet.
func (o *Order) OrderID() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.orderID
}

// Instrument returns the instrument this order trades.
func (o *Order) Instrument() refdata.Instrument { return o.instrument }

// Side returns the order direction.
func (o *Order) Side() Side { return o.side }

// Type returns the execution style.
func (o *Order) Type() OrderType { return o.orderType }

// LimitPrice returns the price bound, zero for market orders.
func (o *Order) LimitPrice() float64 { return o.limitPrice }

// OrderedQty returns the original order quantity.
func (o *Order) OrderedQty() float64 { return o.orderedQty }

// AvgFillPrice returns the quantity-weighted mean of all fill prices.
func (o *Order) AvgFillPrice() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.avgFillPrice
}

// LastFillPrice returns the price of the most recent fill.
func (o *Order) LastFillPrice() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastFillPx
}

// LastFillQty returns the quantity of the most recent fill.
func (o *Order) LastFillQty() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastFillQty
}

// CumQty returns the cumulative filled quantity.
func (o *Order) CumQty() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cumQty
}

// LeavesQty returns the remaining open quantity.
func (o *Order) LeavesQty() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.leavesQty
}

// VisibleQty returns the iceberg display hint, NaN when undisclosed.
func (o *Order) VisibleQty() float64 { return o.visibleQty }

// ReceivedAt returns the admission timestamp in unix nanos.
func (o *Order) ReceivedAt() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.receivedAt
}

func (o *Order) setReceivedAt(ts int64) {
	o.mu.Lock()
	o.receivedAt = ts
	o.mu.Unlock()
}

// ExecutedAt returns the timestamp of the last execution in unix nanos.
func (o *Order) ExecutedAt() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.executedAt
}

func (o *Order) setExecutedAt(ts int64) {
	o.mu.Lock()
	o.executedAt = ts
	o.mu.Unlock()
}

// IsOpen reports whether the order still has quantity to trade.
func (o *Order) IsOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open
}

// IsClosed is the negation of IsOpen.
func (o *Order) IsClosed() bool { return !o.IsOpen() }

// Trades returns a copy of the recorded fills, in no particular order.
func (o *Order) Trades() []Trade {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Trade, 0, len(o.trades))
	for _, t := range o.trades {
		out = append(out, t)
	}
	return out
}

// TradeCount returns the number of recorded fills.
func (o *Order) TradeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.trades)
}

// sameIdentity implements the duplicate-submission identity: client order
// id plus instrument plus side.
func (o *Order) sameIdentity(other *Order) bool {
	return o.clientOrderID == other.clientOrderID &&
		o.instrument.Equal(other.instrument) &&
		o.side == other.side
}

// Fill applies one execution. The running average stays the quantity
// weighted mean of every recorded fill price. A zero remaining quantity
// yields ErrOrderClosed and a negative one ErrOverFilled; both mark the
// order closed without recording a trade.
func (o *Order) Fill(tradeID int64, price, qty float64, counterpartyClientID string) (Trade, error) {
	if math.IsNaN(qty) || math.IsInf(qty, 0) || qty <= 0 {
		return Trade{}, fmt.Errorf("%w: fill quantity %v must be positive and finite", ErrInvalidOrder, qty)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.leavesQty == 0 {
		o.open = false
		return Trade{}, fmt.Errorf("%w: clOrdId=%s orderId=%d", ErrOrderClosed, o.clientOrderID, o.orderID)
	}
	if o.leavesQty < 0 {
		o.open = false
		return Trade{}, fmt.Errorf("%w: clOrdId=%s orderId=%d leaves=%v", ErrOverFilled, o.clientOrderID, o.orderID, o.leavesQty)
	}

	o.avgFillPrice = (o.avgFillPrice*o.cumQty + price*qty) / (o.cumQty + qty)
	o.lastFillPx = price
	o.lastFillQty = qty
	o.cumQty += qty
	o.leavesQty -= qty

	trade := Trade{
		OrderID:              o.orderID,
		Instrument:           o.instrument,
		Price:                price,
		Quantity:             qty,
		Side:                 o.side,
		TradeID:              tradeID,
		CounterpartyClientID: counterpartyClientID,
	}
	o.trades[tradeID] = trade
	o.open = o.leavesQty > 0
	return trade, nil
}

// Rollback compensates a previous fill, restoring quantity and reversing
// the average so the order stays consistent with its trade history. The
// matching path does not call this today.
func (o *Order) Rollback(tradeID int64, price, qty float64, counterpartyClientID string) (Trade, error) {
	if math.IsNaN(qty) || math.IsInf(qty, 0) || qty <= 0 {
		return Trade{}, fmt.Errorf("%w: rollback quantity %v must be positive and finite", ErrInvalidOrder, qty)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if qty > o.cumQty {
		return Trade{}, fmt.Errorf("%w: rollback quantity %v exceeds cumulative %v", ErrInvalidOrder, qty, o.cumQty)
	}

	remainingCum := o.cumQty - qty
	if remainingCum == 0 {
		o.avgFillPrice = 0
	} else {
		o.avgFillPrice = (o.avgFillPrice*o.cumQty - price*qty) / remainingCum
	}
	o.lastFillPx = price
	o.lastFillQty = qty
	o.cumQty = remainingCum
	o.leavesQty += qty

	trade := Trade{
		OrderID:              o.orderID,
		Instrument:           o.instrument,
		Price:                price,
		Quantity:             qty,
		Side:                 o.side,
		TradeID:              tradeID,
		CounterpartyClientID: counterpartyClientID,
	}
	o.trades[tradeID] = trade
	o.open = o.leavesQty > 0
	return trade, nil
}

// Copy returns a fully independent snapshot, including the trade history,
// so book internals are never exposed as mutable aliases.
func (o *Order) Copy() *Order {
	o.mu.Lock()
	defer o.mu.Unlock()
	dup := &Order{
		clientOrderID: o.clientOrderID,
		orderID:       o.orderID,
		instrument:    o.instrument,
		side:          o.side,
		orderType:     o.orderType,
		limitPrice:    o.limitPrice,
		avgFillPrice:  o.avgFillPrice,
		lastFillPx:    o.lastFillPx,
		orderedQty:    o.orderedQty,
		cumQty:        o.cumQty,
		leavesQty:     o.leavesQty,
		lastFillQty:   o.lastFillQty,
		visibleQty:    o.visibleQty,
		receivedAt:    o.receivedAt,
		executedAt:    o.executedAt,
		open:          o.open,
		trades:        make(map[int64]Trade, len(o.trades)),
	}
	for id, t := range o.trades {
		dup.trades[id] = t
	}
	return dup
}

func (o *Order) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fmt.Sprintf("Order{clOrdId=%s, orderId=%d, instrument=%s, side=%s, type=%s, px=%v, qty=%v, leaves=%v, cum=%v, avgPx=%v, open=%t}",
		o.clientOrderID, o.orderID, o.instrument.Name, o.side, o.orderType,
		o.limitPrice, o.orderedQty, o.leavesQty, o.cumQty, o.avgFillPrice, o.open)
}
