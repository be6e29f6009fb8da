package engine

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"matchbook/refdata"
)

const (
	levelTreeDegree = 32
	tradeStreamSize = 256
)

// priceLevel holds the resting orders at one price in arrival order.
type priceLevel struct {
	price  float64
	orders []*Order
}

// LevelView is a read-only snapshot of one price level.
type LevelView struct {
	Price  float64
	Orders []*Order
}

// Result resolves a submission with the terminal snapshot of the order
// after its matching pass, or with a rejection.
type Result struct {
	Order *Order
	Err   error
}

type requestType int

const (
	reqSubmit requestType = iota
	reqBestSide
	reqLevels
	reqHistory
	reqGetOrder
	reqStop
)

type bookRequest struct {
	typ    requestType
	order  *Order
	side   Side
	max    int
	id     int64
	result chan Result
	orders chan []*Order
	levels chan []LevelView
}

// OrderBook owns every order for one instrument. All mutation of the
// price-level trees and the history index happens on a single lane
// goroutine, so matching for an instrument is strictly linearized;
// read requests travel through the same lane and therefore never observe
// a level mid-mutation.
type OrderBook struct {
	instrument refdata.Instrument

	bids    *btree.Map[float64, *priceLevel]
	asks    *btree.Map[float64, *priceLevel]
	history map[int64]*Order

	tradeSeq atomic.Int64
	crossing *crossingProcessor

	reqCh  chan bookRequest
	done   chan struct{}
	trades chan Trade

	now func() time.Time
	log *zap.Logger
}

// NewOrderBook builds a book for the instrument and launches its lane.
func NewOrderBook(inst refdata.Instrument, log *zap.Logger) *OrderBook {
	if log == nil {
		log = zap.NewNop()
	}
	ob := &OrderBook{
		instrument: inst,
		bids:       btree.NewMap[float64, *priceLevel](levelTreeDegree),
		asks:       btree.NewMap[float64, *priceLevel](levelTreeDegree),
		history:    make(map[int64]*Order),
		reqCh:      make(chan bookRequest),
		done:       make(chan struct{}),
		trades:     make(chan Trade, tradeStreamSize),
		now:        time.Now,
		log:        log.With(zap.String("instrument", inst.Name)),
	}
	ob.tradeSeq.Store(time.Now().UnixNano())
	ob.crossing = newCrossingProcessor(ob, ob.log)
	go ob.run()
	return ob
}

// Instrument returns the instrument this book trades.
func (ob *OrderBook) Instrument() refdata.Instrument { return ob.instrument }

// Process admits an order and schedules its matching pass on the lane. The
// returned channel resolves once with the order's terminal snapshot for
// this pass, or with a rejection such as a duplicate submission.
func (ob *OrderBook) Process(order *Order) <-chan Result {
	result := make(chan Result, 1)
	req := bookRequest{typ: reqSubmit, order: order, result: result}
	select {
	case ob.reqCh <- req:
	case <-ob.done:
		result <- Result{Err: ErrBookClosed}
	}
	return result
}

// BestBid returns snapshots of the orders resting at the best bid price in
// arrival order, empty when the bid side is exhausted.
func (ob *OrderBook) BestBid() []*Order { return ob.bestSide(Buy) }

// BestAsk returns snapshots of the orders resting at the best ask price in
// arrival order, empty when the ask side is exhausted.
func (ob *OrderBook) BestAsk() []*Order { return ob.bestSide(Sell) }

func (ob *OrderBook) bestSide(side Side) []*Order {
	orders := make(chan []*Order, 1)
	req := bookRequest{typ: reqBestSide, side: side, orders: orders}
	select {
	case ob.reqCh <- req:
		return <-orders
	case <-ob.done:
		return nil
	}
}

// Levels returns up to max price levels for one side, best first, with
// order snapshots in arrival order. max <= 0 returns every level.
func (ob *OrderBook) Levels(side Side, max int) []LevelView {
	levels := make(chan []LevelView, 1)
	req := bookRequest{typ: reqLevels, side: side, max: max, levels: levels}
	select {
	case ob.reqCh <- req:
		return <-levels
	case <-ob.done:
		return nil
	}
}

// OrderHistory returns snapshots of every order ever admitted, filled or
// resting, in no particular order.
func (ob *OrderBook) OrderHistory() []*Order {
	orders := make(chan []*Order, 1)
	req := bookRequest{typ: reqHistory, orders: orders}
	select {
	case ob.reqCh <- req:
		return <-orders
	case <-ob.done:
		return nil
	}
}

// GetOrder returns a snapshot of the order with the engine-assigned id.
func (ob *OrderBook) GetOrder(id int64) (*Order, error) {
	orders := make(chan []*Order, 1)
	req := bookRequest{typ: reqGetOrder, id: id, orders: orders}
	select {
	case ob.reqCh <- req:
	case <-ob.done:
		return nil, ErrBookClosed
	}
	found := <-orders
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: orderId=%d", ErrOrderNotFound, id)
	}
	return found[0], nil
}

// Trades exposes the stream of executed fills, two records per match. The
// stream is best effort: slow consumers drop records rather than stall
// matching.
func (ob *OrderBook) Trades() <-chan Trade {
	return ob.trades
}

// Close stops the lane. Pending and later requests resolve with
// ErrBookClosed.
func (ob *OrderBook) Close() {
	select {
	case ob.reqCh <- bookRequest{typ: reqStop}:
	case <-ob.done:
	}
}

func (ob *OrderBook) run() {
	for req := range ob.reqCh {
		switch req.typ {
		case reqSubmit:
			req.result <- ob.handleSubmit(req.order)
		case reqBestSide:
			req.orders <- copyOrders(ob.bestLevelOrders(req.side))
		case reqLevels:
			req.levels <- ob.levelViews(req.side, req.max)
		case reqHistory:
			all := make([]*Order, 0, len(ob.history))
			for _, o := range ob.history {
				all = append(all, o.Copy())
			}
			req.orders <- all
		case reqGetOrder:
			if o, ok := ob.history[req.id]; ok {
				req.orders <- []*Order{o.Copy()}
			} else {
				req.orders <- nil
			}
		case reqStop:
			close(ob.done)
			close(ob.trades)
			return
		}
	}
}

func (ob *OrderBook) handleSubmit(order *Order) Result {
	if !ob.setOrder(order) {
		return Result{Err: fmt.Errorf("%w: clOrdId=%s side=%s", ErrDuplicateOrder, order.ClientOrderID(), order.Side())}
	}
	ob.crossing.processOrder(order)
	return Result{Order: order.Copy()}
}

// setOrder records the order in the history index and appends it to its
// side's price level, rejecting a duplicate identity at that level.
func (ob *OrderBook) setOrder(order *Order) bool {
	ob.history[order.OrderID()] = order

	tree := ob.treeFor(order.Side())
	if tree == nil {
		ob.log.Error("unidentified side, order not admitted", zap.Stringer("order", order))
		return false
	}
	lvl, ok := tree.Get(order.LimitPrice())
	if !ok {
		lvl = &priceLevel{price: order.LimitPrice()}
		tree.Set(lvl.price, lvl)
	}
	for _, resting := range lvl.orders {
		if resting.sameIdentity(order) {
			ob.log.Error("duplicate order received",
				zap.String("clOrdId", order.ClientOrderID()),
				zap.Stringer("side", order.Side()),
				zap.Float64("price", order.LimitPrice()))
			return false
		}
	}
	order.setReceivedAt(ob.now().UnixNano())
	lvl.orders = append(lvl.orders, order)
	return true
}

func (ob *OrderBook) treeFor(side Side) *btree.Map[float64, *priceLevel] {
	switch side {
	case Buy:
		return ob.bids
	case Sell:
		return ob.asks
	default:
		return nil
	}
}

// bestLevel walks from the best price towards worse ones, pruning levels
// whose order list has been emptied, and returns the first live level.
func (ob *OrderBook) bestLevel(side Side) *priceLevel {
	tree := ob.treeFor(side)
	for {
		var (
			price float64
			lvl   *priceLevel
			ok    bool
		)
		if side == Buy {
			price, lvl, ok = tree.Max()
		} else {
			price, lvl, ok = tree.Min()
		}
		if !ok {
			return nil
		}
		if len(lvl.orders) > 0 {
			return lvl
		}
		tree.Delete(price)
	}
}

func (ob *OrderBook) bestLevelOrders(side Side) []*Order {
	lvl := ob.bestLevel(side)
	if lvl == nil {
		return nil
	}
	return lvl.orders
}

// bestOppositeLevel returns the live level an order of the given side
// would match against.
func (ob *OrderBook) bestOppositeLevel(side Side) *priceLevel {
	return ob.bestLevel(side.Opposite())
}

// bestOppositePrice returns the best opposite price only when it is
// marketable against the order's limit: a bid must reach the best ask and
// an ask must not exceed the best bid. NaN means no acceptable price.
func (ob *OrderBook) bestOppositePrice(order *Order) float64 {
	if order.Side() == Buy {
		best := ob.bestPrice(Sell)
		if math.IsNaN(best) || order.LimitPrice() < best {
			ob.log.Debug("buy price below best opposite",
				zap.Float64("orderPx", order.LimitPrice()), zap.Float64("bestAsk", best))
			return math.NaN()
		}
		return best
	}
	best := ob.bestPrice(Buy)
	if math.IsNaN(best) || order.LimitPrice() > best {
		ob.log.Debug("sell price above best opposite",
			zap.Float64("orderPx", order.LimitPrice()), zap.Float64("bestBid", best))
		return math.NaN()
	}
	return best
}

func (ob *OrderBook) bestPrice(side Side) float64 {
	if lvl := ob.bestLevel(side); lvl != nil {
		return lvl.price
	}
	return math.NaN()
}

// removeOrder takes the order out of its side's level, pruning the level
// when it empties. Reports whether book state actually changed.
func (ob *OrderBook) removeOrder(order *Order) bool {
	tree := ob.treeFor(order.Side())
	if tree == nil {
		ob.log.Error("unidentified side on removal", zap.Stringer("order", order))
		return false
	}
	if tree.Len() == 0 {
		ob.log.Error("side empty on removal, potential race indication", zap.Stringer("order", order))
		return false
	}
	price := order.LimitPrice()
	lvl, ok := tree.Get(price)
	if !ok {
		return false
	}
	removed := false
	kept := lvl.orders[:0]
	for _, resting := range lvl.orders {
		if !removed && resting.sameIdentity(order) {
			removed = true
			continue
		}
		kept = append(kept, resting)
	}
	lvl.orders = kept
	if len(lvl.orders) == 0 {
		tree.Delete(price)
	}
	return removed
}

// generateTradeID returns ids unique and increasing within the process,
// a monotonic counter seeded from the startup clock.
func (ob *OrderBook) generateTradeID() int64 {
	return ob.tradeSeq.Add(1)
}

func (ob *OrderBook) publishTrade(trade Trade) {
	select {
	case ob.trades <- trade:
	default:
		ob.log.Debug("trade stream full, dropping record", zap.Int64("tradeId", trade.TradeID))
	}
}

func (ob *OrderBook) levelViews(side Side, max int) []LevelView {
	tree := ob.treeFor(side)
	if tree == nil {
		return nil
	}
	views := make([]LevelView, 0, max)
	collect := func(price float64, lvl *priceLevel) bool {
		if len(lvl.orders) == 0 {
			return true
		}
		views = append(views, LevelView{Price: price, Orders: copyOrders(lvl.orders)})
		return max <= 0 || len(views) < max
	}
	if side == Buy {
		tree.Reverse(collect)
	} else {
		tree.Scan(collect)
	}
	return views
}

func copyOrders(orders []*Order) []*Order {
	out := make([]*Order, len(orders))
	for i, o := range orders {
		out[i] = o.Copy()
	}
	return out
}
