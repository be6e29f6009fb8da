package engine

import (
	"errors"
	"math"

	"go.uber.org/zap"
)

// crossingProcessor walks the opposite side of the book for a newly
// admitted order and turns crossing orders into trades. It runs only on
// the owning book's lane, so a full matching pass is never interleaved
// with another for the same instrument.
type crossingProcessor struct {
	book *OrderBook
	log  *zap.Logger
}

func newCrossingProcessor(book *OrderBook, log *zap.Logger) *crossingProcessor {
	return &crossingProcessor{book: book, log: log.Named("crossing")}
}

// processOrder runs one matching pass for an order already inserted into
// its own side by setOrder. The order keeps matching at progressively
// worse opposite prices until it is filled, closed, or no marketable
// price remains; leftover quantity stays resting where it was inserted.
func (cp *crossingProcessor) processOrder(order *Order) {
	lvl := cp.book.bestOppositeLevel(order.Side())
	if lvl == nil {
		cp.log.Debug("no opposite orders exist",
			zap.String("clOrdId", order.ClientOrderID()), zap.Stringer("side", order.Side()))
		return
	}

	for order.LeavesQty() > 0 && lvl != nil && len(lvl.orders) > 0 {
		if order.IsClosed() {
			break
		}
		if math.IsNaN(cp.book.bestOppositePrice(order)) {
			break
		}

		if !cp.executeAgainst(order, lvl) {
			// A pass without a single fill (everything skipped) can never
			// progress; leave the remainder resting.
			break
		}

		if order.LeavesQty() > 0 && len(lvl.orders) == 0 {
			lvl = cp.book.bestOppositeLevel(order.Side())
		}
	}
}

// executeAgainst matches the aggressor against one price level in strict
// arrival order, removing resting orders as they are exhausted. It reports
// whether any fill happened.
func (cp *crossingProcessor) executeAgainst(aggressor *Order, lvl *priceLevel) bool {
	filled := false
	i := 0
	for i < len(lvl.orders) && aggressor.LeavesQty() > 0 {
		resting := lvl.orders[i]

		// Two market orders cannot establish a price.
		if aggressor.Type() == Market && resting.Type() == Market {
			cp.log.Debug("both orders are MARKET, no price can be established",
				zap.String("aggressor", aggressor.ClientOrderID()),
				zap.String("resting", resting.ClientOrderID()))
			i++
			continue
		}
		if !crossable(aggressor, resting) {
			i++
			continue
		}

		matchQty := math.Min(aggressor.LeavesQty(), resting.LeavesQty())
		if matchQty <= 0 {
			cp.log.Warn("match quantity not positive, no matching found",
				zap.Float64("matchQty", matchQty),
				zap.String("aggressor", aggressor.ClientOrderID()),
				zap.String("resting", resting.ClientOrderID()))
			i++
			continue
		}
		matchPx := matchPrice(aggressor, resting)

		cp.fillBoth(aggressor, resting, matchPx, matchQty)
		filled = true

		switch {
		case resting.LeavesQty() == 0:
			lvl.orders = append(lvl.orders[:i], lvl.orders[i+1:]...)
		case resting.LeavesQty() < 0:
			cp.log.Error("resting order over executed, check fill logic", zap.Stringer("order", resting))
			lvl.orders = append(lvl.orders[:i], lvl.orders[i+1:]...)
		default:
			i++
		}

		if aggressor.LeavesQty() == 0 {
			removed := cp.book.removeOrder(aggressor)
			cp.log.Debug("aggressor fully filled",
				zap.Bool("removedFromBook", removed),
				zap.String("clOrdId", aggressor.ClientOrderID()),
				zap.Int64("orderId", aggressor.OrderID()))
		} else if aggressor.LeavesQty() < 0 {
			cp.log.Warn("aggressor over executed, check fill logic", zap.Stringer("order", aggressor))
			cp.book.removeOrder(aggressor)
		}
	}
	return filled
}

func (cp *crossingProcessor) fillBoth(aggressor, resting *Order, price, qty float64) {
	aggTrade, err := aggressor.Fill(cp.book.generateTradeID(), price, qty, resting.ClientOrderID())
	if err != nil {
		cp.logFillAnomaly(err, aggressor)
	}
	passTrade, perr := resting.Fill(cp.book.generateTradeID(), price, qty, aggressor.ClientOrderID())
	if perr != nil {
		cp.logFillAnomaly(perr, resting)
	}

	ts := cp.book.now().UnixNano()
	aggressor.setExecutedAt(ts)
	resting.setExecutedAt(ts)

	if err == nil {
		cp.book.publishTrade(aggTrade)
	}
	if perr == nil {
		cp.book.publishTrade(passTrade)
	}
}

func (cp *crossingProcessor) logFillAnomaly(err error, order *Order) {
	switch {
	case errors.Is(err, ErrOrderClosed):
		cp.log.Info("fill attempted on closed order", zap.Stringer("order", order))
	case errors.Is(err, ErrOverFilled):
		cp.log.Error("order over filled, forced closed", zap.Stringer("order", order))
	default:
		cp.log.Error("fill failed", zap.Error(err), zap.Stringer("order", order))
	}
}

// crossable reports whether a trade between the aggressor and a resting
// order is price-compatible: either side is a market order, the aggressor
// carries price zero (a market indicator), or the limit prices cross.
func crossable(aggressor, resting *Order) bool {
	if aggressor.Type() == Market || resting.Type() == Market {
		return true
	}
	if aggressor.LimitPrice() == 0 {
		return true
	}
	if aggressor.Side() == Buy {
		return aggressor.LimitPrice() >= resting.LimitPrice()
	}
	return aggressor.LimitPrice() <= resting.LimitPrice()
}

// matchPrice picks the execution price for a crossing pair. The resting
// order's price wins whenever it is a limit order, honoring standing
// price-time priority; only a market resting order takes the aggressor's
// limit price.
func matchPrice(aggressor, resting *Order) float64 {
	if aggressor.Type() == Market || resting.Type() == Limit {
		return resting.LimitPrice()
	}
	return aggressor.LimitPrice()
}
