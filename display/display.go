// Package display renders read-only depth-of-book views. It is a consumer
// of the matching core, not part of it: everything here works from order
// snapshots and never touches live book state.
package display

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"matchbook/engine"
)

// Level aggregates the displayed quantity resting at one price.
type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Orders   int     `json:"orders"`
}

// Depth is a point-in-time view of the best levels on both sides.
type Depth struct {
	Instrument string  `json:"instrument"`
	Bids       []Level `json:"bids"`
	Asks       []Level `json:"asks"`
}

// DisplayedQty caps an order's shown size at its iceberg hint. Matching
// ignores the hint; only viewers see the reduced slice.
func DisplayedQty(order *engine.Order) float64 {
	if math.IsNaN(order.VisibleQty()) {
		return order.LeavesQty()
	}
	return math.Min(order.VisibleQty(), order.LeavesQty())
}

// BookDepth returns up to maxLevels aggregated price levels per side, best
// prices first.
func BookDepth(book *engine.OrderBook, maxLevels int) Depth {
	return Depth{
		Instrument: book.Instrument().Name,
		Bids:       aggregate(book.Levels(engine.Buy, maxLevels)),
		Asks:       aggregate(book.Levels(engine.Sell, maxLevels)),
	}
}

func aggregate(levels []engine.LevelView) []Level {
	out := make([]Level, 0, len(levels))
	for _, lvl := range levels {
		var qty float64
		for _, o := range lvl.Orders {
			qty += DisplayedQty(o)
		}
		if qty <= 0 {
			continue
		}
		out = append(out, Level{Price: lvl.Price, Quantity: qty, Orders: len(lvl.Orders)})
	}
	return out
}

// Ladder renders a fixed-width per-order view of the whole book: asks from
// the worst price down to the best, then bids from the best downwards, so
// the touch sits in the middle.
func Ladder(book *engine.OrderBook) string {
	var sb strings.Builder
	sb.WriteString("=================== ORDER BOOK ===================\n")
	sb.WriteString(fmt.Sprintf("instrument=%s\n", book.Instrument().Name))
	sb.WriteString(fmt.Sprintf("%-10s %-4s %-20s %12s %12s\n", "ID", "SIDE", "RECEIVED", "QTY", "PRICE"))

	asks := book.Levels(engine.Sell, 0)
	for i := len(asks) - 1; i >= 0; i-- {
		for _, o := range asks[i].Orders {
			sb.WriteString(ladderRow(o))
		}
	}
	for _, lvl := range book.Levels(engine.Buy, 0) {
		for _, o := range lvl.Orders {
			sb.WriteString(ladderRow(o))
		}
	}
	sb.WriteString("=============== END of ORDER BOOK ================\n")
	return sb.String()
}

func ladderRow(o *engine.Order) string {
	return fmt.Sprintf("%-10d %-4s %-20d %12s %12s\n",
		o.OrderID(), o.Side(), o.ReceivedAt(),
		formatQty(DisplayedQty(o)), formatPrice(o.LimitPrice()))
}

func formatPrice(px float64) string {
	return decimal.NewFromFloat(px).StringFixed(2)
}

func formatQty(qty float64) string {
	return decimal.NewFromFloat(qty).String()
}
