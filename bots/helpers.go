package bots

import (
	"math"

	"matchbook/display"
)

// midPrice derives a working price from the book, falling back to the
// instrument's reference price while the book is empty.
func midPrice(depth display.Depth, reference float64) float64 {
	var bid, ask float64
	if len(depth.Bids) > 0 {
		bid = depth.Bids[0].Price
	}
	if len(depth.Asks) > 0 {
		ask = depth.Asks[0].Price
	}

	switch {
	case bid > 0 && ask > 0:
		return (bid + ask) / 2
	case bid > 0:
		return bid
	case ask > 0:
		return ask
	default:
		return reference
	}
}

// roundPrice snaps a price to cents so generated orders land on a small
// set of shared levels.
func roundPrice(px float64) float64 {
	return math.Round(px*100) / 100
}
