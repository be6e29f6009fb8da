package engine

import "fmt"

// Side represents the direction of an order. The zero value is invalid so
// that an uninitialized order cannot slip past engine validation.
type Side int

const (
	// Buy indicates a bid order.
	Buy Side = iota + 1
	// Sell indicates an ask order.
	Sell
)

// Valid reports whether the side is one of the two supported directions.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an incoming order matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// ParseSide maps transport-level spellings onto a Side.
func ParseSide(value string) (Side, error) {
	switch value {
	case "BUY", "buy", "bid", "b", "B":
		return Buy, nil
	case "SELL", "sell", "ask", "s", "S":
		return Sell, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSide, value)
	}
}

// OrderType represents the execution style for an order. The zero value is
// invalid, mirroring Side.
type OrderType int

const (
	// Limit orders carry a price bound and rest on the book when unmatched.
	Limit OrderType = iota + 1
	// Market orders are willing to trade at any established opposite price.
	Market
)

// Valid reports whether the order type is supported.
func (t OrderType) Valid() bool {
	return t == Limit || t == Market
}

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	default:
		return fmt.Sprintf("OrderType(%d)", int(t))
	}
}

// ParseOrderType maps transport-level spellings onto an OrderType.
func ParseOrderType(value string) (OrderType, error) {
	switch value {
	case "LIMIT", "limit", "lmt":
		return Limit, nil
	case "MARKET", "market", "mkt":
		return Market, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOrderType, value)
	}
}
