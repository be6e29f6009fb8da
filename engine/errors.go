package engine

import "errors"

var (
	// ErrUnknownInstrument rejects a submission whose instrument is not in
	// the reference data. The order never reaches a book.
	ErrUnknownInstrument = errors.New("engine: unknown instrument")

	// ErrInvalidSide rejects a malformed order side at the engine boundary.
	ErrInvalidSide = errors.New("engine: invalid order side")

	// ErrInvalidOrderType rejects a malformed order type at the engine boundary.
	ErrInvalidOrderType = errors.New("engine: invalid order type")

	// ErrInvalidOrder covers construction failures: a LIMIT order without a
	// finite price, or a non-positive quantity.
	ErrInvalidOrder = errors.New("engine: invalid order")

	// ErrNilOrder rejects a nil submission.
	ErrNilOrder = errors.New("engine: order must not be nil")

	// ErrDuplicateOrder rejects a second submission carrying an identity
	// (client order id, instrument, side) already resting at the same level.
	ErrDuplicateOrder = errors.New("engine: duplicate order")

	// ErrUnsupported is returned by cancel and amend, which this engine
	// deliberately does not implement.
	ErrUnsupported = errors.New("engine: operation not supported")

	// ErrOrderClosed signals a fill attempted on an order whose remaining
	// quantity is already zero. Indicates a logic error upstream.
	ErrOrderClosed = errors.New("engine: order already closed")

	// ErrOverFilled signals a remaining quantity below zero. Defensive
	// telemetry only; it must never occur under correct inputs.
	ErrOverFilled = errors.New("engine: order over filled")

	// ErrBookClosed is returned for submissions after a book's lane stopped.
	ErrBookClosed = errors.New("engine: order book closed")

	// ErrOrderNotFound is returned by history lookups for unknown order ids.
	ErrOrderNotFound = errors.New("engine: order not found")
)
