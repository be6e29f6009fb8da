package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"matchbook/refdata"
)

// InstrumentSource is the reference-data collaborator: lookup by name and
// the startup listing used to pre-warm one book per instrument.
type InstrumentSource interface {
	Lookup(name string) (refdata.Instrument, error)
	All() []refdata.Instrument
}

// Engine is the submission entry point. It validates incoming orders,
// assigns process-wide monotonic order ids, and dispatches each order to
// its instrument's book lane. Books are created lazily on first reference
// and cached for the process lifetime.
type Engine struct {
	source InstrumentSource
	log    *zap.Logger

	mu    sync.RWMutex
	books map[string]*OrderBook

	orderSeq atomic.Int64
	closed   atomic.Bool
}

// New builds an engine over the given reference data and pre-warms a book
// for every known instrument.
func New(source InstrumentSource, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		source: source,
		log:    log.Named("engine"),
		books:  make(map[string]*OrderBook),
	}
	for _, inst := range source.All() {
		e.Book(inst)
	}
	return e
}

// Book returns the order book for an instrument, creating it on first use.
func (e *Engine) Book(inst refdata.Instrument) *OrderBook {
	e.mu.RLock()
	book, ok := e.books[inst.Name]
	e.mu.RUnlock()
	if ok {
		return book
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if book, ok = e.books[inst.Name]; ok {
		return book
	}
	book = NewOrderBook(inst, e.log)
	// A book materialized after Close must not accept submissions.
	if e.closed.Load() {
		book.Close()
	}
	e.books[inst.Name] = book
	return book
}

// BookByName resolves an instrument through the reference data and returns
// its book.
func (e *Engine) BookByName(name string) (*OrderBook, error) {
	inst, err := e.source.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownInstrument, err)
	}
	return e.Book(inst), nil
}

// SubmitOrder validates the order, assigns its engine order id, and hands
// it to the instrument's matching lane. Construction-time and boundary
// rejections return synchronously; the channel resolves with the order's
// terminal snapshot once the matching pass completes.
func (e *Engine) SubmitOrder(order *Order) (<-chan Result, error) {
	if order == nil {
		return nil, ErrNilOrder
	}
	if !order.Side().Valid() {
		e.log.Error("invalid side", zap.Stringer("side", order.Side()),
			zap.String("clOrdId", order.ClientOrderID()))
		return nil, fmt.Errorf("%w: %s", ErrInvalidSide, order.Side())
	}
	if !order.Type().Valid() {
		e.log.Error("invalid order type", zap.Stringer("orderType", order.Type()),
			zap.String("clOrdId", order.ClientOrderID()))
		return nil, fmt.Errorf("%w: %s", ErrInvalidOrderType, order.Type())
	}

	inst, err := e.source.Lookup(order.Instrument().Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownInstrument, err)
	}
	book := e.Book(inst)

	order.assignID(e.orderSeq.Add(1))
	e.log.Info("order accepted",
		zap.String("clOrdId", order.ClientOrderID()),
		zap.Stringer("side", order.Side()),
		zap.Float64("price", order.LimitPrice()),
		zap.Float64("qty", order.OrderedQty()),
		zap.Int64("orderId", order.OrderID()))

	return book.Process(order), nil
}

// AddOrder is the fire-and-forget wrapper around SubmitOrder: the matching
// outcome is drained in the background and failures are only logged.
func (e *Engine) AddOrder(order *Order) error {
	result, err := e.SubmitOrder(order)
	if err != nil {
		return err
	}
	go func() {
		if res := <-result; res.Err != nil {
			e.log.Error("asynchronous submission failed",
				zap.String("clOrdId", order.ClientOrderID()), zap.Error(res.Err))
		}
	}()
	return nil
}

// CancelOrder always fails: cancellation is not supported by this engine.
func (e *Engine) CancelOrder(*Order) error {
	return fmt.Errorf("%w: order cancellation", ErrUnsupported)
}

// AmendOrder always fails: amendment is not supported by this engine.
func (e *Engine) AmendOrder(*Order) error {
	return fmt.Errorf("%w: order amendment", ErrUnsupported)
}

// Close stops every book lane. Submissions after Close resolve with
// ErrBookClosed.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, book := range e.books {
		book.Close()
	}
}
