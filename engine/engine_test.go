package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/refdata"
)

func newTestEngine(t *testing.T, instruments ...refdata.Instrument) *Engine {
	t.Helper()
	cache := refdata.New(nil)
	for _, inst := range instruments {
		cache.Put(inst)
	}
	eng := New(cache, nil)
	t.Cleanup(eng.Close)
	return eng
}

func TestSubmitOrderAssignsIDAndMatches(t *testing.T) {
	eng := newTestEngine(t, testInstrument)

	sell := limitOrder(t, "s1", Sell, 20.25, 100)
	result, err := eng.SubmitOrder(sell)
	require.NoError(t, err)
	res := <-result
	require.NoError(t, res.Err)
	assert.Positive(t, res.Order.OrderID())

	buy := limitOrder(t, "b1", Buy, 20.25, 100)
	result, err = eng.SubmitOrder(buy)
	require.NoError(t, err)
	res = <-result
	require.NoError(t, res.Err)

	assert.True(t, res.Order.IsClosed())
	assert.Equal(t, 20.25, res.Order.AvgFillPrice())
	assert.Greater(t, buy.OrderID(), sell.OrderID())
}

func TestSubmitNilOrder(t *testing.T) {
	eng := newTestEngine(t, testInstrument)

	_, err := eng.SubmitOrder(nil)
	require.ErrorIs(t, err, ErrNilOrder)
}

func TestSubmitUnknownInstrument(t *testing.T) {
	eng := newTestEngine(t, testInstrument)

	o, err := NewOrder(OrderParams{
		ClientOrderID: "ghost",
		Instrument:    refdata.Instrument{Name: "NOPE"},
		Side:          Buy,
		Type:          Limit,
		LimitPrice:    10,
		Quantity:      10,
	})
	require.NoError(t, err)

	_, err = eng.SubmitOrder(o)
	require.ErrorIs(t, err, ErrUnknownInstrument)
}

func TestSubmitInvalidSideAndType(t *testing.T) {
	eng := newTestEngine(t, testInstrument)

	noSide, err := NewOrder(OrderParams{
		ClientOrderID: "no-side",
		Instrument:    testInstrument,
		Type:          Limit,
		LimitPrice:    10,
		Quantity:      10,
	})
	require.NoError(t, err)
	_, err = eng.SubmitOrder(noSide)
	require.ErrorIs(t, err, ErrInvalidSide)

	noType, err := NewOrder(OrderParams{
		ClientOrderID: "no-type",
		Instrument:    testInstrument,
		Side:          Buy,
		LimitPrice:    10,
		Quantity:      10,
	})
	require.NoError(t, err)
	_, err = eng.SubmitOrder(noType)
	require.ErrorIs(t, err, ErrInvalidOrderType)
}

func TestBooksAreFlyweights(t *testing.T) {
	eng := newTestEngine(t, testInstrument)

	first := eng.Book(testInstrument)
	second := eng.Book(testInstrument)
	assert.Same(t, first, second)

	byName, err := eng.BookByName(testInstrument.Name)
	require.NoError(t, err)
	assert.Same(t, first, byName)

	_, err = eng.BookByName("NOPE")
	require.ErrorIs(t, err, ErrUnknownInstrument)
}

func TestInstrumentsMatchIndependently(t *testing.T) {
	bac := refdata.Instrument{Name: "BAC", ReferencePrice: 20.25}
	csco := refdata.Instrument{Name: "CSCO", ReferencePrice: 44.10}
	eng := newTestEngine(t, bac, csco)

	submit := func(clOrdID string, inst refdata.Instrument, side Side, px, qty float64) Result {
		o, err := NewOrder(OrderParams{
			ClientOrderID: clOrdID, Instrument: inst, Side: side,
			Type: Limit, LimitPrice: px, Quantity: qty,
		})
		require.NoError(t, err)
		result, err := eng.SubmitOrder(o)
		require.NoError(t, err)
		return <-result
	}

	require.NoError(t, submit("s1", bac, Sell, 20.25, 100).Err)
	require.NoError(t, submit("s1", csco, Sell, 44.10, 100).Err)

	// A crossing buy on one instrument never touches the other book.
	res := submit("b1", bac, Buy, 20.25, 100)
	require.NoError(t, res.Err)
	assert.True(t, res.Order.IsClosed())

	cscoAsks := eng.Book(csco).BestAsk()
	require.Len(t, cscoAsks, 1)
	assert.Equal(t, 100.0, cscoAsks[0].LeavesQty())
}

func TestAddOrderFireAndForget(t *testing.T) {
	eng := newTestEngine(t, testInstrument)

	o := limitOrder(t, "async", Buy, 20.15, 100)
	require.NoError(t, eng.AddOrder(o))

	book := eng.Book(testInstrument)
	require.Eventually(t, func() bool {
		_, err := book.GetOrder(o.OrderID())
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestCancelAndAmendUnsupported(t *testing.T) {
	eng := newTestEngine(t, testInstrument)
	o := limitOrder(t, "noop", Buy, 20.15, 100)

	require.ErrorIs(t, eng.CancelOrder(o), ErrUnsupported)
	require.ErrorIs(t, eng.AmendOrder(o), ErrUnsupported)
}

func TestBookCreatedAfterCloseIsStopped(t *testing.T) {
	cache := refdata.New(nil)
	cache.Put(testInstrument)
	eng := New(cache, nil)
	eng.Close()

	// A listing that appears after shutdown still resolves to a book, but
	// that book's lane never accepts work.
	late := refdata.Instrument{Name: "LATE", ReferencePrice: 10.00}
	cache.Put(late)

	book, err := eng.BookByName("LATE")
	require.NoError(t, err)

	o, err := NewOrder(OrderParams{
		ClientOrderID: "after-close",
		Instrument:    late,
		Side:          Buy,
		Type:          Limit,
		LimitPrice:    9.99,
		Quantity:      10,
	})
	require.NoError(t, err)
	res := <-book.Process(o)
	require.ErrorIs(t, res.Err, ErrBookClosed)
}

func TestEngineCloseStopsBooks(t *testing.T) {
	eng := newTestEngine(t, testInstrument)
	eng.Close()

	result, err := eng.SubmitOrder(limitOrder(t, "late", Buy, 20.15, 100))
	require.NoError(t, err)
	res := <-result
	require.ErrorIs(t, res.Err, ErrBookClosed)
}
