package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedAsks rests the canonical three-seller book used across crossing tests:
// 100@20.30, 100@20.25, 200@20.30.
func seedAsks(f *bookFixture) (s1, s2, s3 *Order) {
	s1, _ = f.submit("s1", Sell, 20.30, 100)
	s2, _ = f.submit("s2", Sell, 20.25, 100)
	s3, _ = f.submit("s3", Sell, 20.30, 200)
	return s1, s2, s3
}

func TestNonCrossingBuysRest(t *testing.T) {
	f := newBookFixture(t)
	seedAsks(f)

	_, res := f.submit("b1", Buy, 20.15, 100)
	require.NoError(t, res.Err)
	assert.Equal(t, 100.0, res.Order.LeavesQty())

	_, res = f.submit("b2", Buy, 20.20, 200)
	require.NoError(t, res.Err)
	assert.Equal(t, 200.0, res.Order.LeavesQty())

	assert.Len(t, f.ob.Levels(Buy, 0), 2)
	assert.Len(t, f.ob.Levels(Sell, 0), 2)
}

func TestAggressorFillsAtPassivePrice(t *testing.T) {
	f := newBookFixture(t)
	_, s2, _ := seedAsks(f)

	// The buy is willing to pay 20.30 but the best ask is 20.25; the
	// resting price wins.
	b, res := f.submit("b1", Buy, 20.30, 100)
	require.NoError(t, res.Err)

	assert.True(t, res.Order.IsClosed())
	assert.Equal(t, 100.0, res.Order.CumQty())
	assert.Equal(t, 20.25, res.Order.AvgFillPrice())
	assert.Equal(t, 20.25, res.Order.LastFillPrice())

	assert.True(t, s2.IsClosed())

	// The 20.25 level is consumed and the filled buy never rests.
	askLevels := f.ob.Levels(Sell, 0)
	require.Len(t, askLevels, 1)
	assert.Equal(t, 20.30, askLevels[0].Price)
	assert.Empty(t, f.ob.Levels(Buy, 0))

	_, err := f.ob.GetOrder(b.OrderID())
	require.NoError(t, err)
}

func TestFIFOWithinPriceLevel(t *testing.T) {
	f := newBookFixture(t)
	s1, _, s3 := seedAsks(f)
	f.submit("b0", Buy, 20.30, 100) // clears the 20.25 level

	// 150 against level 20.30: s1 arrived first and fills completely,
	// s3 only partially.
	_, res := f.submit("b1", Buy, 20.30, 150)
	require.NoError(t, res.Err)
	require.True(t, res.Order.IsClosed())
	assert.InDelta(t, 20.30, res.Order.AvgFillPrice(), 1e-9)
	assert.Equal(t, 2, res.Order.TradeCount())

	assert.True(t, s1.IsClosed())
	assert.Equal(t, 100.0, s1.CumQty())
	assert.True(t, s3.IsOpen())
	assert.Equal(t, 50.0, s3.CumQty())
	assert.Equal(t, 150.0, s3.LeavesQty())

	best := f.ob.BestAsk()
	require.Len(t, best, 1)
	assert.Equal(t, "s3", best[0].ClientOrderID())
}

func TestAggressorWalksPriceLevels(t *testing.T) {
	f := newBookFixture(t)
	seedAsks(f)

	_, res := f.submit("b1", Buy, 20.30, 250)
	require.NoError(t, res.Err)
	require.True(t, res.Order.IsClosed())

	// 100 at 20.25 then 100 and 50 at 20.30.
	assert.Equal(t, 250.0, res.Order.CumQty())
	assert.InDelta(t, (20.25*100+20.30*150)/250, res.Order.AvgFillPrice(), 1e-9)
	assert.Equal(t, 3, res.Order.TradeCount())

	best := f.ob.BestAsk()
	require.Len(t, best, 1)
	assert.Equal(t, "s3", best[0].ClientOrderID())
	assert.Equal(t, 150.0, best[0].LeavesQty())
}

func TestPartialFillRestsRemainder(t *testing.T) {
	f := newBookFixture(t)
	f.submit("s1", Sell, 20.25, 100)

	_, res := f.submit("b1", Buy, 20.30, 400)
	require.NoError(t, res.Err)

	assert.True(t, res.Order.IsOpen())
	assert.Equal(t, 100.0, res.Order.CumQty())
	assert.Equal(t, 300.0, res.Order.LeavesQty())
	assert.Equal(t, 20.25, res.Order.AvgFillPrice())

	// The remainder rests at the aggressor's own limit price.
	best := f.ob.BestBid()
	require.Len(t, best, 1)
	assert.Equal(t, "b1", best[0].ClientOrderID())
	assert.Equal(t, 20.30, best[0].LimitPrice())
	assert.Empty(t, f.ob.BestAsk())
}

func TestMarketSellSweepsBids(t *testing.T) {
	f := newBookFixture(t)
	f.submit("b1", Buy, 20.20, 100)
	f.submit("b2", Buy, 20.15, 100)

	_, res := f.submitMarket("m1", Sell, 150)
	require.NoError(t, res.Err)
	require.True(t, res.Order.IsClosed())

	assert.Equal(t, 150.0, res.Order.CumQty())
	assert.InDelta(t, (20.20*100+20.15*50)/150, res.Order.AvgFillPrice(), 1e-9)

	best := f.ob.BestBid()
	require.Len(t, best, 1)
	assert.Equal(t, "b2", best[0].ClientOrderID())
	assert.Equal(t, 50.0, best[0].LeavesQty())
}

func TestMarketBuyRestsAgainstLimitAsks(t *testing.T) {
	f := newBookFixture(t)
	f.submit("s1", Sell, 20.25, 100)

	// A market buy carries price zero, which never reaches the best ask,
	// so it rests instead of matching.
	_, res := f.submitMarket("m1", Buy, 100)
	require.NoError(t, res.Err)

	assert.True(t, res.Order.IsOpen())
	assert.Equal(t, 0.0, res.Order.CumQty())

	bidLevels := f.ob.Levels(Buy, 0)
	require.Len(t, bidLevels, 1)
	assert.Equal(t, 0.0, bidLevels[0].Price)
	assert.Len(t, f.ob.BestAsk(), 1)
}

func TestLimitBuyTakesOutRestingMarketSell(t *testing.T) {
	f := newBookFixture(t)
	_, res := f.submitMarket("m1", Sell, 100)
	require.NoError(t, res.Err)
	require.True(t, res.Order.IsOpen())

	// A resting market order has no price of its own; the aggressor's
	// limit price applies.
	_, res = f.submit("b1", Buy, 20.10, 100)
	require.NoError(t, res.Err)

	assert.True(t, res.Order.IsClosed())
	assert.InDelta(t, 20.10, res.Order.AvgFillPrice(), 1e-9)
	assert.Empty(t, f.ob.BestAsk())
	assert.Empty(t, f.ob.BestBid())
}

func TestTwoMarketOrdersNeverMatch(t *testing.T) {
	f := newBookFixture(t)

	mb, res := f.submitMarket("mb", Buy, 100)
	require.NoError(t, res.Err)

	_, res = f.submitMarket("ms", Sell, 100)
	require.NoError(t, res.Err)

	assert.True(t, mb.IsOpen())
	assert.Equal(t, 0.0, mb.CumQty())
	assert.True(t, res.Order.IsOpen())
	assert.Equal(t, 0.0, res.Order.CumQty())

	assert.Len(t, f.ob.BestBid(), 1)
	assert.Len(t, f.ob.BestAsk(), 1)
}

func TestQuantityConservation(t *testing.T) {
	f := newBookFixture(t)

	f.submit("s1", Sell, 20.25, 70)
	f.submit("s2", Sell, 20.30, 130)
	f.submit("b1", Buy, 20.20, 50)
	f.submit("b2", Buy, 20.30, 160)
	f.submitMarket("m1", Sell, 40)

	var boughtQty, soldQty float64
	for _, o := range f.ob.OrderHistory() {
		assert.InDelta(t, o.OrderedQty(), o.CumQty()+o.LeavesQty(), 1e-9,
			"clOrdId=%s", o.ClientOrderID())
		if o.Side() == Buy {
			boughtQty += o.CumQty()
		} else {
			soldQty += o.CumQty()
		}
	}
	assert.InDelta(t, boughtQty, soldQty, 1e-9)
}

func TestTradePricesRespectLimits(t *testing.T) {
	f := newBookFixture(t)

	f.submit("s1", Sell, 20.25, 70)
	f.submit("s2", Sell, 20.30, 130)
	f.submit("b1", Buy, 20.35, 150)
	f.submit("b2", Buy, 20.20, 80)
	f.submitMarket("m1", Sell, 60)

	for _, o := range f.ob.OrderHistory() {
		if o.Type() != Limit {
			continue
		}
		for _, trade := range o.Trades() {
			if o.Side() == Buy {
				assert.LessOrEqual(t, trade.Price, o.LimitPrice(), "clOrdId=%s", o.ClientOrderID())
			} else {
				assert.GreaterOrEqual(t, trade.Price, o.LimitPrice(), "clOrdId=%s", o.ClientOrderID())
			}
		}
	}
}

func TestCrossableAndMatchPrice(t *testing.T) {
	buy := limitOrder(t, "b", Buy, 20.30, 100)
	sellAt := func(px float64) *Order { return limitOrder(t, "s", Sell, px, 100) }
	mktSell := marketOrder(t, "ms", Sell, 100)

	assert.True(t, crossable(buy, sellAt(20.30)))
	assert.True(t, crossable(buy, sellAt(20.25)))
	assert.False(t, crossable(buy, sellAt(20.35)))
	assert.True(t, crossable(buy, mktSell))
	assert.True(t, crossable(mktSell, buy))

	assert.Equal(t, 20.25, matchPrice(buy, sellAt(20.25)))
	assert.Equal(t, 20.30, matchPrice(mktSell, buy))
	assert.Equal(t, 20.30, matchPrice(buy, mktSell))
}
