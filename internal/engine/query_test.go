package engine

import (
	"testing"

	"solex/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBook(t *testing.T, engine *Engine) {
	t.Helper()
	fund(t, engine, "mm", "1000", "100000")

	for _, o := range []struct{ price, qty string }{
		{"110", "20"}, {"100", "20"}, {"99", "20"}, {"200", "20"}, {"100", "5"},
	} {
		submit(t, engine, limit("mm", common.Sell, o.price, o.qty))
	}
	for _, o := range []struct{ price, qty string }{
		{"90", "20"}, {"95", "20"}, {"88", "20"}, {"95", "1.5"}, {"97", "3"},
	} {
		submit(t, engine, limit("mm", common.Buy, o.price, o.qty))
	}
}

func TestDepth(t *testing.T) {
	engine := newTestEngine(t)
	seedBook(t, engine)

	depth := engine.Depth()

	require.Len(t, depth.Asks, 4)
	wantAsks := []struct {
		price, qty string
		orders     int
	}{{"99", "20", 1}, {"100", "25", 2}, {"110", "20", 1}, {"200", "20", 1}}
	for i, want := range wantAsks {
		assertDecimal(t, want.price, depth.Asks[i].Price)
		assertDecimal(t, want.qty, depth.Asks[i].Quantity)
		assert.Equal(t, want.orders, depth.Asks[i].Orders)
	}

	require.Len(t, depth.Bids, 4)
	wantBids := []struct{ price, qty string }{{"97", "3"}, {"95", "21.5"}, {"90", "20"}, {"88", "20"}}
	for i, want := range wantBids {
		assertDecimal(t, want.price, depth.Bids[i].Price)
		assertDecimal(t, want.qty, depth.Bids[i].Quantity)
	}
}

func TestDepth_Truncated(t *testing.T) {
	engine := newTestEngine(t, func(cfg *Config) { cfg.DepthLevels = 2 })
	seedBook(t, engine)

	depth := engine.Depth()
	require.Len(t, depth.Asks, 2)
	require.Len(t, depth.Bids, 2)
	assertDecimal(t, "100", depth.Asks[1].Price)
	assertDecimal(t, "25", depth.Asks[1].Quantity)
	assertDecimal(t, "95", depth.Bids[1].Price)
}

func TestDepth_EmptyBook(t *testing.T) {
	depth := newTestEngine(t).Depth()
	assert.NotNil(t, depth.Bids)
	assert.NotNil(t, depth.Asks)
	assert.Empty(t, depth.Bids)
	assert.Empty(t, depth.Asks)
}

func TestDepth_ReflectsFills(t *testing.T) {
	engine := newTestEngine(t)
	seedBook(t, engine)
	fund(t, engine, "taker", "0", "10000")

	submit(t, engine, limit("taker", common.Buy, "100", "30"))

	asks := engine.Depth().Asks
	require.Len(t, asks, 3)
	assertDecimal(t, "100", asks[0].Price)
	assertDecimal(t, "15", asks[0].Quantity)
}

func TestOrderBookIsACopy(t *testing.T) {
	engine := newTestEngine(t)
	seedBook(t, engine)

	snapshot := engine.OrderBook()
	require.Len(t, snapshot.Asks, 5)
	require.Len(t, snapshot.Bids, 5)
	assertDecimal(t, "99", snapshot.Asks[0].Price)
	assertDecimal(t, "97", snapshot.Bids[0].Price)

	snapshot.Asks[0].Quantity = d("0")
	assertDecimal(t, "20", engine.OrderBook().Asks[0].Quantity)
}

func TestLatestPrice(t *testing.T) {
	engine := newTestEngine(t)
	assert.True(t, engine.LatestPrice(common.SOL).IsZero())
	assert.True(t, engine.LatestPrice(common.Asset("BTC")).IsZero())

	seedBook(t, engine)
	fund(t, engine, "taker", "30", "0")

	// 3 @ 97, 20 @ 95, 1.5 @ 95, then 0.5 rests at 95.
	fill := submit(t, engine, limit("taker", common.Sell, "95", "25"))
	require.Len(t, fill.Trades, 3)
	for i, want := range []struct{ price, qty string }{{"97", "3"}, {"95", "20"}, {"95", "1.5"}} {
		assertDecimal(t, want.price, fill.Trades[i].Price)
		assertDecimal(t, want.qty, fill.Trades[i].Quantity)
	}
	assertDecimal(t, "0.5", fill.RestingQuantity)
	assertDecimal(t, "95", engine.LatestPrice(common.SOL))
	assert.True(t, engine.LatestPrice(common.USDC).IsZero())
}

func TestQuote(t *testing.T) {
	engine := newTestEngine(t)
	seedBook(t, engine)

	quote, err := engine.Quote(common.Buy, d("30"), "")
	require.NoError(t, err)
	// 20 @ 99 + 10 @ 100
	assertDecimal(t, "2980", quote.Cost)
	assertDecimal(t, "99.3333333333333333", quote.AveragePrice.Truncate(16))
	assert.Equal(t, common.Buy, quote.Side)

	quote, err = engine.Quote(common.Sell, d("4"), "")
	require.NoError(t, err)
	// 3 @ 97 + 1 @ 95
	assertDecimal(t, "386", quote.Cost)
	assertDecimal(t, "96.5", quote.AveragePrice)

	_, err = engine.Quote(common.Buy, d("1000"), "")
	assert.ErrorIs(t, err, common.ErrNotEnoughLiquidity)
	_, err = engine.Quote(common.Buy, d("0"), "")
	assert.ErrorIs(t, err, common.ErrInvalidOrder)
	_, err = engine.Quote(common.Side(9), d("1"), "")
	assert.ErrorIs(t, err, common.ErrInvalidOrder)

	// Quoting never touches the book.
	assertDecimal(t, "20", engine.OrderBook().Asks[0].Quantity)
}

func TestQuote_SkipsOwnOrders(t *testing.T) {
	engine := newTestEngine(t, skipSelfMatch)
	seedBook(t, engine)
	fund(t, engine, "other", "10", "0")
	submit(t, engine, limit("other", common.Sell, "150", "10"))

	quote, err := engine.Quote(common.Buy, d("10"), "mm")
	require.NoError(t, err)
	assertDecimal(t, "1500", quote.Cost)

	_, err = engine.Quote(common.Buy, d("11"), "mm")
	assert.ErrorIs(t, err, common.ErrNotEnoughLiquidity)
}

func TestBalancesAndUsers(t *testing.T) {
	engine := newTestEngine(t)
	_, err := engine.Balances("ghost")
	assert.ErrorIs(t, err, common.ErrUnknownUser)

	user := engine.CreateUser("bob")
	assert.Equal(t, "bob", user.ID)
	engine.CreateUser("alice")
	engine.CreateUser("bob")

	users := engine.Users()
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].ID)

	assert.ErrorIs(t, engine.Deposit("ghost", common.SOL, d("1")), common.ErrUnknownUser)
	assert.ErrorIs(t, engine.Deposit("bob", common.Asset("BTC"), d("1")), common.ErrUnknownAsset)
	assert.ErrorIs(t, engine.Withdraw("bob", common.SOL, d("1")), common.ErrInsufficientBalance)
}
