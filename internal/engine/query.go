package engine

import (
	"fmt"

	"solex/internal/book"
	"solex/internal/common"

	"github.com/shopspring/decimal"
)

// Snapshot is a copy of both sides of the book in priority order.
type Snapshot struct {
	Bids []common.Order `json:"bids"`
	Asks []common.Order `json:"asks"`
}

// Level is the resting quantity aggregated at one price.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

// Depth lists price levels best price first on both sides.
type Depth struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

// Quote is the cost of taking a quantity from the book right now.
type Quote struct {
	Side         common.Side     `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	Cost         decimal.Decimal `json:"cost"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

func (engine *Engine) OrderBook() Snapshot {
	engine.mu.RLock()
	defer engine.mu.RUnlock()

	return Snapshot{
		Bids: engine.bids.Orders(),
		Asks: engine.asks.Orders(),
	}
}

// Depth aggregates the book per price, computed fresh on every call.
func (engine *Engine) Depth() Depth {
	engine.mu.RLock()
	defer engine.mu.RUnlock()

	return Depth{
		Bids: depth(engine.bids, engine.cfg.DepthLevels),
		Asks: depth(engine.asks, engine.cfg.DepthLevels),
	}
}

// depth walks the list once, summing quantity per distinct price in the
// order the prices are met.
func depth(list *book.OrderList, limit int) []Level {
	levels := []Level{}
	index := make(map[string]int)
	for order := range list.All() {
		key := order.Price.String()
		i, ok := index[key]
		if !ok {
			if limit > 0 && len(levels) == limit {
				break
			}
			index[key] = len(levels)
			levels = append(levels, Level{Price: order.Price, Quantity: order.Quantity, Orders: 1})
			continue
		}
		levels[i].Quantity = levels[i].Quantity.Add(order.Quantity)
		levels[i].Orders++
	}
	return levels
}

// LatestPrice is the price of the last fill for the asset, zero if it has
// never traded.
func (engine *Engine) LatestPrice(asset common.Asset) decimal.Decimal {
	engine.mu.RLock()
	defer engine.mu.RUnlock()

	if price, ok := engine.latestPrice[asset]; ok {
		return price
	}
	return decimal.Zero
}

// Trades returns up to limit of the most recent trades, oldest first. A
// non-positive limit returns everything kept.
func (engine *Engine) Trades(limit int) []common.Trade {
	engine.mu.RLock()
	defer engine.mu.RUnlock()

	n := engine.trades.Len()
	start := 0
	if limit > 0 && limit < n {
		start = n - limit
	}
	trades := make([]common.Trade, 0, n-start)
	for i := start; i < n; i++ {
		trades = append(trades, engine.trades.At(i))
	}
	return trades
}

// Quote prices taking quantity from the opposite side of side, ignoring
// limit prices. The book is not modified. When userID is set and self
// matching is skipped, that user's own orders are left out.
func (engine *Engine) Quote(side common.Side, quantity decimal.Decimal, userID string) (Quote, error) {
	if !side.Valid() {
		return Quote{}, fmt.Errorf("%w: side %v", common.ErrInvalidOrder, side)
	}
	if !quantity.IsPositive() {
		return Quote{}, fmt.Errorf("%w: quantity must be positive, got %s", common.ErrInvalidOrder, quantity)
	}

	engine.mu.RLock()
	defer engine.mu.RUnlock()

	opposite := engine.asks
	if side == common.Sell {
		opposite = engine.bids
	}

	remaining := quantity
	cost := decimal.Zero
	for order := range opposite.All() {
		if engine.cfg.SkipSelfMatch && userID != "" && order.UserID == userID {
			continue
		}
		take := decimal.Min(remaining, order.Quantity)
		cost = cost.Add(take.Mul(order.Price))
		remaining = remaining.Sub(take)
		if !remaining.IsPositive() {
			break
		}
	}
	if remaining.IsPositive() {
		return Quote{}, fmt.Errorf("%w: %s of %s available",
			common.ErrNotEnoughLiquidity, quantity.Sub(remaining), quantity)
	}

	return Quote{
		Side:         side,
		Quantity:     quantity,
		Cost:         cost,
		AveragePrice: cost.Div(quantity),
	}, nil
}
