package engine

import (
	"errors"
	"fmt"
	"time"

	"solex/internal/book"
	"solex/internal/common"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Fill is the outcome of a submitted order.
type Fill struct {
	OrderID        string
	FilledQuantity decimal.Decimal
	// RestingQuantity is what was left on the book, if anything.
	RestingQuantity decimal.Decimal
	Trades          []common.Trade
}

// SubmitOrder validates the order, matches it against the opposite side in
// price-time priority and rests any remainder on its own side.
//
// A rejected order leaves the book and the ledger untouched. Once accepted,
// the order's full commitment is locked in the ledger, which is what makes
// every subsequent settlement infallible. If matching still fails, the
// returned Fill carries the trades that settled before the failure.
func (engine *Engine) SubmitOrder(order common.Order) (Fill, error) {
	engine.mu.Lock()
	fill, err := engine.submit(order)
	reporter := engine.reporter
	engine.mu.Unlock()

	engine.report(reporter, fill.Trades)
	return fill, err
}

func (engine *Engine) submit(order common.Order) (Fill, error) {
	if order.SecondaryAsset == "" {
		order.SecondaryAsset = engine.cfg.QuoteAsset
	}
	if err := engine.validate(order); err != nil {
		return Fill{}, err
	}

	if order.UUID == "" {
		order.UUID = uuid.New().String()
	}
	order.TotalQuantity = order.Quantity
	order.ExchTimestamp = time.Now()
	if order.Timestamp.IsZero() {
		order.Timestamp = order.ExchTimestamp
	}

	asset, amount := engine.escrow(order)
	if err := engine.ledger.Lock(order.UserID, asset, amount); err != nil {
		return Fill{}, err
	}

	log.Debug().
		Str("order", order.UUID).
		Str("user", order.UserID).
		Str("side", order.Side.String()).
		Str("price", order.Price.String()).
		Str("quantity", order.Quantity.String()).
		Msg("received order")

	trades, err := engine.match(&order)
	if err != nil {
		// Settlement is backed by locked funds, so this means the ledger and
		// the book disagree. Surface it rather than rest a broken order.
		log.Error().Err(err).Str("order", order.UUID).Msg("matching aborted")
		// The remainder will not rest, so its escrow goes back to available.
		asset, amount := engine.escrow(order)
		if unlockErr := engine.ledger.Unlock(order.UserID, asset, amount); unlockErr != nil {
			err = errors.Join(err, fmt.Errorf("release escrow of %s: %w", order.UUID, unlockErr))
		}
		return Fill{
			OrderID:         order.UUID,
			FilledQuantity:  order.TotalQuantity.Sub(order.Quantity),
			RestingQuantity: decimal.Zero,
			Trades:          trades,
		}, err
	}

	fill := Fill{
		OrderID:         order.UUID,
		FilledQuantity:  order.TotalQuantity.Sub(order.Quantity),
		RestingQuantity: order.Quantity,
		Trades:          trades,
	}
	if order.Quantity.IsPositive() {
		engine.rest(&order)
	}
	return fill, nil
}

// match consumes the opposite side while it crosses the incoming order's
// limit. The resting order's price is the execution price.
func (engine *Engine) match(order *common.Order) ([]common.Trade, error) {
	opposite := engine.asks
	crosses := func(price decimal.Decimal) bool { return price.LessThanOrEqual(order.Price) }
	if order.Side == common.Sell {
		opposite = engine.bids
		crosses = func(price decimal.Decimal) bool { return price.GreaterThanOrEqual(order.Price) }
	}

	var trades []common.Trade
	for order.Quantity.IsPositive() {
		resting, ok := engine.peek(opposite, order.UserID)
		// The list is price ordered, so the first order that does not cross
		// means nothing behind it does either.
		if !ok || !crosses(resting.Price) {
			break
		}

		matchQty := decimal.Min(order.Quantity, resting.Quantity)
		trade, err := engine.settle(order, resting, matchQty)
		if err != nil {
			return trades, err
		}
		trades = append(trades, trade)
		order.Quantity = order.Quantity.Sub(matchQty)

		if resting.Quantity.GreaterThan(matchQty) {
			log.Debug().
				Str("order", order.UUID).
				Str("resting", resting.UUID).
				Str("quantity", matchQty.String()).
				Msg("order matched")
			err = opposite.Deduct(resting, matchQty)
		} else {
			log.Debug().
				Str("order", order.UUID).
				Str("resting", resting.UUID).
				Str("quantity", matchQty.String()).
				Msg("order split")
			err = opposite.Remove(resting)
		}
		if err != nil {
			return trades, fmt.Errorf("update resting order %s: %w", resting.UUID, err)
		}
	}
	return trades, nil
}

// peek returns the resting order next in line for the given user. The
// position is recomputed on every call since the previous step may have
// removed the front.
func (engine *Engine) peek(list *book.OrderList, userID string) (*common.Order, bool) {
	if !engine.cfg.SkipSelfMatch {
		return list.PeekFront()
	}
	return list.FirstWhere(func(resting *common.Order) bool {
		return resting.UserID != userID
	})
}

// settle moves the traded quantity and its proceeds between the two owners
// and records the trade.
func (engine *Engine) settle(taker, maker *common.Order, quantity decimal.Decimal) (common.Trade, error) {
	price := maker.Price
	proceeds := price.Mul(quantity)

	buyer, seller := taker, maker
	if taker.Side == common.Sell {
		buyer, seller = maker, taker
	}

	err := engine.ledger.Transfer(
		seller.UserID, buyer.UserID,
		engine.cfg.BaseAsset, quantity,
		engine.cfg.QuoteAsset, proceeds,
	)
	if err != nil {
		return common.Trade{}, fmt.Errorf("settle %s against %s: %w", taker.UUID, maker.UUID, err)
	}

	// A taking bid locked funds at its own limit. Anything it saved by
	// trading at a better price goes back to available.
	if taker.Side == common.Buy {
		improvement := taker.Price.Sub(price).Mul(quantity)
		if improvement.IsPositive() {
			if err := engine.ledger.Unlock(taker.UserID, engine.cfg.QuoteAsset, improvement); err != nil {
				return common.Trade{}, fmt.Errorf("release price improvement for %s: %w", taker.UUID, err)
			}
		}
	}

	engine.latestPrice[engine.cfg.BaseAsset] = price

	trade := common.Trade{
		UUID:          uuid.New().String(),
		Asset:         engine.cfg.BaseAsset,
		QuoteAsset:    engine.cfg.QuoteAsset,
		Price:         price,
		Quantity:      quantity,
		QuoteQuantity: proceeds,
		Buyer:         buyer.UserID,
		Seller:        seller.UserID,
		BuyOrderID:    buyer.UUID,
		SellOrderID:   seller.UUID,
		TakerSide:     taker.Side,
		Timestamp:     time.Now(),
	}
	engine.recordTrade(trade)
	return trade, nil
}

func (engine *Engine) rest(order *common.Order) {
	switch order.Side {
	case common.Buy:
		engine.bids.InsertAsBid(order)
	case common.Sell:
		engine.asks.InsertAsAsk(order)
	}
	log.Debug().
		Str("order", order.UUID).
		Str("side", order.Side.String()).
		Str("price", order.Price.String()).
		Str("quantity", order.Quantity.String()).
		Msg("order resting")
}

func (engine *Engine) recordTrade(trade common.Trade) {
	if engine.cfg.TradeHistory <= 0 {
		return
	}
	engine.trades.PushBack(trade)
	for engine.trades.Len() > engine.cfg.TradeHistory {
		engine.trades.PopFront()
	}
}
