package engine

import (
	"fmt"

	"solex/internal/common"

	"github.com/shopspring/decimal"
)

// validate runs the pre-trade checks. It only reads the ledger; the caller
// holds the write lock until the order has been matched or rested.
func (engine *Engine) validate(order common.Order) error {
	if order.OrderType != common.LimitOrder {
		return fmt.Errorf("%w: %v orders are not supported",
			common.ErrUnsupportedOrderFeature, order.OrderType)
	}
	if !order.Side.Valid() {
		return fmt.Errorf("%w: side %v", common.ErrInvalidOrder, order.Side)
	}
	if !order.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", common.ErrInvalidOrder, order.Quantity)
	}
	if !order.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", common.ErrInvalidOrder, order.Price)
	}
	if order.Asset != engine.cfg.BaseAsset || order.SecondaryAsset != engine.cfg.QuoteAsset {
		return fmt.Errorf("%w: pair %s/%s is not traded here",
			common.ErrUnknownAsset, order.Asset, order.SecondaryAsset)
	}

	asset, required := engine.escrow(order)
	balance, err := engine.ledger.BalanceOf(order.UserID, asset)
	if err != nil {
		return err
	}
	if balance.Available.LessThan(required) {
		return fmt.Errorf("%w: not enough %s, available %s, required %s",
			common.ErrInsufficientBalance, asset, balance.Available, required)
	}
	return nil
}

// escrow is what an order commits while it is live: the notional in quote
// currency for a bid, the quantity itself for an ask.
func (engine *Engine) escrow(order common.Order) (common.Asset, decimal.Decimal) {
	if order.Side == common.Buy {
		return engine.cfg.QuoteAsset, order.Notional()
	}
	return engine.cfg.BaseAsset, order.Quantity
}
