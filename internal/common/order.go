package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	UUID           string          `json:"id"`             // Order tracked uuid
	UserID         string          `json:"user_id"`        // Who owns this order
	Side           Side            `json:"side"`           // Order side
	OrderType      OrderType       `json:"type"`           //
	Asset          Asset           `json:"asset"`          // Asset being bought or sold
	SecondaryAsset Asset           `json:"quote_asset"`    // Quote currency the price is denominated in
	Price          decimal.Decimal `json:"price"`          // Limiting price
	Quantity       decimal.Decimal `json:"quantity"`       // Remaining quantity
	TotalQuantity  decimal.Decimal `json:"total_quantity"` // Total volume requested
	Timestamp      time.Time       `json:"timestamp"`      // Time of arrival of order
	ExchTimestamp  time.Time       `json:"exch_timestamp"` // Time of arrival of order into the book
}

// Notional is the quote value of the remaining quantity at the limit price.
func (order Order) Notional() decimal.Decimal {
	return order.Price.Mul(order.Quantity)
}

func (order Order) String() string {
	return fmt.Sprintf(
		`UUID:          %v
UserID:        %s
Side:          %v
OrderType:     %v
Pair:          %s/%s
Price:         %s
Quantity:      %s (Total: %s)
Timestamp:     %v
ExchTimestamp: %v`,
		order.UUID,
		order.UserID,
		order.Side,
		order.OrderType,
		order.Asset,
		order.SecondaryAsset,
		order.Price,
		order.Quantity,
		order.TotalQuantity,
		order.Timestamp.Format(time.RFC3339), // Formatted for readability
		order.ExchTimestamp.Format(time.RFC3339),
	)
}
