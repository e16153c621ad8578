package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trade accounts for the two parties who matched. Price is always the
// resting (maker) order's price.
type Trade struct {
	UUID          string          `json:"id"`
	Asset         Asset           `json:"asset"`
	QuoteAsset    Asset           `json:"quote_asset"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	QuoteQuantity decimal.Decimal `json:"quote_quantity"` // Price * Quantity
	Buyer         string          `json:"buyer"`
	Seller        string          `json:"seller"`
	BuyOrderID    string          `json:"buy_order_id"`
	SellOrderID   string          `json:"sell_order_id"`
	TakerSide     Side            `json:"taker_side"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Counterparty returns the other side of the trade for the given user.
func (t Trade) Counterparty(userID string) string {
	if t.Buyer == userID {
		return t.Seller
	}
	return t.Buyer
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`UUID:           %s
Pair:           %s/%s
Buyer:          %s (%s)
Seller:         %s (%s)
Taker:          %v
Timestamp:      %v
MatchQty:       %s
Price:          %s`,
		t.UUID,
		t.Asset,
		t.QuoteAsset,
		t.Buyer,
		t.BuyOrderID,
		t.Seller,
		t.SellOrderID,
		t.TakerSide,
		t.Timestamp.Format(time.RFC3339),
		t.Quantity,
		t.Price,
	)
}
