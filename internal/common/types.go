package common

import (
	"fmt"
	"strings"
)

// Asset is a ticker such as SOL or USDC. Tickers are at most 4 characters
// so they fit the fixed-width wire fields.
type Asset string

const (
	SOL  Asset = "SOL"
	USDC Asset = "USDC"
)

func (a Asset) String() string {
	return string(a)
}

func ParseAsset(s string) (Asset, error) {
	s = strings.ToUpper(strings.TrimSpace(strings.TrimRight(s, "\x00")))
	if s == "" || len(s) > 4 {
		return "", fmt.Errorf("%w: %q", ErrUnknownAsset, s)
	}
	return Asset(s), nil
}

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "BID":
		return Buy, nil
	case "SELL", "ASK":
		return Sell, nil
	}
	return 0, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, s)
}

type OrderType int

const (
	// Limit orders are an order to buy or sell at a specified price or
	// better. Limit orders may rest on the order book until filled.
	LimitOrder OrderType = iota
	// Market orders execute immediately at whatever the book offers.
	// Reserved; the engine rejects them.
	MarketOrder
	// FillOrKill orders execute completely or not at all. Reserved; the
	// engine rejects them.
	FillOrKill
)

func (t OrderType) String() string {
	switch t {
	case LimitOrder:
		return "LIMIT"
	case MarketOrder:
		return "MARKET"
	case FillOrKill:
		return "FOK"
	}
	return fmt.Sprintf("OrderType(%d)", int(t))
}

func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "LIMIT":
		return LimitOrder, nil
	case "MARKET":
		return MarketOrder, nil
	case "FOK", "FILL_OR_KILL":
		return FillOrKill, nil
	}
	return 0, fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, s)
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: side %d", ErrInvalidOrder, int(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	side, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

func (t OrderType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *OrderType) UnmarshalText(text []byte) error {
	orderType, err := ParseOrderType(string(text))
	if err != nil {
		return err
	}
	*t = orderType
	return nil
}
