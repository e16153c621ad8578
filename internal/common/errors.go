package common

import "errors"

var (
	ErrInvalidOrder            = errors.New("invalid order")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrUnknownUser             = errors.New("unknown user")
	ErrUnknownAsset            = errors.New("unknown asset")
	ErrUnsupportedOrderFeature = errors.New("unsupported order feature")
	ErrNotEnoughLiquidity      = errors.New("not enough liquidity")
)
