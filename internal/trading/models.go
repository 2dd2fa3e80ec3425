package trading

import (
	"fmt"
	"strings"

	"github.com/leon-biju/trading-simulator/internal/types"
	"github.com/shopspring/decimal"
)

// PlaceOrderRequest is the input to PlaceOrder. Owner comes from the
// authenticated caller, never from the body.
type PlaceOrderRequest struct {
	Owner          string              `json:"-"`
	Asset          string              `json:"asset" binding:"required,max=16"`
	Side           types.OrderSide     `json:"side" binding:"required,oneof=BUY SELL"`
	OrderType      types.OrderType     `json:"order_type" binding:"required,oneof=MARKET LIMIT"`
	Quantity       decimal.Decimal     `json:"quantity" binding:"decimal_gt0"`
	LimitPrice     decimal.NullDecimal `json:"limit_price" binding:"omitempty,decimal_gt0"`
	IdempotencyKey string              `json:"-"`
}

const maxScale = 8

// Normalize upper-cases enums and symbols and drops a limit price sent with
// a MARKET order.
func (r *PlaceOrderRequest) Normalize() {
	r.Asset = strings.ToUpper(strings.TrimSpace(r.Asset))
	r.Side = types.OrderSide(strings.ToUpper(string(r.Side)))
	r.OrderType = types.OrderType(strings.ToUpper(string(r.OrderType)))
	if r.OrderType == types.OrderTypeMarket {
		r.LimitPrice = decimal.NullDecimal{}
	}
}

// Validate runs before any lock is taken.
func (r *PlaceOrderRequest) Validate() error {
	switch {
	case r.Owner == "":
		return fmt.Errorf("owner is required: %w", types.ErrValidation)
	case r.Asset == "":
		return fmt.Errorf("asset is required: %w", types.ErrValidation)
	case !r.Side.Valid():
		return fmt.Errorf("side %q must be BUY or SELL: %w", r.Side, types.ErrValidation)
	case !r.OrderType.Valid():
		return fmt.Errorf("order type %q must be MARKET or LIMIT: %w", r.OrderType, types.ErrValidation)
	case !r.Quantity.IsPositive():
		return fmt.Errorf("quantity must be positive: %w", types.ErrValidation)
	case !r.Quantity.Equal(r.Quantity.Round(maxScale)):
		return fmt.Errorf("quantity supports at most %d decimal places: %w", maxScale, types.ErrValidation)
	}

	if r.OrderType == types.OrderTypeLimit {
		if !r.LimitPrice.Valid || !r.LimitPrice.Decimal.IsPositive() {
			return fmt.Errorf("limit orders require a positive limit price: %w", types.ErrValidation)
		}
		if !r.LimitPrice.Decimal.Equal(r.LimitPrice.Decimal.Round(maxScale)) {
			return fmt.Errorf("limit price supports at most %d decimal places: %w", maxScale, types.ErrValidation)
		}
	}
	return nil
}
