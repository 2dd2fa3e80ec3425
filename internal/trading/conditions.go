package trading

import (
	"github.com/leon-biju/trading-simulator/internal/types"
	"github.com/shopspring/decimal"
)

// CheckLimitCondition reports whether order may execute at currentPrice.
// MARKET orders always may; a LIMIT BUY needs the price at or below its
// limit and a LIMIT SELL at or above it.
func CheckLimitCondition(order *types.Order, currentPrice decimal.Decimal) bool {
	if order.OrderType != types.OrderTypeLimit {
		return true
	}
	if !order.LimitPrice.Valid {
		return false
	}

	limit := order.LimitPrice.Decimal
	switch order.Side {
	case types.OrderSideBuy:
		return currentPrice.LessThanOrEqual(limit)
	case types.OrderSideSell:
		return currentPrice.GreaterThanOrEqual(limit)
	}
	return false
}
