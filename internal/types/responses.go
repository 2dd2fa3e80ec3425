package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSnapshot is a position valued at the latest known price.
type PositionSnapshot struct {
	Asset           string           `json:"asset"`
	Currency        string           `json:"currency"`
	Quantity        decimal.Decimal  `json:"quantity"`
	PendingQuantity decimal.Decimal  `json:"pending_quantity"`
	AverageCost     decimal.Decimal  `json:"average_cost"`
	CostBasis       decimal.Decimal  `json:"cost_basis"`
	RealizedPnL     decimal.Decimal  `json:"realized_pnl"`
	CurrentPrice    *decimal.Decimal `json:"current_price,omitempty"`
	MarketValue     *decimal.Decimal `json:"market_value,omitempty"`
	UnrealizedPnL   *decimal.Decimal `json:"unrealized_pnl,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// OrderSummary counts an owner's orders per status.
type OrderSummary struct {
	Owner  string              `json:"owner"`
	Counts map[OrderStatus]int `json:"counts"`
	Total  int                 `json:"total"`
}
