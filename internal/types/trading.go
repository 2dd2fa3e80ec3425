package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// Order is one trade intent. Currency and ExchangeCode are copied from the
// asset at placement so reservations can be released without a join.
type Order struct {
	gorm.Model     `json:"-"`
	OrderID        string              `gorm:"uniqueIndex" json:"order_id"`
	Owner          string              `gorm:"index:idx_orders_owner_status" json:"owner"`
	AssetSymbol    string              `gorm:"index:idx_orders_asset_status" json:"asset"`
	ExchangeCode   string              `gorm:"index" json:"exchange,omitempty"`
	Currency       string              `json:"currency"`
	Side           OrderSide           `json:"side"`
	OrderType      OrderType           `json:"order_type"`
	Quantity       decimal.Decimal     `gorm:"type:varchar(40)" json:"quantity"`
	LimitPrice     decimal.NullDecimal `gorm:"type:varchar(40)" json:"limit_price"`
	Status         OrderStatus         `gorm:"index:idx_orders_owner_status;index:idx_orders_asset_status" json:"status"`
	ReservedAmount decimal.Decimal     `gorm:"type:varchar(40)" json:"reserved_amount"`
	CreatedAt      time.Time           `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	CancelledAt    *time.Time          `json:"cancelled_at,omitempty"`
}

func (o *Order) IsPending() bool {
	return o.Status == OrderStatusPending
}

// Trade is the immutable record of a single execution.
type Trade struct {
	gorm.Model    `json:"-"`
	TradeID       string          `gorm:"uniqueIndex" json:"trade_id"`
	OrderID       string          `gorm:"uniqueIndex" json:"order_id"`
	Owner         string          `gorm:"index" json:"owner"`
	AssetSymbol   string          `json:"asset"`
	Side          OrderSide       `json:"side"`
	Quantity      decimal.Decimal `gorm:"type:varchar(40)" json:"quantity"`
	Price         decimal.Decimal `gorm:"type:varchar(40)" json:"price"`
	Fee           decimal.Decimal `gorm:"type:varchar(40)" json:"fee"`
	FeeCurrency   string          `json:"fee_currency"`
	TransactionID string          `json:"transaction_id"`
	ExecutedAt    time.Time       `gorm:"index" json:"executed_at"`
}

// IdempotencyRecord maps a client supplied key to the resource it created.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	Owner          string    `json:"owner"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}
