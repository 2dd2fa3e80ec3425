package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AssetType string

const (
	AssetTypeStock AssetType = "STOCK"
	AssetTypeFX    AssetType = "FX"
)

// Asset is a tradable instrument. An empty ExchangeCode means the asset
// trades around the clock (currency pairs).
type Asset struct {
	gorm.Model   `json:"-"`
	Symbol       string    `gorm:"uniqueIndex" json:"symbol"`
	Name         string    `json:"name"`
	AssetType    AssetType `json:"asset_type"`
	Currency     string    `json:"currency"`
	ExchangeCode string    `gorm:"index" json:"exchange,omitempty"`
	Active       bool      `json:"active"`
}

// Wallet holds settled funds for one (owner, currency) pair.
type Wallet struct {
	gorm.Model     `json:"-"`
	Owner          string          `gorm:"uniqueIndex:idx_wallets_owner_currency" json:"owner"`
	Currency       string          `gorm:"uniqueIndex:idx_wallets_owner_currency" json:"currency"`
	Balance        decimal.Decimal `gorm:"type:varchar(40)" json:"balance"`
	PendingBalance decimal.Decimal `gorm:"type:varchar(40)" json:"pending_balance"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (w *Wallet) AvailableBalance() decimal.Decimal {
	return w.Balance.Sub(w.PendingBalance)
}

// CheckInvariants guards every write of a wallet row.
func (w *Wallet) CheckInvariants() error {
	if w.Balance.IsNegative() || w.PendingBalance.IsNegative() || w.AvailableBalance().IsNegative() {
		return ErrInvariantViolation
	}
	return nil
}

// Position holds one owner's quantity of one asset.
type Position struct {
	gorm.Model      `json:"-"`
	Owner           string          `gorm:"uniqueIndex:idx_positions_owner_asset" json:"owner"`
	AssetSymbol     string          `gorm:"uniqueIndex:idx_positions_owner_asset" json:"asset"`
	Quantity        decimal.Decimal `gorm:"type:varchar(40)" json:"quantity"`
	PendingQuantity decimal.Decimal `gorm:"type:varchar(40)" json:"pending_quantity"`
	AverageCost     decimal.Decimal `gorm:"type:varchar(40)" json:"average_cost"`
	RealizedPnL     decimal.Decimal `gorm:"type:varchar(40)" json:"realized_pnl"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (p *Position) AvailableQuantity() decimal.Decimal {
	return p.Quantity.Sub(p.PendingQuantity)
}

func (p *Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AverageCost)
}

func (p *Position) CheckInvariants() error {
	if p.Quantity.IsNegative() || p.PendingQuantity.IsNegative() || p.AverageCost.IsNegative() {
		return ErrInvariantViolation
	}
	if p.Quantity.LessThan(p.PendingQuantity) {
		return ErrInvariantViolation
	}
	return nil
}

type TransactionCategory string

const (
	TransactionDeposit TransactionCategory = "DEPOSIT"
	TransactionBuy     TransactionCategory = "BUY"
	TransactionSell    TransactionCategory = "SELL"
)

// Transaction is an append-only ledger entry against a wallet.
type Transaction struct {
	gorm.Model    `json:"-"`
	TransactionID string              `gorm:"uniqueIndex" json:"transaction_id"`
	WalletID      uint                `gorm:"index" json:"-"`
	Owner         string              `gorm:"index" json:"owner"`
	Currency      string              `json:"currency"`
	Amount        decimal.Decimal     `gorm:"type:varchar(40)" json:"amount"`
	BalanceAfter  decimal.Decimal     `gorm:"type:varchar(40)" json:"balance_after"`
	Category      TransactionCategory `json:"category"`
	Description   string              `json:"description"`
	CreatedAt     time.Time           `json:"created_at"`
}

// SnapshotDateLayout is the layout of PortfolioSnapshot.Date.
const SnapshotDateLayout = "2006-01-02"

// PortfolioSnapshot is one owner's end of day valuation in one currency.
// There is at most one row per (owner, currency, date); a later snapshot on
// the same day replaces the earlier figures.
type PortfolioSnapshot struct {
	gorm.Model  `json:"-"`
	Owner       string          `gorm:"uniqueIndex:idx_snapshots_owner_currency_date" json:"owner"`
	Currency    string          `gorm:"uniqueIndex:idx_snapshots_owner_currency_date" json:"currency"`
	Date        string          `gorm:"type:varchar(10);uniqueIndex:idx_snapshots_owner_currency_date" json:"date"`
	TotalValue  decimal.Decimal `gorm:"type:varchar(40)" json:"total_value"`
	TotalCost   decimal.Decimal `gorm:"type:varchar(40)" json:"total_cost"`
	CashBalance decimal.Decimal `gorm:"type:varchar(40)" json:"cash_balance"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// UnrealizedPnL is the snapshot's holdings value less their cost.
func (s *PortfolioSnapshot) UnrealizedPnL() decimal.Decimal {
	return s.TotalValue.Sub(s.TotalCost)
}
