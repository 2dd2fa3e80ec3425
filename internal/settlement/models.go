package settlement

import (
	"github.com/leon-biju/trading-simulator/internal/types"
	"github.com/shopspring/decimal"
)

// Amounts are the rounded money figures of one execution.
type Amounts struct {
	Price      decimal.Decimal `json:"price"`
	TotalValue decimal.Decimal `json:"total_value"`
	Fee        decimal.Decimal `json:"fee"`
}

// TotalCost is what a BUY debits.
func (a Amounts) TotalCost() decimal.Decimal {
	return a.TotalValue.Add(a.Fee)
}

// NetProceeds is what a SELL credits.
func (a Amounts) NetProceeds() decimal.Decimal {
	return a.TotalValue.Sub(a.Fee)
}

// Quote computes value and fee for quantity at price.
func Quote(quantity, price, feeRate decimal.Decimal) Amounts {
	total := types.Round2dp(quantity.Mul(price))
	return Amounts{
		Price:      price,
		TotalValue: total,
		Fee:        types.Round2dp(total.Mul(feeRate)),
	}
}

// WeightedAverageCost blends an existing holding with a new purchase.
func WeightedAverageCost(oldQty, oldAvg, qty, price decimal.Decimal) decimal.Decimal {
	if !oldQty.IsPositive() {
		return price
	}
	totalQty := oldQty.Add(qty)
	cost := oldQty.Mul(oldAvg).Add(qty.Mul(price))
	return cost.DivRound(totalQty, 8)
}

// RealizedPnL is the fee-inclusive profit of selling qty at price against avg.
func RealizedPnL(price, avg, qty, fee decimal.Decimal) decimal.Decimal {
	return types.Round2dp(price.Sub(avg).Mul(qty).Sub(fee))
}
