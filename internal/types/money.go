package types

import "github.com/shopspring/decimal"

// DefaultFeeRate is charged on the total value of every execution.
var DefaultFeeRate = decimal.RequireFromString("0.001")

// Round2dp rounds a money amount half away from zero to two places.
func Round2dp(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Round8dp is used for per-unit cost basis.
func Round8dp(d decimal.Decimal) decimal.Decimal {
	return d.Round(8)
}
