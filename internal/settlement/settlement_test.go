package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/leon-biju/trading-simulator/internal/database"
	"github.com/leon-biju/trading-simulator/internal/types"
)

type fixedPrices map[string]decimal.Decimal

func (f fixedPrices) LatestPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	p, ok := f[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, types.ErrPriceUnavailable)
	}
	return p, nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewInMemory(uuid.NewString())
	require.NoError(t, err)
	return db
}

func seedWallet(t *testing.T, db *gorm.DB, owner, currency, balance, pending string) *types.Wallet {
	t.Helper()
	w := &types.Wallet{Owner: owner, Currency: currency, Balance: d(balance), PendingBalance: d(pending)}
	require.NoError(t, db.Create(w).Error)
	return w
}

func seedPosition(t *testing.T, db *gorm.DB, owner, asset, qty, pending, avg string) *types.Position {
	t.Helper()
	p := &types.Position{
		Owner:           owner,
		AssetSymbol:     asset,
		Quantity:        d(qty),
		PendingQuantity: d(pending),
		AverageCost:     d(avg),
		RealizedPnL:     decimal.Zero,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedOrder(t *testing.T, db *gorm.DB, side types.OrderSide, orderType types.OrderType, qty, reserved string) *types.Order {
	t.Helper()
	o := &types.Order{
		OrderID:        uuid.NewString(),
		Owner:          "alice",
		AssetSymbol:    "ACME",
		Currency:       "GBP",
		Side:           side,
		OrderType:      orderType,
		Quantity:       d(qty),
		Status:         types.OrderStatusPending,
		ReservedAmount: d(reserved),
	}
	require.NoError(t, db.Create(o).Error)
	return o
}

func reloadWallet(t *testing.T, db *gorm.DB, id uint) types.Wallet {
	t.Helper()
	var w types.Wallet
	require.NoError(t, db.First(&w, id).Error)
	return w
}

func reloadPosition(t *testing.T, db *gorm.DB, owner, asset string) types.Position {
	t.Helper()
	var p types.Position
	require.NoError(t, db.Where("owner = ? AND asset_symbol = ?", owner, asset).First(&p).Error)
	return p
}

func reloadOrder(t *testing.T, db *gorm.DB, orderID string) types.Order {
	t.Helper()
	var o types.Order
	require.NoError(t, db.Where("order_id = ?", orderID).First(&o).Error)
	return o
}

func TestExecuteMarketBuy(t *testing.T) {
	db := newTestDB(t)
	w := seedWallet(t, db, "alice", "GBP", "1000.00", "500.00")
	order := seedOrder(t, db, types.OrderSideBuy, types.OrderTypeMarket, "5", "500.00")

	engine := NewEngine(fixedPrices{"ACME": d("100.00")}, types.DefaultFeeRate)
	trade, err := engine.Execute(context.Background(), db, order, w, nil)
	require.NoError(t, err)
	require.NotNil(t, trade)

	assertDecimal(t, "100.00", trade.Price)
	assertDecimal(t, "0.50", trade.Fee)
	assert.Equal(t, "GBP", trade.FeeCurrency)
	assert.Equal(t, order.OrderID, trade.OrderID)

	wallet := reloadWallet(t, db, w.ID)
	assertDecimal(t, "499.50", wallet.Balance)
	assertDecimal(t, "0", wallet.PendingBalance)

	pos := reloadPosition(t, db, "alice", "ACME")
	assertDecimal(t, "5", pos.Quantity)
	assertDecimal(t, "100", pos.AverageCost)

	stored := reloadOrder(t, db, order.OrderID)
	assert.Equal(t, types.OrderStatusFilled, stored.Status)
	assertDecimal(t, "0", stored.ReservedAmount)

	var entry types.Transaction
	require.NoError(t, db.Where("transaction_id = ?", trade.TransactionID).First(&entry).Error)
	assert.Equal(t, types.TransactionBuy, entry.Category)
	assertDecimal(t, "-500.50", entry.Amount)
	assertDecimal(t, "499.50", entry.BalanceAfter)
	assert.Equal(t, "BUY 5 ACME @ 100.00 (fee: 0.50)", entry.Description)

	saved, err := NewDatabase(db).GetTradeByOrderID(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, trade.TradeID, saved.TradeID)
}

func TestExecuteSellRealizesFeeInclusivePnL(t *testing.T) {
	db := newTestDB(t)
	w := seedWallet(t, db, "alice", "GBP", "0", "0")
	pos := seedPosition(t, db, "alice", "ACME", "10", "4", "50.00")
	order := seedOrder(t, db, types.OrderSideSell, types.OrderTypeMarket, "4", "0")

	engine := NewEngine(fixedPrices{"ACME": d("60.00")}, types.DefaultFeeRate)
	trade, err := engine.Execute(context.Background(), db, order, w, pos)
	require.NoError(t, err)
	assertDecimal(t, "0.24", trade.Fee)

	stored := reloadPosition(t, db, "alice", "ACME")
	assertDecimal(t, "6", stored.Quantity)
	assertDecimal(t, "0", stored.PendingQuantity)
	assertDecimal(t, "50", stored.AverageCost)
	assertDecimal(t, "39.76", stored.RealizedPnL)

	wallet := reloadWallet(t, db, w.ID)
	assertDecimal(t, "239.76", wallet.Balance)
	assert.Equal(t, types.OrderStatusFilled, reloadOrder(t, db, order.OrderID).Status)
}

func TestExecuteLimitUsesLimitPrice(t *testing.T) {
	db := newTestDB(t)
	w := seedWallet(t, db, "alice", "GBP", "1000.00", "450.00")
	order := seedOrder(t, db, types.OrderSideBuy, types.OrderTypeLimit, "5", "450.00")
	order.LimitPrice = decimal.NewNullDecimal(d("90.00"))

	engine := NewEngine(fixedPrices{"ACME": d("85.00")}, types.DefaultFeeRate)
	trade, err := engine.Execute(context.Background(), db, order, w, nil)
	require.NoError(t, err)

	assertDecimal(t, "90.00", trade.Price)
	assertDecimal(t, "549.55", reloadWallet(t, db, w.ID).Balance)
}

func TestExecuteBuyAveragesIntoExistingPosition(t *testing.T) {
	db := newTestDB(t)
	w := seedWallet(t, db, "alice", "GBP", "2000.00", "600.00")
	pos := seedPosition(t, db, "alice", "ACME", "10", "0", "50.00")
	order := seedOrder(t, db, types.OrderSideBuy, types.OrderTypeMarket, "10", "600.00")

	engine := NewEngine(fixedPrices{"ACME": d("60.00")}, decimal.Zero)
	_, err := engine.Execute(context.Background(), db, order, w, pos)
	require.NoError(t, err)

	stored := reloadPosition(t, db, "alice", "ACME")
	assertDecimal(t, "20", stored.Quantity)
	assertDecimal(t, "55", stored.AverageCost)
}

func TestExecuteRejectsUnaffordableBuy(t *testing.T) {
	db := newTestDB(t)
	w := seedWallet(t, db, "alice", "GBP", "500.00", "500.00")
	order := seedOrder(t, db, types.OrderSideBuy, types.OrderTypeMarket, "5", "500.00")

	engine := NewEngine(fixedPrices{"ACME": d("100.00")}, types.DefaultFeeRate)
	trade, err := engine.Execute(context.Background(), db, order, w, nil)
	require.Error(t, err)
	assert.Nil(t, trade)
	assert.True(t, errors.Is(err, types.ErrOrderRejected))
	assert.True(t, errors.Is(err, types.ErrInsufficientFunds))

	stored := reloadOrder(t, db, order.OrderID)
	assert.Equal(t, types.OrderStatusRejected, stored.Status)
	assertDecimal(t, "0", stored.ReservedAmount)

	wallet := reloadWallet(t, db, w.ID)
	assertDecimal(t, "500.00", wallet.Balance)
	assertDecimal(t, "0", wallet.PendingBalance)

	var trades int64
	require.NoError(t, db.Model(&types.Trade{}).Count(&trades).Error)
	assert.Zero(t, trades)
}

func TestExecuteWithoutPriceLeavesStateUntouched(t *testing.T) {
	db := newTestDB(t)
	w := seedWallet(t, db, "alice", "GBP", "1000.00", "500.00")
	order := seedOrder(t, db, types.OrderSideBuy, types.OrderTypeMarket, "5", "500.00")

	engine := NewEngine(fixedPrices{}, types.DefaultFeeRate)
	_, err := engine.Execute(context.Background(), db, order, w, nil)
	assert.ErrorIs(t, err, types.ErrPriceUnavailable)

	wallet := reloadWallet(t, db, w.ID)
	assertDecimal(t, "500.00", wallet.PendingBalance)
	assert.Equal(t, types.OrderStatusPending, reloadOrder(t, db, order.OrderID).Status)
}

func TestExecuteRefusesNonPendingOrder(t *testing.T) {
	db := newTestDB(t)
	w := seedWallet(t, db, "alice", "GBP", "1000.00", "0")
	order := seedOrder(t, db, types.OrderSideBuy, types.OrderTypeMarket, "5", "0")
	order.Status = types.OrderStatusCancelled

	engine := NewEngine(fixedPrices{"ACME": d("100.00")}, types.DefaultFeeRate)
	_, err := engine.Execute(context.Background(), db, order, w, nil)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestExecuteSellWithoutPosition(t *testing.T) {
	db := newTestDB(t)
	w := seedWallet(t, db, "alice", "GBP", "0", "0")
	order := seedOrder(t, db, types.OrderSideSell, types.OrderTypeMarket, "1", "0")

	engine := NewEngine(fixedPrices{"ACME": d("100.00")}, types.DefaultFeeRate)
	_, err := engine.Execute(context.Background(), db, order, w, nil)
	assert.ErrorIs(t, err, types.ErrNoPosition)
}

func TestWeightedAverageCost(t *testing.T) {
	tests := []struct {
		name                    string
		oldQty, oldAvg, qty, px string
		want                    string
	}{
		{"first purchase takes the price", "0", "0", "5", "100.00", "100.00"},
		{"equal lots average evenly", "10", "50", "10", "60", "55"},
		{"uneven lots", "3", "10", "1", "11", "10.25"},
		{"repeating fraction rounds to 8dp", "1", "1", "2", "2", "1.66666667"},
		{"quotient just under the 8dp midpoint rounds down", "1", "0.023456785", "9999999999999999", "0.123456785", "0.12345678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAverageCost(d(tt.oldQty), d(tt.oldAvg), d(tt.qty), d(tt.px))
			assertDecimal(t, tt.want, got)
		})
	}
}

func TestQuoteRoundsMoneyToCents(t *testing.T) {
	a := Quote(d("3"), d("33.333"), types.DefaultFeeRate)
	assertDecimal(t, "100.00", a.TotalValue)
	assertDecimal(t, "0.10", a.Fee)
	assertDecimal(t, "100.10", a.TotalCost())
	assertDecimal(t, "99.90", a.NetProceeds())
}
