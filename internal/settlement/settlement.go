package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/leon-biju/trading-simulator/internal/position"
	"github.com/leon-biju/trading-simulator/internal/types"
	"github.com/leon-biju/trading-simulator/internal/wallet"
)

// PriceSource returns the latest market price of an asset, or an error
// wrapping types.ErrPriceUnavailable when there is none.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Engine converts a reserved order into a final balance and position change
// plus a ledger entry and a trade. It is the only writer of trades.
type Engine struct {
	prices  PriceSource
	ledger  *wallet.Ledger
	feeRate decimal.Decimal
	now     func() time.Time
	logger  zerolog.Logger
}

// NewEngine creates a new settlement engine charging feeRate on every trade
func NewEngine(prices PriceSource, feeRate decimal.Decimal) *Engine {
	return &Engine{
		prices:  prices,
		ledger:  wallet.NewLedger(),
		feeRate: feeRate,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  log.With().Str("component", "settlement_engine").Logger(),
	}
}

// WithClock replaces the time source used for trade timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// FeeRate returns the fraction of gross value charged per trade
func (e *Engine) FeeRate() decimal.Decimal {
	return e.feeRate
}

// ExecutionPrice is the limit price for LIMIT orders and the latest market
// price for MARKET orders.
func (e *Engine) ExecutionPrice(ctx context.Context, order *types.Order) (decimal.Decimal, error) {
	if order.OrderType == types.OrderTypeLimit {
		if !order.LimitPrice.Valid || !order.LimitPrice.Decimal.IsPositive() {
			return decimal.Zero, fmt.Errorf("order %s has no limit price: %w", order.OrderID, types.ErrValidation)
		}
		return order.LimitPrice.Decimal, nil
	}
	return e.prices.LatestPrice(ctx, order.AssetSymbol)
}

// Execute settles order inside tx. The caller holds the wallet lock and the
// position lock and has loaded w (and pos, when it exists) in tx. pos may be
// nil for a BUY into an asset the owner has never held.
//
// A BUY that can no longer be paid for is REJECTED: the rejection and the
// released reservation are written to tx and an error wrapping both
// types.ErrOrderRejected and types.ErrInsufficientFunds is returned. The
// caller must commit tx in that case.
func (e *Engine) Execute(ctx context.Context, tx *gorm.DB, order *types.Order, w *types.Wallet, pos *types.Position) (*types.Trade, error) {
	if !order.IsPending() {
		return nil, fmt.Errorf("order %s is %s: %w", order.OrderID, order.Status, types.ErrInvalidState)
	}
	if w == nil {
		return nil, fmt.Errorf("order %s: %s wallet: %w", order.OrderID, order.Currency, types.ErrNotFound)
	}

	price, err := e.ExecutionPrice(ctx, order)
	if err != nil {
		return nil, err
	}
	amounts := Quote(order.Quantity, price, e.feeRate)

	logger := e.logger.With().
		Str("order_id", order.OrderID).
		Str("owner", order.Owner).
		Str("asset", order.AssetSymbol).
		Str("side", string(order.Side)).
		Logger()

	switch order.Side {
	case types.OrderSideBuy:
		return e.settleBuy(tx, order, w, pos, amounts, logger)
	case types.OrderSideSell:
		return e.settleSell(tx, order, w, pos, amounts, logger)
	default:
		return nil, fmt.Errorf("order %s has side %q: %w", order.OrderID, order.Side, types.ErrValidation)
	}
}

func (e *Engine) settleBuy(tx *gorm.DB, order *types.Order, w *types.Wallet, pos *types.Position, amounts Amounts, logger zerolog.Logger) (*types.Trade, error) {
	wallets := wallet.NewDatabase(tx)

	w.PendingBalance = w.PendingBalance.Sub(order.ReservedAmount)
	order.ReservedAmount = decimal.Zero

	totalCost := amounts.TotalCost()
	if w.AvailableBalance().LessThan(totalCost) {
		order.Status = types.OrderStatusRejected
		if err := wallets.Save(w); err != nil {
			return nil, err
		}
		if err := NewDatabase(tx).UpdateOrder(order); err != nil {
			return nil, err
		}

		logger.Warn().
			Str("total_cost", totalCost.String()).
			Str("available", w.AvailableBalance().String()).
			Msg("buy rejected at settlement")
		return nil, fmt.Errorf("order %s needs %s %s: %w: %w",
			order.OrderID, totalCost.StringFixed(2), w.Currency, types.ErrOrderRejected, types.ErrInsufficientFunds)
	}

	w.Balance = w.Balance.Sub(totalCost)
	if err := wallets.Save(w); err != nil {
		return nil, err
	}
	entry, err := e.ledger.Record(tx, w, totalCost.Neg(), types.TransactionBuy, describe(order, amounts))
	if err != nil {
		return nil, fmt.Errorf("failed to record ledger entry: %w", err)
	}

	positions := position.NewDatabase(tx)
	if pos == nil {
		if pos, err = positions.GetOrNew(order.Owner, order.AssetSymbol); err != nil {
			return nil, err
		}
	}
	pos.AverageCost = WeightedAverageCost(pos.Quantity, pos.AverageCost, order.Quantity, amounts.Price)
	pos.Quantity = pos.Quantity.Add(order.Quantity)
	if err := positions.Save(pos); err != nil {
		return nil, err
	}

	trade, err := e.fill(tx, order, amounts, entry)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("price", amounts.Price.String()).
		Str("total_cost", totalCost.String()).
		Str("average_cost", pos.AverageCost.String()).
		Msg("buy settled")
	return trade, nil
}

func (e *Engine) settleSell(tx *gorm.DB, order *types.Order, w *types.Wallet, pos *types.Position, amounts Amounts, logger zerolog.Logger) (*types.Trade, error) {
	if pos == nil {
		return nil, fmt.Errorf("order %s: %w", order.OrderID, types.ErrNoPosition)
	}

	pos.PendingQuantity = pos.PendingQuantity.Sub(order.Quantity)
	pnl := RealizedPnL(amounts.Price, pos.AverageCost, order.Quantity, amounts.Fee)
	pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
	pos.Quantity = pos.Quantity.Sub(order.Quantity)
	if err := position.NewDatabase(tx).Save(pos); err != nil {
		return nil, err
	}

	net := amounts.NetProceeds()
	w.Balance = w.Balance.Add(net)
	if err := wallet.NewDatabase(tx).Save(w); err != nil {
		return nil, err
	}
	entry, err := e.ledger.Record(tx, w, net, types.TransactionSell, describe(order, amounts))
	if err != nil {
		return nil, fmt.Errorf("failed to record ledger entry: %w", err)
	}

	trade, err := e.fill(tx, order, amounts, entry)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("price", amounts.Price.String()).
		Str("net_proceeds", net.String()).
		Str("realized_pnl", pnl.String()).
		Msg("sell settled")
	return trade, nil
}

// fill writes the trade and moves the order to FILLED.
func (e *Engine) fill(tx *gorm.DB, order *types.Order, amounts Amounts, entry *types.Transaction) (*types.Trade, error) {
	db := NewDatabase(tx)

	trade := &types.Trade{
		TradeID:       uuid.New().String(),
		OrderID:       order.OrderID,
		Owner:         order.Owner,
		AssetSymbol:   order.AssetSymbol,
		Side:          order.Side,
		Quantity:      order.Quantity,
		Price:         amounts.Price,
		Fee:           amounts.Fee,
		FeeCurrency:   order.Currency,
		TransactionID: entry.TransactionID,
		ExecutedAt:    e.now(),
	}
	if err := db.CreateTrade(trade); err != nil {
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}

	order.Status = types.OrderStatusFilled
	order.ReservedAmount = decimal.Zero
	if err := db.UpdateOrder(order); err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	return trade, nil
}

func describe(order *types.Order, amounts Amounts) string {
	return fmt.Sprintf("%s %s %s @ %s (fee: %s)",
		order.Side, order.Quantity.String(), order.AssetSymbol,
		amounts.Price.StringFixed(2), amounts.Fee.StringFixed(2))
}
