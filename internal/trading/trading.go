package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/leon-biju/trading-simulator/internal/lock"
	"github.com/leon-biju/trading-simulator/internal/position"
	"github.com/leon-biju/trading-simulator/internal/settlement"
	"github.com/leon-biju/trading-simulator/internal/types"
	"github.com/leon-biju/trading-simulator/internal/wallet"
)

// MarketHours decides whether an asset may trade right now.
type MarketHours interface {
	IsTradable(ctx context.Context, asset *types.Asset) bool
}

// AssetCatalog resolves asset symbols.
type AssetCatalog interface {
	Get(ctx context.Context, symbol string) (*types.Asset, error)
}

// Dependencies are the collaborators of the order lifecycle.
type Dependencies struct {
	Engine *settlement.Engine
	Prices settlement.PriceSource
	Hours  MarketHours
	Assets AssetCatalog
	Locks  *lock.Manager
}

// Service places, cancels, executes and expires orders. Every mutation runs
// with the owner's wallet and position locks held, wallet first, inside one
// database transaction.
type Service struct {
	gormDB *gorm.DB
	db     *Database
	engine *settlement.Engine
	prices settlement.PriceSource
	hours  MarketHours
	assets AssetCatalog
	locks  *lock.Manager
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a new trading service
func NewService(gormDB *gorm.DB, deps Dependencies) *Service {
	return &Service{
		gormDB: gormDB,
		db:     NewDatabase(gormDB),
		engine: deps.Engine,
		prices: deps.Prices,
		hours:  deps.Hours,
		assets: deps.Assets,
		locks:  deps.Locks,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.With().Str("component", "order_lifecycle").Logger(),
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PlaceOrder reserves funds (BUY) or holdings (SELL) and creates a PENDING
// order. If the asset is tradable and the limit condition already holds,
// the order is executed in the same critical section and returned FILLED or
// REJECTED.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*types.Order, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.replay(ctx, req.Owner, req.IdempotencyKey)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	asset, err := s.assets.Get(ctx, req.Asset)
	if err != nil {
		return nil, err
	}

	reserved := decimal.Zero
	if req.Side == types.OrderSideBuy {
		price, err := s.reservationPrice(ctx, req)
		if err != nil {
			return nil, err
		}
		reserved = types.Round2dp(req.Quantity.Mul(price))
	}

	order := &types.Order{
		OrderID:        uuid.New().String(),
		Owner:          req.Owner,
		AssetSymbol:    asset.Symbol,
		ExchangeCode:   asset.ExchangeCode,
		Currency:       asset.Currency,
		Side:           req.Side,
		OrderType:      req.OrderType,
		Quantity:       req.Quantity,
		LimitPrice:     req.LimitPrice,
		Status:         types.OrderStatusPending,
		ReservedAmount: reserved,
	}

	logger := s.logger.With().
		Str("order_id", order.OrderID).
		Str("owner", order.Owner).
		Str("asset", order.AssetSymbol).
		Str("side", string(order.Side)).
		Str("order_type", string(order.OrderType)).
		Logger()

	unlock := s.locks.Acquire(order.Owner, order.Currency, order.AssetSymbol)
	defer unlock()

	var (
		settleErr error
		replayed  *types.Order
	)
	err = s.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		order.CreatedAt = now
		order.UpdatedAt = now

		// a concurrent request with the same key may have committed while
		// this one waited for the lock
		if req.IdempotencyKey != "" {
			existing, err := s.replayIn(tx, req.Owner, req.IdempotencyKey)
			if err != nil || existing != nil {
				replayed = existing
				return err
			}
		}

		w, pos, err := s.reserve(tx, order)
		if err != nil {
			return err
		}

		if err := s.db.WithTx(tx).CreateOrder(order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		if req.IdempotencyKey != "" {
			if err := s.db.WithTx(tx).CreateIdempotencyRecord(order.Owner, req.IdempotencyKey, order.OrderID, now); err != nil {
				return fmt.Errorf("failed to create idempotency record: %w", err)
			}
		}

		if !s.readyToExecute(ctx, order, asset) {
			return nil
		}

		_, settleErr = s.engine.Execute(ctx, tx, order, w, pos)
		switch {
		case settleErr == nil, errors.Is(settleErr, types.ErrOrderRejected):
			return nil
		case errors.Is(settleErr, types.ErrPriceUnavailable):
			// price vanished after the readiness check; the order stays PENDING
			settleErr = nil
			return nil
		default:
			return settleErr
		}
	})
	if err != nil && req.IdempotencyKey != "" && errors.Is(err, gorm.ErrDuplicatedKey) {
		// another process committed the same key between our check and insert
		existing, replayErr := s.replay(ctx, req.Owner, req.IdempotencyKey)
		if replayErr == nil && existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		logger.Debug().Err(err).Msg("order placement failed")
		return nil, err
	}
	if replayed != nil {
		return replayed, nil
	}

	if settleErr != nil {
		logger.Warn().Err(settleErr).Msg("order rejected on placement")
	} else {
		logger.Info().
			Str("status", string(order.Status)).
			Str("quantity", order.Quantity.String()).
			Str("reserved_amount", reserved.String()).
			Msg("order placed")
	}
	return order, nil
}

func (s *Service) replay(ctx context.Context, owner, key string) (*types.Order, error) {
	return s.replayIn(s.gormDB.WithContext(ctx), owner, key)
}

// replayIn returns the order already placed under key, or nil.
func (s *Service) replayIn(tx *gorm.DB, owner, key string) (*types.Order, error) {
	db := s.db.WithTx(tx)
	record, err := db.GetIdempotencyRecord(owner, key, s.now())
	if err != nil || record == nil {
		return nil, err
	}
	order, err := db.GetOrder(record.ResourceID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", record.ResourceID, types.ErrNotFound)
	}
	s.logger.Info().Str("order_id", order.OrderID).Str("owner", owner).Msg("idempotent replay of order")
	return order, nil
}

// reservationPrice is the limit price for LIMIT orders and the market price
// for MARKET orders.
func (s *Service) reservationPrice(ctx context.Context, req PlaceOrderRequest) (decimal.Decimal, error) {
	if req.OrderType == types.OrderTypeLimit {
		return req.LimitPrice.Decimal, nil
	}
	return s.prices.LatestPrice(ctx, req.Asset)
}

// reserve takes the placement hold inside tx and returns the locked wallet
// and position for a possible immediate execution. The position is nil for
// a BUY into an asset the owner does not hold yet.
func (s *Service) reserve(tx *gorm.DB, order *types.Order) (*types.Wallet, *types.Position, error) {
	wallets := wallet.NewDatabase(tx)
	positions := position.NewDatabase(tx)

	w, err := wallets.GetForUpdate(order.Owner, order.Currency)
	if err != nil {
		return nil, nil, err
	}

	switch order.Side {
	case types.OrderSideBuy:
		if w.AvailableBalance().LessThan(order.ReservedAmount) {
			return nil, nil, fmt.Errorf("need %s %s, available %s: %w",
				order.ReservedAmount.StringFixed(2), w.Currency, w.AvailableBalance().StringFixed(2), types.ErrInsufficientFunds)
		}
		w.PendingBalance = w.PendingBalance.Add(order.ReservedAmount)
		if err := wallets.Save(w); err != nil {
			return nil, nil, err
		}

		pos, err := positions.GetForUpdate(order.Owner, order.AssetSymbol)
		if errors.Is(err, types.ErrNoPosition) {
			return w, nil, nil
		}
		return w, pos, err

	default:
		pos, err := positions.GetForUpdate(order.Owner, order.AssetSymbol)
		if err != nil {
			return nil, nil, err
		}
		if pos.AvailableQuantity().LessThan(order.Quantity) {
			return nil, nil, fmt.Errorf("need %s %s, available %s: %w",
				order.Quantity, order.AssetSymbol, pos.AvailableQuantity(), types.ErrInsufficientHoldings)
		}
		pos.PendingQuantity = pos.PendingQuantity.Add(order.Quantity)
		if err := positions.Save(pos); err != nil {
			return nil, nil, err
		}
		return w, pos, nil
	}
}

// readyToExecute checks tradability, price availability and the limit
// condition without mutating anything.
func (s *Service) readyToExecute(ctx context.Context, order *types.Order, asset *types.Asset) bool {
	if !s.hours.IsTradable(ctx, asset) {
		return false
	}
	price, err := s.prices.LatestPrice(ctx, order.AssetSymbol)
	if err != nil {
		return false
	}
	return CheckLimitCondition(order, price)
}

// CancelOrder releases the reservation of a PENDING order owned by owner.
func (s *Service) CancelOrder(ctx context.Context, orderID, owner string) (*types.Order, error) {
	order, err := s.db.WithTx(s.gormDB.WithContext(ctx)).GetOrderByOrderIDAndOwner(orderID, owner)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, types.ErrNotFound)
	}

	order, err = s.closeOrder(ctx, order, types.OrderStatusCancelled)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("order_id", order.OrderID).Str("owner", owner).Msg("order cancelled")
	return order, nil
}

// ExpireOrder releases the reservation of a PENDING order and marks it
// EXPIRED. It fails with types.ErrInvalidState if the order was resolved
// concurrently.
func (s *Service) ExpireOrder(ctx context.Context, orderID string) (*types.Order, error) {
	order, err := s.db.WithTx(s.gormDB.WithContext(ctx)).GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, types.ErrNotFound)
	}
	return s.closeOrder(ctx, order, types.OrderStatusExpired)
}

// closeOrder moves a PENDING order to CANCELLED or EXPIRED under lock.
func (s *Service) closeOrder(ctx context.Context, snapshot *types.Order, status types.OrderStatus) (*types.Order, error) {
	if !snapshot.IsPending() {
		return nil, fmt.Errorf("order %s is %s: %w", snapshot.OrderID, snapshot.Status, types.ErrInvalidState)
	}

	unlock := s.lockFor(snapshot)
	defer unlock()

	var order *types.Order
	err := s.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.db.WithTx(tx).GetOrderForUpdate(snapshot.OrderID)
		if err != nil {
			return err
		}
		if !order.IsPending() {
			return fmt.Errorf("order %s is %s: %w", order.OrderID, order.Status, types.ErrInvalidState)
		}

		if err := releaseOrderReservation(tx, order); err != nil {
			return err
		}

		now := s.now()
		order.Status = status
		order.ReservedAmount = decimal.Zero
		order.UpdatedAt = now
		if status == types.OrderStatusCancelled {
			order.CancelledAt = &now
		}
		return s.db.WithTx(tx).UpdateOrder(order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// lockFor takes only the aggregate holding the order's reservation.
func (s *Service) lockFor(order *types.Order) func() {
	if order.Side == types.OrderSideBuy {
		return s.locks.Acquire(order.Owner, order.Currency, "")
	}
	return s.locks.Acquire(order.Owner, "", order.AssetSymbol)
}

// releaseOrderReservation returns a PENDING order's hold to its wallet or
// position. It is not idempotent: callers invoke it once, under lock, after
// confirming the order is still PENDING.
func releaseOrderReservation(tx *gorm.DB, order *types.Order) error {
	switch order.Side {
	case types.OrderSideBuy:
		wallets := wallet.NewDatabase(tx)
		w, err := wallets.GetForUpdate(order.Owner, order.Currency)
		if err != nil {
			return err
		}
		w.PendingBalance = w.PendingBalance.Sub(order.ReservedAmount)
		return wallets.Save(w)
	case types.OrderSideSell:
		positions := position.NewDatabase(tx)
		pos, err := positions.GetForUpdate(order.Owner, order.AssetSymbol)
		if err != nil {
			return err
		}
		pos.PendingQuantity = pos.PendingQuantity.Sub(order.Quantity)
		return positions.Save(pos)
	}
	return fmt.Errorf("order %s has side %q: %w", order.OrderID, order.Side, types.ErrValidation)
}

// ExecutePendingOrder executes a PENDING order if its asset is tradable, a
// price exists and the limit condition holds. It returns nil, nil when the
// order cannot execute yet. A rejection is persisted before its error is
// returned.
func (s *Service) ExecutePendingOrder(ctx context.Context, orderID string) (*types.Trade, error) {
	snapshot, err := s.db.WithTx(s.gormDB.WithContext(ctx)).GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, types.ErrNotFound)
	}
	if !snapshot.IsPending() {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, snapshot.Status, types.ErrInvalidState)
	}

	asset, err := s.assets.Get(ctx, snapshot.AssetSymbol)
	if err != nil {
		return nil, err
	}
	if !s.readyToExecute(ctx, snapshot, asset) {
		return nil, nil
	}

	unlock := s.locks.Acquire(snapshot.Owner, snapshot.Currency, snapshot.AssetSymbol)
	defer unlock()

	var (
		trade     *types.Trade
		rejection error
	)
	err = s.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.db.WithTx(tx).GetOrderForUpdate(orderID)
		if err != nil {
			return err
		}
		if !order.IsPending() {
			return fmt.Errorf("order %s is %s: %w", orderID, order.Status, types.ErrInvalidState)
		}

		w, err := wallet.NewDatabase(tx).GetForUpdate(order.Owner, order.Currency)
		if err != nil {
			return err
		}
		pos, err := position.NewDatabase(tx).GetForUpdate(order.Owner, order.AssetSymbol)
		if err != nil && !(errors.Is(err, types.ErrNoPosition) && order.Side == types.OrderSideBuy) {
			return err
		}

		trade, err = s.engine.Execute(ctx, tx, order, w, pos)
		if errors.Is(err, types.ErrOrderRejected) {
			rejection = err
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		s.logger.Warn().Err(rejection).Str("order_id", orderID).Msg("pending order rejected")
		return nil, rejection
	}

	s.logger.Info().
		Str("order_id", orderID).
		Str("trade_id", trade.TradeID).
		Str("price", trade.Price.String()).
		Msg("pending order executed")
	return trade, nil
}

// GetOrder returns the caller's order.
func (s *Service) GetOrder(ctx context.Context, orderID, owner string) (*types.Order, error) {
	order, err := s.db.WithTx(s.gormDB.WithContext(ctx)).GetOrderByOrderIDAndOwner(orderID, owner)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, types.ErrNotFound)
	}
	return order, nil
}
