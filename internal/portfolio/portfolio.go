package portfolio

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/leon-biju/trading-simulator/internal/position"
	"github.com/leon-biju/trading-simulator/internal/types"
)

const DefaultPendingLimit = 10

// PriceSource is the read side of the pricing service.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// AssetCatalog resolves asset symbols.
type AssetCatalog interface {
	Get(ctx context.Context, symbol string) (*types.Asset, error)
}

// Service is the query side: pending orders, positions, trades and the
// daily portfolio snapshots.
type Service struct {
	gormDB *gorm.DB
	prices PriceSource
	assets AssetCatalog
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(gormDB *gorm.DB, prices PriceSource, assets AssetCatalog) *Service {
	return &Service{
		gormDB: gormDB,
		prices: prices,
		assets: assets,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.With().Str("component", "portfolio_service").Logger(),
	}
}

// WithClock replaces the time source used to date snapshots.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) db(ctx context.Context) *Database {
	return NewDatabase(s.gormDB.WithContext(ctx))
}

// PendingOrdersForOwner lists an owner's PENDING orders, oldest first.
func (s *Service) PendingOrdersForOwner(ctx context.Context, owner string, limit int) ([]types.Order, error) {
	return s.db(ctx).GetPendingOrders(Scope{Owner: owner, Limit: limit})
}

// PendingOrdersForScope lists PENDING orders in an asset or exchange scope,
// oldest first.
func (s *Service) PendingOrdersForScope(ctx context.Context, scope Scope) ([]types.Order, error) {
	return s.db(ctx).GetPendingOrders(scope)
}

// StalePendingOrders lists PENDING orders created before cutoff, oldest first.
func (s *Service) StalePendingOrders(ctx context.Context, cutoff time.Time) ([]types.Order, error) {
	return s.db(ctx).GetStalePendingOrders(cutoff)
}

// CountPendingOrders counts PENDING orders across all owners.
func (s *Service) CountPendingOrders(ctx context.Context) (int64, error) {
	return s.db(ctx).CountPendingOrders()
}

// OpenPositions returns positions with quantity > 0 valued at the latest
// price. Valuation fields are nil when no price is known.
func (s *Service) OpenPositions(ctx context.Context, owner string) ([]types.PositionSnapshot, error) {
	positions, err := position.NewDatabase(s.gormDB.WithContext(ctx)).GetOpenByOwner(owner)
	if err != nil {
		return nil, err
	}

	snapshots := make([]types.PositionSnapshot, 0, len(positions))
	for i := range positions {
		snap, err := s.snapshot(ctx, &positions[i])
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func (s *Service) snapshot(ctx context.Context, p *types.Position) (types.PositionSnapshot, error) {
	snap := types.PositionSnapshot{
		Asset:           p.AssetSymbol,
		Quantity:        p.Quantity,
		PendingQuantity: p.PendingQuantity,
		AverageCost:     p.AverageCost,
		CostBasis:       types.Round2dp(p.CostBasis()),
		RealizedPnL:     p.RealizedPnL,
		UpdatedAt:       p.UpdatedAt,
	}

	asset, err := s.assets.Get(ctx, p.AssetSymbol)
	switch {
	case err == nil:
		snap.Currency = asset.Currency
	case !errors.Is(err, types.ErrNotFound):
		return snap, err
	}

	price, err := s.prices.LatestPrice(ctx, p.AssetSymbol)
	if err != nil {
		if errors.Is(err, types.ErrPriceUnavailable) {
			return snap, nil
		}
		return snap, err
	}

	value := types.Round2dp(p.Quantity.Mul(price))
	unrealized := UnrealizedPnL(p, price)
	snap.CurrentPrice = &price
	snap.MarketValue = &value
	snap.UnrealizedPnL = &unrealized
	return snap, nil
}

// UnrealizedPnL is the open quantity's value at price less its cost basis.
func UnrealizedPnL(p *types.Position, price decimal.Decimal) decimal.Decimal {
	return types.Round2dp(p.Quantity.Mul(price).Sub(p.CostBasis()))
}

// Trades returns the owner's most recent trades, newest first.
func (s *Service) Trades(ctx context.Context, owner string, limit int) ([]types.Trade, error) {
	return s.db(ctx).GetTrades(owner, limit)
}

// OrderSummary counts the owner's orders per status.
func (s *Service) OrderSummary(ctx context.Context, owner string) (*types.OrderSummary, error) {
	rows, err := s.db(ctx).GetOrderStatusCounts(owner)
	if err != nil {
		return nil, err
	}

	summary := &types.OrderSummary{Owner: owner, Counts: make(map[types.OrderStatus]int, len(rows))}
	for _, r := range rows {
		summary.Counts[r.Status] = r.Count
		summary.Total += r.Count
	}
	return summary, nil
}
