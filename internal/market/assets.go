package market

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/leon-biju/trading-simulator/internal/config"
	"github.com/leon-biju/trading-simulator/internal/types"
)

// Catalog reads and seeds the asset table.
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Get(ctx context.Context, symbol string) (*types.Asset, error) {
	var asset types.Asset
	err := c.db.WithContext(ctx).Where("symbol = ?", strings.ToUpper(symbol)).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("asset %s: %w", symbol, types.ErrNotFound)
		}
		return nil, err
	}
	return &asset, nil
}

func (c *Catalog) List(ctx context.Context) ([]types.Asset, error) {
	var assets []types.Asset
	if err := c.db.WithContext(ctx).Order("symbol").Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

// Upsert inserts the asset or updates its descriptive fields.
func (c *Catalog) Upsert(ctx context.Context, asset *types.Asset) error {
	asset.Symbol = strings.ToUpper(asset.Symbol)
	asset.Currency = strings.ToUpper(asset.Currency)
	asset.ExchangeCode = strings.ToUpper(asset.ExchangeCode)
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "asset_type", "currency", "exchange_code", "active", "updated_at"}),
	}).Create(asset).Error
}

// SetActive toggles whether the asset may trade.
func (c *Catalog) SetActive(ctx context.Context, symbol string, active bool) error {
	res := c.db.WithContext(ctx).Model(&types.Asset{}).
		Where("symbol = ?", strings.ToUpper(symbol)).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("asset %s: %w", symbol, types.ErrNotFound)
	}
	return nil
}

// PriceSetter accepts price updates.
type PriceSetter interface {
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error
}

// Seed upserts the configured assets and loads their seed prices.
func (c *Catalog) Seed(ctx context.Context, assets []config.AssetConfig, prices PriceSetter) error {
	for _, a := range assets {
		asset := &types.Asset{
			Symbol:       a.Symbol,
			Name:         a.Name,
			AssetType:    types.AssetType(strings.ToUpper(a.Type)),
			Currency:     a.Currency,
			ExchangeCode: a.Exchange,
			Active:       a.IsActive(),
		}
		if asset.AssetType == "" {
			asset.AssetType = types.AssetTypeStock
		}
		if err := c.Upsert(ctx, asset); err != nil {
			return fmt.Errorf("failed to seed asset %s: %w", a.Symbol, err)
		}

		if a.SeedPrice != "" && prices != nil {
			if err := prices.SetPrice(ctx, a.Symbol, decimal.RequireFromString(a.SeedPrice)); err != nil {
				return fmt.Errorf("failed to seed price for %s: %w", a.Symbol, err)
			}
		}
	}

	log.Info().Str("component", "market").Int("assets", len(assets)).Msg("asset catalog seeded")
	return nil
}
