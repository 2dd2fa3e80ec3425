// Package position stores per-owner asset holdings.
package position

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leon-biju/trading-simulator/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) WithTx(tx *gorm.DB) *Database {
	return &Database{db: tx}
}

// GetForUpdate loads the (owner, asset) position under a row lock. It
// returns types.ErrNoPosition when none exists.
func (d *Database) GetForUpdate(owner, asset string) (*types.Position, error) {
	const op = "position.GetForUpdate"

	var p types.Position
	err := d.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner = ? AND asset_symbol = ?", owner, strings.ToUpper(asset)).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %s: %w", op, strings.ToUpper(asset), types.ErrNoPosition)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}

// GetOrNew returns the locked position, or an unsaved empty one.
func (d *Database) GetOrNew(owner, asset string) (*types.Position, error) {
	p, err := d.GetForUpdate(owner, asset)
	if errors.Is(err, types.ErrNoPosition) {
		return &types.Position{
			Owner:           owner,
			AssetSymbol:     strings.ToUpper(asset),
			Quantity:        decimal.Zero,
			PendingQuantity: decimal.Zero,
			AverageCost:     decimal.Zero,
			RealizedPnL:     decimal.Zero,
		}, nil
	}
	return p, err
}

// Save writes the position after checking its quantity invariants.
func (d *Database) Save(p *types.Position) error {
	if err := p.CheckInvariants(); err != nil {
		return fmt.Errorf("position %s/%s quantity=%s pending=%s: %w",
			p.Owner, p.AssetSymbol, p.Quantity, p.PendingQuantity, err)
	}
	return d.db.Save(p).Error
}

func (d *Database) GetByOwner(owner string) ([]types.Position, error) {
	var positions []types.Position
	if err := d.db.Where("owner = ?", owner).Order("asset_symbol").Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

// GetOpenByOwner returns positions with a non-zero quantity. Quantities are
// stored as exact decimal strings, so the filter runs in Go.
func (d *Database) GetOpenByOwner(owner string) ([]types.Position, error) {
	all, err := d.GetByOwner(owner)
	if err != nil {
		return nil, err
	}
	open := all[:0]
	for _, p := range all {
		if p.Quantity.IsPositive() {
			open = append(open, p)
		}
	}
	return open, nil
}
