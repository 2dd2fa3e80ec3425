package settlement

import (
	"errors"
	"fmt"

	"github.com/leon-biju/trading-simulator/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateTrade(trade *types.Trade) error {
	return d.db.Create(trade).Error
}

// UpdateOrder persists a status transition of an order loaded in the same
// transaction.
func (d *Database) UpdateOrder(order *types.Order) error {
	return d.db.Save(order).Error
}

func (d *Database) GetTradeByOrderID(orderID string) (*types.Trade, error) {
	var trade types.Trade
	if err := d.db.Where("order_id = ?", orderID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("trade for order %s: %w", orderID, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch trade: %w", err)
	}
	return &trade, nil
}
