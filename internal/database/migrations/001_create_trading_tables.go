package migrations

import (
	"github.com/leon-biju/trading-simulator/internal/types"
	"gorm.io/gorm"
)

// CreateTradingTables creates the order, position, wallet and ledger tables.
func CreateTradingTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Asset{},
		&types.Wallet{},
		&types.Transaction{},
		&types.Position{},
		&types.Order{},
		&types.Trade{},
		&types.IdempotencyRecord{},
	)
}
