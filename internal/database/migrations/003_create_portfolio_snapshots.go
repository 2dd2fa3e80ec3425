package migrations

import (
	"github.com/leon-biju/trading-simulator/internal/types"
	"gorm.io/gorm"
)

// CreatePortfolioSnapshots creates the daily valuation table.
func CreatePortfolioSnapshots(db *gorm.DB) error {
	return db.AutoMigrate(&types.PortfolioSnapshot{})
}
