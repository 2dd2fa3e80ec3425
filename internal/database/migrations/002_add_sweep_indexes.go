package migrations

import "gorm.io/gorm"

// AddSweepIndexes adds the indexes used by trigger sweeps and ledger reads.
func AddSweepIndexes(db *gorm.DB) error {
	indexes := []string{
		// FIFO scan of pending orders within one asset
		`CREATE INDEX IF NOT EXISTS idx_orders_status_asset_created
		 ON orders(status, asset_symbol, created_at)`,

		// FIFO scan of pending orders within one exchange
		`CREATE INDEX IF NOT EXISTS idx_orders_status_exchange_created
		 ON orders(status, exchange_code, created_at)`,

		// Expiry sweep
		`CREATE INDEX IF NOT EXISTS idx_orders_status_created
		 ON orders(status, created_at)`,

		`CREATE INDEX IF NOT EXISTS idx_transactions_wallet_created
		 ON transactions(wallet_id, created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}

// Run applies every migration in order.
func Run(db *gorm.DB) error {
	if err := CreateTradingTables(db); err != nil {
		return err
	}
	if err := AddSweepIndexes(db); err != nil {
		return err
	}
	return CreatePortfolioSnapshots(db)
}
