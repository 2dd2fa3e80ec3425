package portfolio

import (
	"fmt"
	"strings"
	"time"

	"github.com/leon-biju/trading-simulator/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Scope selects PENDING orders for a sweep or a listing. Empty fields do
// not filter.
type Scope struct {
	Owner     string
	Assets    []string
	Exchange  string
	OrderType types.OrderType
	Limit     int

	// OffExchange restricts the scope to assets without an exchange.
	OffExchange bool
}

func (s Scope) String() string {
	parts := []string{}
	if s.Owner != "" {
		parts = append(parts, "owner="+s.Owner)
	}
	if len(s.Assets) > 0 {
		parts = append(parts, "assets="+strings.Join(s.Assets, ","))
	}
	if s.Exchange != "" {
		parts = append(parts, "exchange="+s.Exchange)
	}
	if s.OrderType != "" {
		parts = append(parts, "type="+string(s.OrderType))
	}
	if s.OffExchange {
		parts = append(parts, "off_exchange")
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, " ")
}

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetPendingOrders returns PENDING orders in the scope, oldest first.
func (d *Database) GetPendingOrders(scope Scope) ([]types.Order, error) {
	q := d.db.Where("status = ?", types.OrderStatusPending)
	if scope.Owner != "" {
		q = q.Where("owner = ?", scope.Owner)
	}
	if len(scope.Assets) > 0 {
		symbols := make([]string, len(scope.Assets))
		for i, a := range scope.Assets {
			symbols[i] = strings.ToUpper(a)
		}
		q = q.Where("asset_symbol IN ?", symbols)
	}
	if scope.Exchange != "" {
		q = q.Where("exchange_code = ?", strings.ToUpper(scope.Exchange))
	}
	if scope.OrderType != "" {
		q = q.Where("order_type = ?", scope.OrderType)
	}
	if scope.OffExchange {
		q = q.Where("exchange_code = ?", "")
	}
	if scope.Limit > 0 {
		q = q.Limit(scope.Limit)
	}

	var orders []types.Order
	if err := q.Order("created_at ASC, id ASC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch pending orders: %w", err)
	}
	return orders, nil
}

// GetStalePendingOrders returns PENDING orders created before cutoff.
func (d *Database) GetStalePendingOrders(cutoff time.Time) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.Where("status = ? AND created_at < ?", types.OrderStatusPending, cutoff).
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stale orders: %w", err)
	}
	return orders, nil
}

// CountPendingOrders counts every PENDING order.
func (d *Database) CountPendingOrders() (int64, error) {
	var count int64
	if err := d.db.Model(&types.Order{}).Where("status = ?", types.OrderStatusPending).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count pending orders: %w", err)
	}
	return count, nil
}

func (d *Database) GetTrades(owner string, limit int) ([]types.Trade, error) {
	q := d.db.Where("owner = ?", owner).Order("executed_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var trades []types.Trade
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch trades: %w", err)
	}
	return trades, nil
}

// StatusCount is one row of the per-status aggregate.
type StatusCount struct {
	Status types.OrderStatus
	Count  int
}

// GetOrderStatusCounts aggregates an owner's orders by status.
func (d *Database) GetOrderStatusCounts(owner string) ([]StatusCount, error) {
	query := `
		SELECT status, COUNT(*) AS count
		FROM orders
		WHERE owner = ?
		  AND deleted_at IS NULL
		GROUP BY status
	`

	var rows []StatusCount
	if err := d.db.Raw(query, owner).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders by status: %w", err)
	}
	return rows, nil
}

// UpsertSnapshot writes the snapshot, replacing the figures of an existing
// row for the same owner, currency and date.
func (d *Database) UpsertSnapshot(snap *types.PortfolioSnapshot) error {
	err := d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner"}, {Name: "currency"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_value", "total_cost", "cash_balance", "updated_at",
		}),
	}).Create(snap).Error
	if err != nil {
		return fmt.Errorf("failed to save portfolio snapshot: %w", err)
	}
	return nil
}

// GetSnapshots returns an owner's snapshots dated on or after since, oldest
// first.
func (d *Database) GetSnapshots(owner, since string) ([]types.PortfolioSnapshot, error) {
	var snaps []types.PortfolioSnapshot
	err := d.db.Where("owner = ? AND date >= ?", owner, since).
		Order("date ASC, currency ASC").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch portfolio snapshots: %w", err)
	}
	return snaps, nil
}

// GetWalletOwners lists every owner holding at least one wallet.
func (d *Database) GetWalletOwners() ([]string, error) {
	var owners []string
	err := d.db.Model(&types.Wallet{}).
		Distinct().
		Order("owner ASC").
		Pluck("owner", &owners).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet owners: %w", err)
	}
	return owners, nil
}
