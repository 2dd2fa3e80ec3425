package trading

import (
	"errors"
	"fmt"
	"time"

	"github.com/leon-biju/trading-simulator/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const idempotencyTTL = 24 * time.Hour

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) WithTx(tx *gorm.DB) *Database {
	return &Database{db: tx}
}

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

// GetOrder returns nil, nil when the order does not exist.
func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetOrderForUpdate reloads the order under a row lock so its status can
// be re-checked inside the critical section.
func (d *Database) GetOrderForUpdate(orderID string) (*types.Order, error) {
	var order types.Order
	err := d.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, types.ErrNotFound)
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) GetOrderByOrderIDAndOwner(orderID, owner string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ? AND owner = ?", orderID, owner).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) UpdateOrder(order *types.Order) error {
	return d.db.Save(order).Error
}

func idempotencyKey(owner, key string) string {
	return owner + ":" + key
}

// GetIdempotencyRecord returns nil, nil when no live record exists.
func (d *Database) GetIdempotencyRecord(owner, key string, now time.Time) (*types.IdempotencyRecord, error) {
	var record types.IdempotencyRecord
	err := d.db.Where("idempotency_key = ? AND expires_at > ?", idempotencyKey(owner, key), now).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// CreateIdempotencyRecord replaces any expired record for the same key.
func (d *Database) CreateIdempotencyRecord(owner, key, orderID string, now time.Time) error {
	fullKey := idempotencyKey(owner, key)
	if err := d.db.Unscoped().
		Where("idempotency_key = ? AND expires_at <= ?", fullKey, now).
		Delete(&types.IdempotencyRecord{}).Error; err != nil {
		return err
	}

	record := types.IdempotencyRecord{
		IdempotencyKey: fullKey,
		Owner:          owner,
		ResourceID:     orderID,
		ResourceType:   "order",
		ExpiresAt:      now.Add(idempotencyTTL),
	}
	return d.db.Create(&record).Error
}
