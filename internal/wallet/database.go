package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leon-biju/trading-simulator/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// WithTx returns a Database bound to an open transaction.
func (d *Database) WithTx(tx *gorm.DB) *Database {
	return &Database{db: tx}
}

// GetForUpdate loads the (owner, currency) wallet under a row lock. It
// returns types.ErrNotFound when the wallet does not exist.
func (d *Database) GetForUpdate(owner, currency string) (*types.Wallet, error) {
	const op = "wallet.GetForUpdate"

	var w types.Wallet
	err := d.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner = ? AND currency = ?", owner, strings.ToUpper(currency)).
		First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %s wallet: %w", op, strings.ToUpper(currency), types.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &w, nil
}

func (d *Database) GetByOwner(owner string) ([]types.Wallet, error) {
	var wallets []types.Wallet
	if err := d.db.Where("owner = ?", owner).Order("currency").Find(&wallets).Error; err != nil {
		return nil, err
	}
	return wallets, nil
}

// Save writes the wallet after checking its balance invariants.
func (d *Database) Save(w *types.Wallet) error {
	if err := w.CheckInvariants(); err != nil {
		return fmt.Errorf("wallet %s/%s balance=%s pending=%s: %w",
			w.Owner, w.Currency, w.Balance, w.PendingBalance, err)
	}
	return d.db.Save(w).Error
}

// CreateIfMissing inserts a zero wallet unless one already exists.
func (d *Database) CreateIfMissing(owner, currency string) (*types.Wallet, bool, error) {
	w := types.Wallet{Owner: owner, Currency: strings.ToUpper(currency)}
	res := d.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&w)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return &w, true, nil
	}

	var existing types.Wallet
	if err := d.db.Where("owner = ? AND currency = ?", owner, w.Currency).First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (d *Database) CreateTransaction(t *types.Transaction) error {
	return d.db.Create(t).Error
}

func (d *Database) GetTransactions(walletID uint, limit int) ([]types.Transaction, error) {
	var txs []types.Transaction
	q := d.db.Where("wallet_id = ?", walletID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}
