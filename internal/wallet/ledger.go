package wallet

import (
	"github.com/google/uuid"
	"github.com/leon-biju/trading-simulator/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger appends wallet transactions. Callers apply the balance change to
// the locked wallet first; the entry records the resulting balance.
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Record writes one entry for a signed amount inside tx.
func (l *Ledger) Record(tx *gorm.DB, w *types.Wallet, amount decimal.Decimal, category types.TransactionCategory, description string) (*types.Transaction, error) {
	entry := &types.Transaction{
		TransactionID: uuid.New().String(),
		WalletID:      w.ID,
		Owner:         w.Owner,
		Currency:      w.Currency,
		Amount:        amount,
		BalanceAfter:  w.Balance,
		Category:      category,
		Description:   description,
	}
	if err := NewDatabase(tx).CreateTransaction(entry); err != nil {
		return nil, err
	}
	return entry, nil
}
