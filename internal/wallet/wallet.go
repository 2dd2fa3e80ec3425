package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/leon-biju/trading-simulator/internal/auth"
	"github.com/leon-biju/trading-simulator/internal/lock"
	"github.com/leon-biju/trading-simulator/internal/types"
	"github.com/leon-biju/trading-simulator/pkg/response"
	"github.com/leon-biju/trading-simulator/pkg/validation"
)

// Service provisions wallets and applies deposits.
type Service struct {
	gormDB *gorm.DB
	db     *Database
	ledger *Ledger
	locks  *lock.Manager
}

// NewService creates a new wallet service
func NewService(gormDB *gorm.DB, locks *lock.Manager) *Service {
	return &Service{
		gormDB: gormDB,
		db:     NewDatabase(gormDB),
		ledger: NewLedger(),
		locks:  locks,
	}
}

// ProvisionWallets creates any missing wallets for owner. It is called by
// account creation and is safe to repeat.
func (s *Service) ProvisionWallets(ctx context.Context, owner string, currencies []string) ([]types.Wallet, error) {
	if owner == "" {
		return nil, fmt.Errorf("owner is required: %w", types.ErrValidation)
	}

	logger := log.With().Str("component", "wallet").Str("owner", owner).Logger()
	db := NewDatabase(s.gormDB.WithContext(ctx))

	seen := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		currency := strings.ToUpper(strings.TrimSpace(c))
		if currency == "" || seen[currency] {
			continue
		}
		seen[currency] = true

		_, created, err := db.CreateIfMissing(owner, currency)
		if err != nil {
			return nil, fmt.Errorf("failed to provision %s wallet: %w", currency, err)
		}
		if created {
			logger.Info().Str("currency", currency).Msg("wallet provisioned")
		}
	}

	return db.GetByOwner(owner)
}

// Deposit credits amount to the owner's wallet and records a DEPOSIT entry.
func (s *Service) Deposit(ctx context.Context, owner, currency string, amount decimal.Decimal) (*types.Transaction, error) {
	amount = types.Round2dp(amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("deposit amount must be positive: %w", types.ErrValidation)
	}

	unlock := s.locks.LockWallet(owner, currency)
	defer unlock()

	var entry *types.Transaction
	err := s.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		db := s.db.WithTx(tx)
		w, err := db.GetForUpdate(owner, currency)
		if err != nil {
			return err
		}

		w.Balance = w.Balance.Add(amount)
		if err := db.Save(w); err != nil {
			return err
		}

		entry, err = s.ledger.Record(tx, w, amount, types.TransactionDeposit, fmt.Sprintf("Deposit %s %s", amount.StringFixed(2), w.Currency))
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("component", "wallet").
		Str("owner", owner).
		Str("currency", entry.Currency).
		Str("amount", amount.String()).
		Msg("deposit applied")
	return entry, nil
}

// Wallets returns every wallet the owner holds
func (s *Service) Wallets(ctx context.Context, owner string) ([]types.Wallet, error) {
	return NewDatabase(s.gormDB.WithContext(ctx)).GetByOwner(owner)
}

// GinHandlers contains HTTP handlers for wallet endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	validation.Register()
	return &GinHandlers{service: service}
}

type provisionRequest struct {
	Owner      string   `json:"owner" binding:"required"`
	Currencies []string `json:"currencies" binding:"required,min=1"`
}

type depositRequest struct {
	Owner    string          `json:"owner" binding:"required"`
	Currency string          `json:"currency" binding:"required,len=3"`
	Amount   decimal.Decimal `json:"amount" binding:"decimal_gt0"`
}

// ListWalletsHandler returns the caller's wallets
func (h *GinHandlers) ListWalletsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := auth.OwnerFromContext(c)
		if owner == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		wallets, err := h.service.Wallets(c.Request.Context(), owner)
		response.Handle(c, wallets, err)
	}
}

// ProvisionHandler creates wallets for an account. Internal only.
func (h *GinHandlers) ProvisionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req provisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}

		wallets, err := h.service.ProvisionWallets(c.Request.Context(), req.Owner, req.Currencies)
		response.Handle(c, wallets, err)
	}
}

// DepositHandler credits a wallet. Internal only.
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req depositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}

		entry, err := h.service.Deposit(c.Request.Context(), req.Owner, req.Currency, req.Amount)
		response.Handle(c, entry, err)
	}
}
