package wallet

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leon-biju/trading-simulator/internal/database"
	"github.com/leon-biju/trading-simulator/internal/lock"
	"github.com/leon-biju/trading-simulator/internal/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.NewInMemory(uuid.NewString())
	require.NoError(t, err)
	return NewService(db, lock.NewManager())
}

func TestProvisionWalletsIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	wallets, err := svc.ProvisionWallets(ctx, "alice", []string{"gbp", "USD", "GBP", " "})
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, "GBP", wallets[0].Currency)
	assert.Equal(t, "USD", wallets[1].Currency)
	assert.True(t, wallets[0].Balance.IsZero())

	_, err = svc.Deposit(ctx, "alice", "GBP", decimal.NewFromInt(50))
	require.NoError(t, err)

	wallets, err = svc.ProvisionWallets(ctx, "alice", []string{"GBP", "EUR"})
	require.NoError(t, err)
	require.Len(t, wallets, 3)
	for _, w := range wallets {
		if w.Currency == "GBP" {
			assert.True(t, decimal.NewFromInt(50).Equal(w.Balance), "provisioning must not reset balances")
		}
	}

	_, err = svc.ProvisionWallets(ctx, "", []string{"GBP"})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestDepositRecordsLedgerEntry(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.ProvisionWallets(ctx, "alice", []string{"GBP"})
	require.NoError(t, err)

	entry, err := svc.Deposit(ctx, "alice", "gbp", decimal.RequireFromString("250.005"))
	require.NoError(t, err)
	assert.Equal(t, types.TransactionDeposit, entry.Category)
	assert.Equal(t, "250.01", entry.Amount.StringFixed(2))
	assert.Equal(t, "250.01", entry.BalanceAfter.StringFixed(2))
	assert.Equal(t, "Deposit 250.01 GBP", entry.Description)

	wallets, err := svc.Wallets(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, wallets, 1)

	history, err := svc.db.GetTransactions(wallets[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entry.TransactionID, history[0].TransactionID)
}

func TestDepositFailures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.ProvisionWallets(ctx, "alice", []string{"GBP"})
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, "alice", "GBP", decimal.Zero)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = svc.Deposit(ctx, "alice", "JPY", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestConcurrentDepositsAllApply(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.ProvisionWallets(ctx, "alice", []string{"GBP"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Deposit(ctx, "alice", "GBP", decimal.RequireFromString("1.10"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	wallets, err := svc.Wallets(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "27.50", wallets[0].Balance.StringFixed(2))
}

func TestSaveRejectsNegativeAvailableBalance(t *testing.T) {
	svc := newTestService(t)
	w := &types.Wallet{Owner: "alice", Currency: "GBP", Balance: decimal.NewFromInt(10), PendingBalance: decimal.NewFromInt(11)}
	assert.ErrorIs(t, svc.db.Save(w), types.ErrInvariantViolation)
}

func TestDepositHandlerValidatesAmount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(t)
	_, err := svc.ProvisionWallets(context.Background(), "alice", []string{"GBP"})
	require.NoError(t, err)

	r := gin.New()
	r.POST("/deposit", NewGinHandlers(svc).DepositHandler())

	post := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/deposit", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, post(`{"owner":"alice","currency":"GBP","amount":"10.00"}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"owner":"alice","currency":"GBP","amount":"-1"}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"owner":"alice","currency":"POUNDS","amount":"1"}`))
	assert.Equal(t, http.StatusNotFound, post(`{"owner":"bob","currency":"GBP","amount":"1"}`))
}
