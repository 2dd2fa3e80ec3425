package market

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leon-biju/trading-simulator/internal/config"
	"github.com/leon-biju/trading-simulator/internal/database"
	"github.com/leon-biju/trading-simulator/internal/types"
)

func newTestCalendar(t *testing.T, now time.Time) *Calendar {
	t.Helper()
	cal, err := NewCalendar([]config.ExchangeConfig{
		{Code: "LSE", Timezone: "UTC", Open: "08:00", Close: "16:30"},
		{Code: "SAT", Timezone: "UTC", Open: "00:00", Close: "23:59", TradingDays: []string{"Saturday"}},
	})
	require.NoError(t, err)
	return cal.WithClock(func() time.Time { return now })
}

func TestCalendarHours(t *testing.T) {
	// 2024-03-04 is a Monday
	tests := []struct {
		name string
		now  time.Time
		code string
		want bool
	}{
		{"before open", time.Date(2024, 3, 4, 7, 59, 0, 0, time.UTC), "LSE", false},
		{"at open", time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC), "LSE", true},
		{"midday", time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), "LSE", true},
		{"at close", time.Date(2024, 3, 4, 16, 30, 0, 0, time.UTC), "LSE", true},
		{"after close", time.Date(2024, 3, 4, 16, 31, 0, 0, time.UTC), "LSE", false},
		{"weekend", time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC), "LSE", false},
		{"custom trading day", time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC), "SAT", true},
		{"custom closed day", time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), "SAT", false},
		{"unknown exchange", time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), "NYSE", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newTestCalendar(t, tt.now).IsOpen(tt.code))
		})
	}
}

func TestCalendarOverridesAndTradability(t *testing.T) {
	monday := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	cal := newTestCalendar(t, monday)
	ctx := context.Background()

	stock := &types.Asset{Symbol: "ACME", ExchangeCode: "LSE", Active: true}
	fx := &types.Asset{Symbol: "GBPUSD", Active: true}
	halted := &types.Asset{Symbol: "HALT", ExchangeCode: "LSE", Active: false}

	assert.True(t, cal.IsTradable(ctx, stock))
	assert.True(t, cal.IsTradable(ctx, fx))
	assert.False(t, cal.IsTradable(ctx, halted))
	assert.False(t, cal.IsTradable(ctx, nil))
	assert.Equal(t, []string{"LSE"}, cal.OpenExchanges())

	cal.SetOverride("lse", false)
	assert.False(t, cal.IsTradable(ctx, stock))
	assert.True(t, cal.IsTradable(ctx, fx))
	assert.Empty(t, cal.OpenExchanges())

	cal.SetOverride("SAT", true)
	assert.Equal(t, []string{"SAT"}, cal.OpenExchanges())

	cal.ClearOverride("LSE")
	assert.Equal(t, []string{"LSE", "SAT"}, cal.OpenExchanges())
}

func TestNewCalendarRejectsBadConfig(t *testing.T) {
	_, err := NewCalendar([]config.ExchangeConfig{{Code: "X", Timezone: "Mars/Olympus", Open: "08:00", Close: "16:00"}})
	assert.Error(t, err)

	_, err = NewCalendar([]config.ExchangeConfig{{Code: "X", Timezone: "UTC", Open: "8am", Close: "16:00"}})
	assert.Error(t, err)

	_, err = NewCalendar([]config.ExchangeConfig{{Code: "X", Timezone: "UTC", Open: "08:00", Close: "16:00", TradingDays: []string{"Funday"}}})
	assert.Error(t, err)
}

func TestPriceBook(t *testing.T) {
	book := NewPriceBook()
	ctx := context.Background()

	_, err := book.LatestPrice(ctx, "ACME")
	assert.ErrorIs(t, err, types.ErrPriceUnavailable)

	require.NoError(t, book.SetPrice(ctx, "acme", decimal.RequireFromString("101.25")))
	price, err := book.LatestPrice(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, "101.25", price.String())

	assert.ErrorIs(t, book.SetPrice(ctx, "ACME", decimal.Zero), types.ErrValidation)
	assert.Len(t, book.Quotes(), 1)

	book.Remove("ACME")
	_, err = book.LatestPrice(ctx, "ACME")
	assert.ErrorIs(t, err, types.ErrPriceUnavailable)
}

func TestCatalogSeedUpsertsAndLoadsPrices(t *testing.T) {
	db, err := database.NewInMemory(uuid.NewString())
	require.NoError(t, err)
	catalog := NewCatalog(db)
	book := NewPriceBook()
	ctx := context.Background()
	inactive := false

	assets := []config.AssetConfig{
		{Symbol: "acme", Name: "Acme", Currency: "gbp", Exchange: "lse", SeedPrice: "10.50"},
		{Symbol: "GBPUSD", Name: "Cable", Type: "fx", Currency: "USD"},
		{Symbol: "DEAD", Name: "Delisted", Currency: "USD", Active: &inactive},
	}
	require.NoError(t, catalog.Seed(ctx, assets, book))

	acme, err := catalog.Get(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, "GBP", acme.Currency)
	assert.Equal(t, "LSE", acme.ExchangeCode)
	assert.Equal(t, types.AssetTypeStock, acme.AssetType)
	assert.True(t, acme.Active)

	fx, err := catalog.Get(ctx, "gbpusd")
	require.NoError(t, err)
	assert.Equal(t, types.AssetTypeFX, fx.AssetType)
	assert.Empty(t, fx.ExchangeCode)

	dead, err := catalog.Get(ctx, "DEAD")
	require.NoError(t, err)
	assert.False(t, dead.Active)

	price, err := book.LatestPrice(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, "10.5", price.String())

	assets[0].Name = "Acme Holdings"
	require.NoError(t, catalog.Seed(ctx, assets, nil))
	acme, err = catalog.Get(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, "Acme Holdings", acme.Name)

	list, err := catalog.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	require.NoError(t, catalog.SetActive(ctx, "acme", false))
	acme, err = catalog.Get(ctx, "ACME")
	require.NoError(t, err)
	assert.False(t, acme.Active)

	assert.ErrorIs(t, catalog.SetActive(ctx, "NOPE", true), types.ErrNotFound)
	_, err = catalog.Get(ctx, "NOPE")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
