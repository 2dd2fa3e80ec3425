package portfolio

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/leon-biju/trading-simulator/internal/position"
	"github.com/leon-biju/trading-simulator/internal/types"
	"github.com/leon-biju/trading-simulator/internal/wallet"
)

// SnapshotResult counts what one SnapshotAll pass did.
type SnapshotResult struct {
	Owners  int `json:"owners"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

type currencyTotals struct {
	value decimal.Decimal
	cost  decimal.Decimal
	cash  decimal.Decimal
}

// Snapshot values the owner's open positions and wallets per currency and
// stores one snapshot per currency for today. Positions without a known
// price are valued at their average cost. Amounts are never converted
// between currencies.
func (s *Service) Snapshot(ctx context.Context, owner string) ([]types.PortfolioSnapshot, error) {
	gormDB := s.gormDB.WithContext(ctx)

	wallets, err := wallet.NewDatabase(gormDB).GetByOwner(owner)
	if err != nil {
		return nil, err
	}
	positions, err := position.NewDatabase(gormDB).GetOpenByOwner(owner)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]*currencyTotals)
	totalsFor := func(currency string) *currencyTotals {
		t, ok := totals[currency]
		if !ok {
			t = &currencyTotals{value: decimal.Zero, cost: decimal.Zero, cash: decimal.Zero}
			totals[currency] = t
		}
		return t
	}

	for _, w := range wallets {
		t := totalsFor(w.Currency)
		t.cash = t.cash.Add(w.Balance)
	}
	for i := range positions {
		p := &positions[i]
		asset, err := s.assets.Get(ctx, p.AssetSymbol)
		if err != nil {
			return nil, err
		}
		price, err := s.markPrice(ctx, p)
		if err != nil {
			return nil, err
		}

		t := totalsFor(asset.Currency)
		t.value = t.value.Add(p.Quantity.Mul(price))
		t.cost = t.cost.Add(p.CostBasis())
	}

	currencies := make([]string, 0, len(totals))
	for c := range totals {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	date := s.now().UTC().Format(types.SnapshotDateLayout)
	snaps := make([]types.PortfolioSnapshot, 0, len(currencies))
	for _, c := range currencies {
		t := totals[c]
		snaps = append(snaps, types.PortfolioSnapshot{
			Owner:       owner,
			Currency:    c,
			Date:        date,
			TotalValue:  types.Round2dp(t.value),
			TotalCost:   types.Round2dp(t.cost),
			CashBalance: types.Round2dp(t.cash),
		})
	}

	err = gormDB.Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)
		for i := range snaps {
			if err := db.UpsertSnapshot(&snaps[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

// markPrice is the latest price, or the average cost when none is known.
func (s *Service) markPrice(ctx context.Context, p *types.Position) (decimal.Decimal, error) {
	price, err := s.prices.LatestPrice(ctx, p.AssetSymbol)
	if errors.Is(err, types.ErrPriceUnavailable) {
		return p.AverageCost, nil
	}
	return price, err
}

// History returns the owner's snapshots from the last days days, oldest
// first. A non-positive days returns the full history.
func (s *Service) History(ctx context.Context, owner string, days int) ([]types.PortfolioSnapshot, error) {
	since := ""
	if days > 0 {
		since = s.now().UTC().AddDate(0, 0, -days).Format(types.SnapshotDateLayout)
	}
	return s.db(ctx).GetSnapshots(owner, since)
}

// SnapshotAll snapshots every owner with a wallet. One owner failing does
// not stop the pass.
func (s *Service) SnapshotAll(ctx context.Context) (SnapshotResult, error) {
	var result SnapshotResult

	owners, err := s.db(ctx).GetWalletOwners()
	if err != nil {
		return result, err
	}

	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Owners++

		if _, err := s.Snapshot(ctx, owner); err != nil {
			result.Failed++
			s.logger.Error().Err(err).Str("owner", owner).Msg("failed to snapshot portfolio")
			continue
		}
		result.Success++
	}

	s.logger.Info().
		Int("owners", result.Owners).
		Int("success", result.Success).
		Int("failed", result.Failed).
		Msg("portfolio snapshots complete")
	return result, nil
}
