// Package trigger re-scans PENDING orders when prices move, markets open
// or orders age out, and feeds them back through the order lifecycle.
package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leon-biju/trading-simulator/internal/portfolio"
	"github.com/leon-biju/trading-simulator/internal/types"
)

// Executor is the subset of the order lifecycle used by sweeps.
type Executor interface {
	ExecutePendingOrder(ctx context.Context, orderID string) (*types.Trade, error)
	ExpireOrder(ctx context.Context, orderID string) (*types.Order, error)
}

// OrderSource lists candidate orders.
type OrderSource interface {
	PendingOrdersForScope(ctx context.Context, scope portfolio.Scope) ([]types.Order, error)
	StalePendingOrders(ctx context.Context, cutoff time.Time) ([]types.Order, error)
	CountPendingOrders(ctx context.Context) (int64, error)
}

// SweepResult counts what one pass over a scope did.
type SweepResult struct {
	Scope      string `json:"scope"`
	Considered int    `json:"considered"`
	Executed   int    `json:"executed"`
	Skipped    int    `json:"skipped"`
	Rejected   int    `json:"rejected"`
	Failed     int    `json:"failed"`
}

func (r *SweepResult) Add(o SweepResult) {
	r.Considered += o.Considered
	r.Executed += o.Executed
	r.Skipped += o.Skipped
	r.Rejected += o.Rejected
	r.Failed += o.Failed
}

// ExpiryResult counts what one expiry pass did. RemainingPending is the
// number of PENDING orders left once the pass finished.
type ExpiryResult struct {
	Considered       int   `json:"considered"`
	Expired          int   `json:"expired"`
	Skipped          int   `json:"skipped"`
	Failed           int   `json:"failed"`
	RemainingPending int64 `json:"remaining_pending"`
}

type Processor struct {
	orders   OrderSource
	executor Executor
	now      func() time.Time
	logger   zerolog.Logger
}

func NewProcessor(orders OrderSource, executor Executor) *Processor {
	return &Processor{
		orders:   orders,
		executor: executor,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.With().Str("component", "trigger_processor").Logger(),
	}
}

// WithClock replaces the time source used for expiry cutoffs.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// ProcessPendingOrders tries every PENDING order in scope, oldest first.
// A failing order is logged and counted and the sweep moves on. Orders that
// cannot execute yet, have no price, or were resolved concurrently are
// counted as skipped.
func (p *Processor) ProcessPendingOrders(ctx context.Context, scope portfolio.Scope) (SweepResult, error) {
	result := SweepResult{Scope: scope.String()}

	orders, err := p.orders.PendingOrdersForScope(ctx, scope)
	if err != nil {
		return result, err
	}

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Considered++

		trade, err := p.executor.ExecutePendingOrder(ctx, order.OrderID)
		switch {
		case err == nil && trade != nil:
			result.Executed++
		case err == nil:
			result.Skipped++
		case errors.Is(err, types.ErrPriceUnavailable), errors.Is(err, types.ErrInvalidState):
			result.Skipped++
		case errors.Is(err, types.ErrOrderRejected):
			result.Rejected++
		default:
			result.Failed++
			p.logger.Error().
				Err(err).
				Str("order_id", order.OrderID).
				Str("asset", order.AssetSymbol).
				Msg("failed to execute pending order")
		}
	}

	if result.Considered > 0 {
		p.logger.Info().
			Str("scope", result.Scope).
			Int("considered", result.Considered).
			Int("executed", result.Executed).
			Int("skipped", result.Skipped).
			Int("rejected", result.Rejected).
			Int("failed", result.Failed).
			Msg("pending order sweep complete")
	}
	return result, nil
}

// CheckLimitOrders sweeps LIMIT orders on the given assets.
func (p *Processor) CheckLimitOrders(ctx context.Context, assets []string) (SweepResult, error) {
	if len(assets) == 0 {
		return SweepResult{Scope: "none"}, nil
	}
	return p.ProcessPendingOrders(ctx, portfolio.Scope{Assets: assets, OrderType: types.OrderTypeLimit})
}

// ExpireStaleOrders expires PENDING orders older than maxAge one at a time
// so each reservation is released under its own lock.
func (p *Processor) ExpireStaleOrders(ctx context.Context, maxAge time.Duration) (ExpiryResult, error) {
	var result ExpiryResult

	cutoff := p.now().Add(-maxAge)
	orders, err := p.orders.StalePendingOrders(ctx, cutoff)
	if err != nil {
		return result, err
	}

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Considered++

		_, err := p.executor.ExpireOrder(ctx, order.OrderID)
		switch {
		case err == nil:
			result.Expired++
		case errors.Is(err, types.ErrInvalidState):
			result.Skipped++
		default:
			result.Failed++
			p.logger.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to expire order")
		}
	}

	remaining, err := p.orders.CountPendingOrders(ctx)
	if err != nil {
		return result, err
	}
	result.RemainingPending = remaining

	p.logger.Info().
		Time("cutoff", cutoff).
		Int("considered", result.Considered).
		Int("expired", result.Expired).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int64("remaining_pending", remaining).
		Msg("stale order expiry complete")
	return result, nil
}
