package trigger

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/leon-biju/trading-simulator/internal/portfolio"
	"github.com/leon-biju/trading-simulator/internal/types"
)

// PriceWriter stores new prices.
type PriceWriter interface {
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error
}

// ExchangeClock lists the exchanges trading now.
type ExchangeClock interface {
	OpenExchanges() []string
}

// Tick is one price update from the market data feed.
type Tick struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// PipelineResult reports each stage of a tick.
type PipelineResult struct {
	Updated []string    `json:"updated"`
	Limit   SweepResult `json:"limit"`
	Market  SweepResult `json:"market"`
}

// Pipeline runs, in order: price update, LIMIT sweep on the updated assets,
// MARKET sweep on open exchanges and on updated off-exchange assets. Limit
// checks therefore always see the new price.
type Pipeline struct {
	prices    PriceWriter
	processor *Processor
	clock     ExchangeClock
	logger    zerolog.Logger
}

func NewPipeline(prices PriceWriter, processor *Processor, clock ExchangeClock) *Pipeline {
	return &Pipeline{
		prices:    prices,
		processor: processor,
		clock:     clock,
		logger:    log.With().Str("component", "tick_pipeline").Logger(),
	}
}

func (p *Pipeline) OnTick(ctx context.Context, ticks ...Tick) (PipelineResult, error) {
	var result PipelineResult

	seen := make(map[string]bool, len(ticks))
	for _, t := range ticks {
		symbol := strings.ToUpper(t.Symbol)
		if err := p.prices.SetPrice(ctx, symbol, t.Price); err != nil {
			p.logger.Warn().Err(err).Str("symbol", symbol).Msg("dropping price tick")
			continue
		}
		if !seen[symbol] {
			seen[symbol] = true
			result.Updated = append(result.Updated, symbol)
		}
	}
	if len(result.Updated) == 0 {
		return result, nil
	}

	limit, err := p.processor.CheckLimitOrders(ctx, result.Updated)
	if err != nil {
		return result, err
	}
	result.Limit = limit

	market := SweepResult{Scope: "market"}
	for _, code := range p.clock.OpenExchanges() {
		r, err := p.processor.ProcessPendingOrders(ctx, portfolio.Scope{Exchange: code, OrderType: types.OrderTypeMarket})
		if err != nil {
			return result, err
		}
		market.Add(r)
	}
	r, err := p.processor.ProcessPendingOrders(ctx, portfolio.Scope{
		Assets:      result.Updated,
		OrderType:   types.OrderTypeMarket,
		OffExchange: true,
	})
	if err != nil {
		return result, err
	}
	market.Add(r)
	result.Market = market

	return result, nil
}
