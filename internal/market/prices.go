package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/leon-biju/trading-simulator/internal/types"
	"github.com/shopspring/decimal"
)

// Quote is the latest known price of one asset.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at"`
}

// PriceBook is an in-process price store. It is the default pricing
// service and the write-through cache in front of redis.
type PriceBook struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewPriceBook() *PriceBook {
	return &PriceBook{quotes: make(map[string]Quote)}
}

// LatestPrice returns types.ErrPriceUnavailable when no price is known.
func (b *PriceBook) LatestPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	b.mu.RLock()
	q, ok := b.quotes[strings.ToUpper(symbol)]
	b.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, types.ErrPriceUnavailable)
	}
	return q.Price, nil
}

func (b *PriceBook) SetPrice(_ context.Context, symbol string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("price for %s must be positive: %w", symbol, types.ErrValidation)
	}
	b.mu.Lock()
	b.quotes[strings.ToUpper(symbol)] = Quote{Symbol: strings.ToUpper(symbol), Price: price, At: time.Now().UTC()}
	b.mu.Unlock()
	return nil
}

func (b *PriceBook) Remove(symbol string) {
	b.mu.Lock()
	delete(b.quotes, strings.ToUpper(symbol))
	b.mu.Unlock()
}

func (b *PriceBook) Quotes() []Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Quote, 0, len(b.quotes))
	for _, q := range b.quotes {
		out = append(out, q)
	}
	return out
}
