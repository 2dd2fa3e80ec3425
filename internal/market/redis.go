package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/leon-biju/trading-simulator/internal/config"
	"github.com/leon-biju/trading-simulator/internal/types"
)

const pricePrefix = "trading:price"

// RedisPrices serves prices written by the market data feed to redis. Reads
// fall through to the local PriceBook when the key is missing or redis is
// unreachable.
type RedisPrices struct {
	client *redis.Client
	ttl    time.Duration
	local  *PriceBook
	logger zerolog.Logger
}

func NewRedisPrices(cfg config.RedisConfig, local *PriceBook) *RedisPrices {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisPrices{
		client: client,
		ttl:    cfg.PriceTTL,
		local:  local,
		logger: log.With().Str("component", "redis_prices").Logger(),
	}
}

func priceKey(symbol string) string {
	return pricePrefix + ":" + strings.ToUpper(symbol)
}

func (r *RedisPrices) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisPrices) Close() error {
	return r.client.Close()
}

func (r *RedisPrices) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	raw, err := r.client.Get(ctx, priceKey(symbol)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return r.local.LatestPrice(ctx, symbol)
	case err != nil:
		r.logger.Warn().Err(err).Str("symbol", symbol).Msg("redis read failed, using local price")
		return r.local.LatestPrice(ctx, symbol)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil || !price.IsPositive() {
		r.logger.Error().Str("symbol", symbol).Str("raw", raw).Msg("invalid price in redis")
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, types.ErrPriceUnavailable)
	}
	return price, nil
}

func (r *RedisPrices) SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	if err := r.local.SetPrice(ctx, symbol, price); err != nil {
		return err
	}
	if err := r.client.Set(ctx, priceKey(symbol), price.String(), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save price for %s: %w", symbol, err)
	}
	return nil
}

// SetPrices writes a batch of quotes in one pipeline.
func (r *RedisPrices) SetPrices(ctx context.Context, quotes []Quote) error {
	pipe := r.client.Pipeline()
	for _, q := range quotes {
		if err := r.local.SetPrice(ctx, q.Symbol, q.Price); err != nil {
			return err
		}
		pipe.Set(ctx, priceKey(q.Symbol), q.Price.String(), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save prices: %w", err)
	}
	return nil
}
