package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// TickHandler consumes decoded ticks.
type TickHandler interface {
	OnTick(ctx context.Context, ticks ...Tick) (PipelineResult, error)
}

// Subscriber feeds price ticks published on NATS into the pipeline. Ticks
// for the same symbol always land on the same worker so they apply in
// publish order.
type Subscriber struct {
	nc      *nats.Conn
	subject string
	handler TickHandler
	workers []chan Tick
	logger  zerolog.Logger

	wg sync.WaitGroup
}

func NewSubscriber(nc *nats.Conn, subject string, handler TickHandler, workers int) *Subscriber {
	if workers <= 0 {
		workers = 1
	}
	s := &Subscriber{
		nc:      nc,
		subject: subject,
		handler: handler,
		workers: make([]chan Tick, workers),
		logger:  log.With().Str("component", "price_subscriber").Str("subject", subject).Logger(),
	}
	for i := range s.workers {
		s.workers[i] = make(chan Tick, 1024)
	}
	return s
}

// Start subscribes and runs the workers until ctx is cancelled, at which
// point the subscription is drained.
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		tick, err := DecodeTick(msg.Subject, msg.Data)
		if err != nil {
			s.logger.Warn().Err(err).Str("msg_subject", msg.Subject).Msg("invalid price message")
			return
		}
		select {
		case s.workers[s.shard(tick.Symbol)] <- tick:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}

	for i := range s.workers {
		s.wg.Add(1)
		go s.work(ctx, s.workers[i])
	}
	s.logger.Info().Int("workers", len(s.workers)).Msg("subscribed to price feed")

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Error().Err(err).Msg("failed to drain subscription")
		}
	}()
	return nil
}

// Wait blocks until every worker has returned.
func (s *Subscriber) Wait() {
	s.wg.Wait()
}

func (s *Subscriber) work(ctx context.Context, ticks <-chan Tick) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticks:
			if _, err := s.handler.OnTick(ctx, tick); err != nil {
				s.logger.Error().Err(err).Str("symbol", tick.Symbol).Msg("failed to process tick")
			}
		}
	}
}

func (s *Subscriber) shard(symbol string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(len(s.workers)))
}

// DecodeTick accepts either a JSON tick or a bare decimal price, in which
// case the symbol is taken from the last subject token (prices.AAPL).
func DecodeTick(subject string, data []byte) (Tick, error) {
	var tick Tick
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &tick); err != nil {
			return Tick{}, err
		}
	} else {
		price, err := decimal.NewFromString(trimmed)
		if err != nil {
			return Tick{}, err
		}
		tick.Price = price
	}

	if tick.Symbol == "" {
		if i := strings.LastIndex(subject, "."); i >= 0 {
			tick.Symbol = subject[i+1:]
		}
	}
	tick.Symbol = strings.ToUpper(strings.TrimSpace(tick.Symbol))
	if tick.Symbol == "" || tick.Symbol == "*" || tick.Symbol == ">" {
		return Tick{}, fmt.Errorf("no symbol in message on %q", subject)
	}
	return tick, nil
}
