package trigger

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leon-biju/trading-simulator/internal/portfolio"
)

// Snapshotter takes the daily portfolio snapshots.
type Snapshotter interface {
	SnapshotAll(ctx context.Context) (portfolio.SnapshotResult, error)
}

// Scheduler drives the periodic work: pending order sweeps on open
// exchanges and off-exchange assets, stale order expiry and, when
// configured, portfolio snapshots.
type Scheduler struct {
	processor      *Processor
	clock          ExchangeClock
	sweepInterval  time.Duration
	expiryInterval time.Duration
	maxAge         time.Duration

	snapshots        Snapshotter
	snapshotInterval time.Duration

	open map[string]bool
}

func NewScheduler(processor *Processor, clock ExchangeClock, sweepInterval, expiryInterval, maxAge time.Duration) *Scheduler {
	return &Scheduler{
		processor:      processor,
		clock:          clock,
		sweepInterval:  sweepInterval,
		expiryInterval: expiryInterval,
		maxAge:         maxAge,
		open:           make(map[string]bool),
	}
}

// WithSnapshots takes portfolio snapshots every interval. A nil snapshotter
// or a non-positive interval leaves snapshots off.
func (s *Scheduler) WithSnapshots(snapshots Snapshotter, interval time.Duration) *Scheduler {
	if snapshots == nil || interval <= 0 {
		s.snapshots = nil
		return s
	}
	s.snapshots = snapshots
	s.snapshotInterval = interval
	return s
}

// Start runs until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	logger := log.With().Str("component", "trigger_scheduler").Logger()
	logger.Info().
		Dur("sweep_interval", s.sweepInterval).
		Dur("expiry_interval", s.expiryInterval).
		Dur("max_age", s.maxAge).
		Dur("snapshot_interval", s.snapshotInterval).
		Msg("starting trigger scheduler")

	sweep := time.NewTicker(s.sweepInterval)
	defer sweep.Stop()
	expiry := time.NewTicker(s.expiryInterval)
	defer expiry.Stop()

	// nil channel: never fires
	var snapshot <-chan time.Time
	if s.snapshots != nil {
		t := time.NewTicker(s.snapshotInterval)
		defer t.Stop()
		snapshot = t.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down trigger scheduler")
			return
		case <-sweep.C:
			if _, err := s.SweepOpenMarkets(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to sweep open markets")
			}
		case <-expiry.C:
			if _, err := s.processor.ExpireStaleOrders(ctx, s.maxAge); err != nil {
				logger.Error().Err(err).Msg("failed to expire stale orders")
			}
		case <-snapshot:
			if _, err := s.snapshots.SnapshotAll(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to snapshot portfolios")
			}
		}
	}
}

// SweepOpenMarkets processes every PENDING order on exchanges that are open
// now, then every PENDING order on off-exchange assets.
func (s *Scheduler) SweepOpenMarkets(ctx context.Context) (SweepResult, error) {
	total := SweepResult{Scope: "open_markets"}

	open := make(map[string]bool)
	for _, code := range s.clock.OpenExchanges() {
		open[code] = true
		if !s.open[code] {
			log.Info().Str("component", "trigger_scheduler").Str("exchange", code).Msg("exchange opened")
		}

		r, err := s.processor.ProcessPendingOrders(ctx, portfolio.Scope{Exchange: code})
		if err != nil {
			return total, err
		}
		total.Add(r)
	}
	s.open = open

	r, err := s.processor.ProcessPendingOrders(ctx, portfolio.Scope{OffExchange: true})
	if err != nil {
		return total, err
	}
	total.Add(r)
	return total, nil
}
