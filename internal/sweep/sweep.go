// Package sweep runs the periodic pass that resolves rides whose departure
// time has passed.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/openridehq/rideshare-backend/ride"
)

type Sweeper struct {
	rides    *ride.Repository
	logger   *slog.Logger
	interval time.Duration
}

func New(rides *ride.Repository, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{rides: rides, logger: logger, interval: interval}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
// A failed pass is logged and retried on the next tick; the sweep is
// idempotent so nothing is lost.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	res, err := s.rides.SweepExpired(ctx, time.Now())
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
		return
	}
	if res.CancelledRides > 0 || res.CompletedRides > 0 {
		s.logger.InfoContext(ctx, "expiry sweep resolved rides",
			slog.Int("cancelled", res.CancelledRides),
			slog.Int("completed", res.CompletedRides),
		)
	}
}
