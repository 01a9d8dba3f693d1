package ingest

import (
	"context"
	"time"

	"github.com/kestrelworks/engram/pkg/log"
)

// Sweeper periodically finalizes stale turns, decoupled from the event
// processing path. It implements srv.Service.
type Sweeper struct {
	agg      *Aggregator
	interval time.Duration
	maxAge   time.Duration
}

func NewSweeper(agg *Aggregator, interval, maxAge time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = DefaultStaleTurnMaxAge
	}
	return &Sweeper{agg: agg, interval: interval, maxAge: maxAge}
}

func (s *Sweeper) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Dur("interval", s.interval).Dur("max_age", s.maxAge).Msg("starting stale-turn sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.agg.CleanupStaleTurns(ctx, s.maxAge); n > 0 {
				logger.Info().Int("swept", n).Msg("stale turns finalized")
			}
		}
	}
}

func (s *Sweeper) Shutdown(ctx context.Context) error {
	return nil
}
