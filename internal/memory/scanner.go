package memory

import (
	"context"
	"time"

	"github.com/kestrelworks/engram/pkg/log"
)

// Scanner periodically sweeps a project's memories for pairwise conflicts and
// records them for review. It implements srv.Service. Disabled when the
// interval is zero.
type Scanner struct {
	svc      *Service
	project  string
	interval time.Duration
}

func NewScanner(svc *Service, project string, interval time.Duration) *Scanner {
	return &Scanner{svc: svc, project: project, interval: interval}
}

func (s *Scanner) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}
	logger := log.FromCtx(ctx)
	logger.Info().Dur("interval", s.interval).Msg("starting conflict scanner")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			found, err := s.svc.DetectConflicts(ctx, s.project)
			if err != nil {
				logger.Warn().Err(err).Msg("conflict scan failed")
				continue
			}
			if len(found) > 0 {
				logger.Info().Int("found", len(found)).Msg("conflict scan flagged memories for review")
			}
		}
	}
}

func (s *Scanner) Shutdown(ctx context.Context) error {
	return nil
}
