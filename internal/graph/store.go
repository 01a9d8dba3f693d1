package graph

import (
	"context"
	"fmt"

	"github.com/kestrelworks/engram/internal/config"
	"github.com/kestrelworks/engram/pkg/log"
	"github.com/kestrelworks/engram/pkg/retry"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Store implements core.GraphStore over the Bolt protocol.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewStore(ctx context.Context, cfg *config.GraphConfig) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create graph driver: %w", err)
	}

	// The graph may still be coming up alongside us; probe with backoff.
	retrier := retry.NewDefaultRetrier()
	if err := retrier.Do(ctx, func() error {
		return driver.VerifyConnectivity(ctx)
	}); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph unreachable at %s: %w", cfg.URI, err)
	}

	log.FromCtx(ctx).Info().Str("uri", cfg.URI).Str("database", cfg.Database).Msg("graph store connected")
	return &Store{driver: driver, database: cfg.Database}, nil
}

// Execute runs one Cypher statement and returns its rows as maps keyed by the
// returned column names.
func (s *Store) Execute(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("graph query: %w", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph collect: %w", err)
	}

	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.AsMap())
	}
	return rows, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}
