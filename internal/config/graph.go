package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/kestrelworks/engram/pkg/log"
)

type GraphConfig struct {
	URI      string `env:"ENGRAM_GRAPH_URI" envDefault:"bolt://localhost:7687"`
	Username string `env:"ENGRAM_GRAPH_USER" envDefault:"neo4j"`
	Password string `env:"ENGRAM_GRAPH_PASSWORD" envDefault:""`
	Database string `env:"ENGRAM_GRAPH_DATABASE" envDefault:"neo4j"`
}

func NewGraphConfig(ctx context.Context) *GraphConfig {
	c := &GraphConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Graph config")
	}
	return c
}
