package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/kestrelworks/engram/pkg/log"
)

type StreamConfig struct {
	RedisAddr     string `env:"ENGRAM_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"ENGRAM_REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"ENGRAM_REDIS_DB" envDefault:"0"`
	Stream        string `env:"ENGRAM_STREAM" envDefault:"engram:events"`
	Group         string `env:"ENGRAM_STREAM_GROUP" envDefault:"engram"`
	Consumer      string `env:"ENGRAM_STREAM_CONSUMER" envDefault:"engram-1"`
	BatchSize     int64  `env:"ENGRAM_STREAM_BATCH" envDefault:"64"`
}

func NewStreamConfig(ctx context.Context) *StreamConfig {
	c := &StreamConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Stream config")
	}
	return c
}
