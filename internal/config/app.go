package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/kestrelworks/engram/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"ENGRAM_RUNTIME_PATH" envDefault:".engram"`

	// Turn lifecycle
	StaleTurnMaxAge time.Duration `env:"ENGRAM_STALE_TURN_MAX_AGE" envDefault:"30m"`
	SweepInterval   time.Duration `env:"ENGRAM_SWEEP_INTERVAL" envDefault:"5m"`

	// Background conflict scan, disabled when zero
	ScanInterval time.Duration `env:"ENGRAM_SCAN_INTERVAL" envDefault:"0"`
	ScanProject  string        `env:"ENGRAM_SCAN_PROJECT" envDefault:""`

	// Interactive confirmation / classifier call budget
	ConfirmTimeout time.Duration `env:"ENGRAM_CONFIRM_TIMEOUT" envDefault:"30s"`

	// Transport flags
	EnableStream    bool `env:"ENGRAM_ENABLE_STREAM" envDefault:"true"`
	EnableMCPServer bool `env:"ENGRAM_ENABLE_MCP" envDefault:"true"`

	// Prometheus endpoint, disabled when empty
	MetricsAddr string `env:"ENGRAM_METRICS_ADDR" envDefault:""`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "engram.db")
}
