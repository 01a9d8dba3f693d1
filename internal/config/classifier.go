package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/kestrelworks/engram/pkg/log"
)

type ClassifierConfig struct {
	Provider string `env:"ENGRAM_CLASSIFIER_PROVIDER" envDefault:"openai"`
	Model    string `env:"ENGRAM_CLASSIFIER_MODEL" envDefault:"gpt-4o-mini"`

	OpenAIAPIKey    string `env:"OPENAI_API_KEY" envDefault:""`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY" envDefault:""`
	CustomBaseURL   string `env:"ENGRAM_CLASSIFIER_BASE_URL" envDefault:""`
	CustomAPIKey    string `env:"ENGRAM_CLASSIFIER_API_KEY" envDefault:""`
}

func NewClassifierConfig(ctx context.Context) *ClassifierConfig {
	c := &ClassifierConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Classifier config")
	}
	return c
}
