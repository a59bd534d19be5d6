package test

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Timeout time.Duration `envconfig:"E2E_TIMEOUT" default:"2s"`
	Colours bool          `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
