package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config mirrors the server's env-driven configuration for API consumers.
type Config struct {
	BaseURL        string        `env:"QUANTIVE_API_URL" envDefault:"http://localhost:8080"`
	RequestTimeout time.Duration `env:"QUANTIVE_REQUEST_TIMEOUT" envDefault:"30s"`
	EnableLogging  bool          `env:"QUANTIVE_NETWORK_LOGGING" envDefault:"false"`
}

func LoadConfig() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse client env: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("QUANTIVE_REQUEST_TIMEOUT must be positive")
	}
	return &cfg, nil
}
