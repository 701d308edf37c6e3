package util

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	RawTokenLength = 32
)

type ServerConfig struct {
	ServerAddr       string        `env:"SERVER_ADDRESS" envDefault:"localhost:8080"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ReadTimeout      time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	IdleTimeout      time.Duration `env:"IDLE_TIMEOUT" envDefault:"30s"`
	GracefulTimeout  time.Duration `env:"GRACEFUL_TIMEOUT" envDefault:"5s"`
	CORSAllowOrigins []string      `env:"CORS_ALLOW_ORIGINS" envDefault:"*" envSeparator:","`
}

type TokenConfig struct {
	JwtSecret  string        `env:"JWT_SECRET,required,notEmpty"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"quantive-backend"`
	Audience   string        `env:"JWT_AUDIENCE" envDefault:"quantive-app"`
	AccessTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	Leeway     time.Duration `env:"JWT_LEEWAY" envDefault:"0s"`
}

func (c *TokenConfig) SecretKey() []byte {
	return []byte(c.JwtSecret)
}

type AuthConfig struct {
	BcryptCost   int           `env:"BCRYPT_COST" envDefault:"10"`
	RetryBackoff time.Duration `env:"STORE_RETRY_BACKOFF" envDefault:"50ms"`
}

type DBConfig struct {
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	Driver        string `env:"DB_DRIVER" envDefault:"postgres"`
	DSN           string `env:"DATABASE_URL"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL time.Duration `env:"PROFILE_CACHE_TTL" envDefault:"5m"`
}

type WebhookConfig struct {
	SecurityURL string `env:"SECURITY_WEBHOOK_URL"`
}

// Config is built once in main and handed to every component that needs a part of it.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
	Server    ServerConfig
	Token     TokenConfig
	Auth      AuthConfig
	DB        DBConfig
	Redis     RedisConfig
	Webhook   WebhookConfig
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load dotenv: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.DB.DSN == "" {
			return errors.New("DATABASE_URL is not set")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.DB.StorageDriver)
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL")
	}
	return nil
}
