package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env       string `mapstructure:"FLK_ENV"`
	HTTPAddr  string `mapstructure:"FLK_HTTP_ADDR"`
	PublicURL string `mapstructure:"FLK_PUBLIC_ORIGIN"`

	Exchange ExchangeConfig `mapstructure:",squash"`
	Database DBConfig       `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type ExchangeConfig struct {
	// Seed feeding the deterministic derivation of pair custody keys. Must
	// stay stable across restarts or existing vaults become unspendable.
	Seed string `mapstructure:"FLK_ENGINE_SEED"`

	Authority       string `mapstructure:"FLK_FACTORY_AUTHORITY"`
	FeeRecipient    string `mapstructure:"FLK_FACTORY_FEE_RECIPIENT"`
	ProtocolFeeBps  uint16 `mapstructure:"FLK_PROTOCOL_FEE_BPS"`
	MaxPendingReqs  int    `mapstructure:"FLK_MAX_PENDING_REQUESTS"`
	FaucetAmount    uint64 `mapstructure:"FLK_DEV_FAUCET_AMOUNT"`
	SnapshotEnabled bool   `mapstructure:"FLK_SNAPSHOT_ENABLED"`
}

type DBConfig struct {
	PostgresDSN string `mapstructure:"FLK_POSTGRES_DSN"`
}

type CacheConfig struct {
	RedisAddr string `mapstructure:"FLK_REDIS_ADDR"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"FLK_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"FLK_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("backend", ".env"),
		filepath.Join("..", ".env"),
		filepath.Join("..", "backend", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if !filepath.IsAbs(path) {
			if resolved, err := filepath.Abs(path); err == nil {
				abs = resolved
			}
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // ignore errors; env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("FLK_ENV", "dev")
	viper.SetDefault("FLK_HTTP_ADDR", ":8080")
	viper.SetDefault("FLK_PUBLIC_ORIGIN", "http://localhost:3000")
	viper.SetDefault("FLK_ENGINE_SEED", "")
	viper.SetDefault("FLK_FACTORY_AUTHORITY", "")
	viper.SetDefault("FLK_FACTORY_FEE_RECIPIENT", "")
	viper.SetDefault("FLK_PROTOCOL_FEE_BPS", 500)
	viper.SetDefault("FLK_MAX_PENDING_REQUESTS", 10)
	viper.SetDefault("FLK_DEV_FAUCET_AMOUNT", 10_000_000)
	viper.SetDefault("FLK_SNAPSHOT_ENABLED", true)
	viper.SetDefault("FLK_POSTGRES_DSN", "")
	viper.SetDefault("FLK_REDIS_ADDR", "127.0.0.1:6379")
	viper.SetDefault("FLK_RATE_LIMIT_RPM", 120)
	viper.SetDefault("FLK_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

	// Handle array parsing for comma-separated values
	if origins := viper.GetString("FLK_CORS_ALLOWED_ORIGINS"); origins != "" {
		viper.Set("FLK_CORS_ALLOWED_ORIGINS", strings.Split(origins, ","))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Env {
	case "dev", "staging", "prod":
	default:
		return fmt.Errorf("invalid FLK_ENV %q (must be dev, staging, or prod)", c.Env)
	}
	if c.Exchange.ProtocolFeeBps > 10_000 {
		return fmt.Errorf("FLK_PROTOCOL_FEE_BPS %d exceeds 10000", c.Exchange.ProtocolFeeBps)
	}
	if c.Exchange.MaxPendingReqs <= 0 {
		return fmt.Errorf("FLK_MAX_PENDING_REQUESTS must be positive")
	}
	if c.IsProd() && c.Exchange.Seed == "" {
		return fmt.Errorf("FLK_ENGINE_SEED is required outside dev")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// EngineSeed returns the configured custody seed, falling back to a fixed
// dev-only value so a bare `go run ./cmd/api` works out of the box.
func (c *Config) EngineSeed() []byte {
	if c.Exchange.Seed != "" {
		return []byte(c.Exchange.Seed)
	}
	return []byte("flake-dev-seed-do-not-use-in-prod")
}
