package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openaid/donation-market/pkg/logger"
)

// Duration wraps time.Duration so YAML values like "15s" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the top-level daemon configuration.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Market   MarketConfig         `yaml:"market"`
	Database DatabaseConfig       `yaml:"database"`
	Auth     AuthConfig           `yaml:"auth"`
	Events   EventsConfig         `yaml:"events"`
	Logging  logger.LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// MarketConfig carries the marketplace core parameters.
type MarketConfig struct {
	OwnerIdentity       string `yaml:"owner_identity"`
	ConversionRate      int64  `yaml:"conversion_rate"`
	WalletLimit         int64  `yaml:"wallet_limit"`
	SupplyCeiling       int64  `yaml:"supply_ceiling"`
	StrictCategoryMatch bool   `yaml:"strict_category_match"`
}

// DatabaseConfig selects the persistence backend. An empty URL keeps the
// in-memory store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig controls caller identity resolution.
type AuthConfig struct {
	// StaticTokens maps bearer tokens to identities for development use.
	StaticTokens map[string]string `yaml:"static_tokens"`
	JWTSecret    string            `yaml:"jwt_secret"`
}

// EventsConfig controls the event bus.
type EventsConfig struct {
	History int    `yaml:"history"`
	LogPath string `yaml:"log_path"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Market: MarketConfig{
			ConversionRate: 1,
			WalletLimit:    1000,
			SupplyCeiling:  1_000_000,
		},
		Events: EventsConfig{
			History: 1024,
		},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads the YAML file at path, applies environment overrides and
// validates the result. A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MARKETD_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("MARKETD_OWNER"); v != "" {
		cfg.Market.OwnerIdentity = v
	}
	if v := os.Getenv("MARKETD_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("MARKETD_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("MARKETD_EVENT_LOG"); v != "" {
		cfg.Events.LogPath = v
	}
	if v := os.Getenv("MARKETD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MARKETD_CONVERSION_RATE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Market.ConversionRate = n
		}
	}
	if v := os.Getenv("MARKETD_WALLET_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Market.WalletLimit = n
		}
	}
	if v := os.Getenv("MARKETD_SUPPLY_CEILING"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Market.SupplyCeiling = n
		}
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if c.Market.OwnerIdentity == "" {
		return fmt.Errorf("market.owner_identity is required (or set MARKETD_OWNER)")
	}
	if c.Market.ConversionRate <= 0 {
		return fmt.Errorf("market.conversion_rate must be positive")
	}
	if c.Market.WalletLimit < 0 {
		return fmt.Errorf("market.wallet_limit must not be negative")
	}
	if c.Market.SupplyCeiling <= 0 {
		return fmt.Errorf("market.supply_ceiling must be positive")
	}
	return nil
}
