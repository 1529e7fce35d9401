package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`

	StoreDriver string `envconfig:"STORE_DRIVER"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"salonpos.db"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	StoreID                string `envconfig:"DEFAULT_STORE_ID" default:"main-store"`
	RosterCacheTTLSeconds  int    `envconfig:"ROSTER_CACHE_TTL_SECONDS" default:"60"`
	SessionGuardTTLSeconds int    `envconfig:"SESSION_GUARD_TTL_SECONDS" default:"30"`
	SessionIdleMinutes     int    `envconfig:"SESSION_IDLE_MINUTES" default:"240"`

	AuthSecret            string `envconfig:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"480"`
	ManagerPIN            string `envconfig:"MANAGER_PIN"`

	CurrencyUnitCents int64  `envconfig:"CURRENCY_UNIT_CENTS" default:"100"`
	CashDenominations string `envconfig:"CASH_DENOMINATIONS" default:"100,200,500,1000,2000,5000,10000,20000,50000"`
}

// Load reads an optional .env file and then the process environment. Values
// already present in the environment win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ManagerPIN = strings.TrimSpace(cfg.ManagerPIN)
	if cfg.RosterCacheTTLSeconds < 1 {
		cfg.RosterCacheTTLSeconds = 60
	}
	if cfg.SessionGuardTTLSeconds < 1 {
		cfg.SessionGuardTTLSeconds = 30
	}
	if cfg.SessionIdleMinutes < 0 {
		cfg.SessionIdleMinutes = 0
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.CurrencyUnitCents < 1 {
		cfg.CurrencyUnitCents = 100
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreDriverMemory
		if cfg.DatabaseURL != "" {
			cfg.StoreDriver = StoreDriverPostgres
		}
	}
	switch cfg.StoreDriver {
	case StoreDriverMemory, StoreDriverSQLite:
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if _, err := cfg.Denominations(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) RosterCacheTTL() time.Duration {
	return time.Duration(c.RosterCacheTTLSeconds) * time.Second
}

func (c Config) SessionGuardTTL() time.Duration {
	return time.Duration(c.SessionGuardTTLSeconds) * time.Second
}

// SessionIdleTTL is zero when idle sessions are kept until closed.
func (c Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// Denominations parses CASH_DENOMINATIONS, a comma separated list of note and
// coin values in minor units.
func (c Config) Denominations() ([]int64, error) {
	parts := strings.Split(c.CashDenominations, ",")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := strconv.ParseInt(part, 10, 64)
		if err != nil || value <= 0 {
			return nil, fmt.Errorf("CASH_DENOMINATIONS: invalid denomination %q", part)
		}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("CASH_DENOMINATIONS must list at least one denomination")
	}
	return out, nil
}
