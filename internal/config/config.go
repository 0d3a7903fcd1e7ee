package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Ledger driver names accepted in LEDGER_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the application configuration, loaded from environment
// variables.
type Config struct {
	Environment string
	Addr        string

	LedgerDriver string
	DatabaseURL  string
	SQLitePath   string

	RedisAddr             string
	RateLimitCapacity     int
	RateLimitRefillPerSec int

	MaxBodyBytes int64
	IPAllowlist  []string

	TokenIssuer string
	TokenTTL    time.Duration

	TLSCertFile string
	TLSKeyFile  string
	TLSCAFile   string
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:           getenv("APP_ENV", "development"),
		Addr:                  getenv("API_ADDR", ":8080"),
		LedgerDriver:          getenv("LEDGER_DRIVER", DriverSQLite),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		SQLitePath:            getenv("SQLITE_PATH", "webank.db"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RateLimitCapacity:     getenvInt("API_RATE_LIMIT_CAPACITY", 20),
		RateLimitRefillPerSec: getenvInt("API_RATE_LIMIT_REFILL_PER_SEC", 10),
		MaxBodyBytes:          int64(getenvInt("API_MAX_BODY_BYTES", 1<<20)),
		IPAllowlist:           splitNonEmpty(os.Getenv("API_IP_ALLOWLIST")),
		TokenIssuer:           getenv("TOKEN_ISSUER", "webank"),
		TokenTTL:              time.Duration(getenvInt("TOKEN_TTL_MINUTES", 15)) * time.Minute,
		TLSCertFile:           os.Getenv("API_TLS_CERT"),
		TLSKeyFile:            os.Getenv("API_TLS_KEY"),
		TLSCAFile:             os.Getenv("API_TLS_CA"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	var missing []string

	switch c.LedgerDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	default:
		return errors.New("LEDGER_DRIVER must be postgres or sqlite")
	}

	// Production runs on Postgres behind TLS; sqlite is for development.
	if c.Environment == "production" || c.Environment == "staging" {
		if c.LedgerDriver != DriverPostgres {
			return errors.New("LEDGER_DRIVER must be postgres in " + c.Environment)
		}
		if c.TLSCertFile == "" {
			missing = append(missing, "API_TLS_CERT")
		}
		if c.TLSKeyFile == "" {
			missing = append(missing, "API_TLS_KEY")
		}
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("API_TLS_CERT and API_TLS_KEY must be set together")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}
	return nil
}

// TLSEnabled reports whether the server should terminate TLS itself.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
