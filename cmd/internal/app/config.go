package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"justice/cmd/identity"
)

// ErrConfig marks an invalid runtime configuration.
var ErrConfig = errors.New("app: invalid config")

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config contains the process-level runtime configuration. Feature packages
// (session, authapi, realtime, password) load their own.
type Config struct {
	HTTPAddr string `env:"JUSTICE_HTTP_ADDR"`
	// EnvFile is read before the environment is parsed. A missing file is ignored.
	EnvFile string `env:"JUSTICE_ENV_FILE"`

	LogLevel  string `env:"JUSTICE_LOG_LEVEL"`
	LogFormat string `env:"JUSTICE_LOG_FORMAT"` // json | pretty
	LogColor  bool   `env:"JUSTICE_LOG_COLOR"`

	ReadHeaderTimeout time.Duration `env:"JUSTICE_HTTP_READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `env:"JUSTICE_HTTP_READ_TIMEOUT"`
	IdleTimeout       time.Duration `env:"JUSTICE_HTTP_IDLE_TIMEOUT"`
	MaxHeaderBytes    int           `env:"JUSTICE_HTTP_MAX_HEADER_BYTES"`
	ShutdownTimeout   time.Duration `env:"JUSTICE_SHUTDOWN_TIMEOUT"`

	StoreBackend   string `env:"JUSTICE_STORE_BACKEND"`
	SessionBackend string `env:"JUSTICE_SESSION_BACKEND"` // "" follows StoreBackend

	DatabaseURL   string `env:"JUSTICE_DATABASE_URL"`
	DBSchema      string `env:"JUSTICE_DB_SCHEMA"`
	DBMaxConns    int32  `env:"JUSTICE_DB_MAX_CONNS"`
	DBMinConns    int32  `env:"JUSTICE_DB_MIN_CONNS"`
	DBAutoMigrate bool   `env:"JUSTICE_DB_AUTO_MIGRATE"`

	SQLitePath string `env:"JUSTICE_SQLITE_PATH"`

	RedisAddr     string `env:"JUSTICE_REDIS_ADDR"`
	RedisPassword string `env:"JUSTICE_REDIS_PASSWORD"`
	RedisDB       int    `env:"JUSTICE_REDIS_DB"`
	RedisPrefix   string `env:"JUSTICE_REDIS_PREFIX"`

	// TokenHMACKey switches session token hashing from SHA-256 to HMAC-SHA256.
	TokenHMACKey     string `env:"JUSTICE_TOKEN_HMAC_KEY"`
	RequireTokenHMAC bool   `env:"JUSTICE_REQUIRE_TOKEN_HMAC"`

	CORSAllowedOrigins   []string `env:"JUSTICE_CORS_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"JUSTICE_CORS_ALLOW_CREDENTIALS"`
	CORSMaxAgeSeconds    int      `env:"JUSTICE_CORS_MAX_AGE"`
}

func DefaultConfig() Config {
	return Config{
		HTTPAddr:             "0.0.0.0:8080",
		EnvFile:              ".env",
		LogLevel:             "info",
		LogFormat:            "json",
		ReadHeaderTimeout:    5 * time.Second,
		ReadTimeout:          15 * time.Second,
		IdleTimeout:          60 * time.Second,
		MaxHeaderBytes:       1 << 20,
		ShutdownTimeout:      10 * time.Second,
		StoreBackend:         BackendMemory,
		DBSchema:             "justice",
		DBMaxConns:           10,
		SQLitePath:           "justice.db",
		RedisPrefix:          "justice:session:",
		CORSAllowCredentials: true,
		CORSMaxAgeSeconds:    600,
	}
}

// LoadConfig loads the env file named by JUSTICE_ENV_FILE (default .env) and
// overlays the environment on DefaultConfig. Variables already set in the
// environment take precedence over the file.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if p, ok := os.LookupEnv("JUSTICE_ENV_FILE"); ok {
		cfg.EnvFile = strings.TrimSpace(p)
	}
	if err := loadEnvFile(cfg.EnvFile); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.SessionBackend = strings.ToLower(strings.TrimSpace(c.SessionBackend))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	origins := c.CORSAllowedOrigins[:0]
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowedOrigins = origins
}

// SessionStoreBackend is the backend that holds sessions.
func (c Config) SessionStoreBackend() string {
	if c.SessionBackend == "" {
		return c.StoreBackend
	}
	return c.SessionBackend
}

func (c Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("postgres backend needs JUSTICE_DATABASE_URL"))
		}
		if !identity.ValidSchema(c.DBSchema) {
			errs = append(errs, fmt.Errorf("db schema %q is not a valid identifier", c.DBSchema))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}

	switch c.SessionBackend {
	case "":
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("redis session backend needs JUSTICE_REDIS_ADDR"))
		}
	default:
		if c.SessionBackend != c.StoreBackend {
			errs = append(errs, fmt.Errorf("session backend %q must be empty, %q or %q", c.SessionBackend, BackendRedis, c.StoreBackend))
		}
	}

	if c.StoreBackend == BackendSQLite && strings.TrimSpace(c.SQLitePath) == "" {
		errs = append(errs, errors.New("sqlite backend needs JUSTICE_SQLITE_PATH"))
	}
	if c.LogFormat != "json" && c.LogFormat != "pretty" {
		errs = append(errs, fmt.Errorf("log format %q must be json or pretty", c.LogFormat))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		errs = append(errs, fmt.Errorf("db pool bounds invalid: min=%d max=%d", c.DBMinConns, c.DBMaxConns))
	}
	for _, o := range c.CORSAllowedOrigins {
		if o == "*" && c.CORSAllowCredentials {
			errs = append(errs, errors.New("cors origin * cannot be combined with credentials"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}
