package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls session lifetime, token retry and cleanup cadence.
type Config struct {
	// TTL is how long an issued session stays valid.
	TTL time.Duration `env:"JUSTICE_SESSION_TTL"`

	// MaxAttempts bounds token draws per Create when hashes collide.
	MaxAttempts int `env:"JUSTICE_SESSION_MAX_ATTEMPTS"`

	// CleanupInterval is the period between expired-session sweeps.
	CleanupInterval time.Duration `env:"JUSTICE_SESSION_CLEANUP_INTERVAL"`

	// TokenBytes is the entropy of each token.
	TokenBytes int `env:"JUSTICE_SESSION_TOKEN_BYTES"`
}

func DefaultConfig() Config {
	return Config{
		TTL:             7 * 24 * time.Hour,
		MaxAttempts:     5,
		CleanupInterval: time.Hour,
		TokenBytes:      32,
	}
}

// LoadConfigFromEnv overlays JUSTICE_SESSION_* variables on DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.TTL <= 0 {
		errs = append(errs, errors.New("ttl must be positive"))
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > 100 {
		errs = append(errs, errors.New("max_attempts out of range [1..100]"))
	}
	if c.CleanupInterval < time.Second {
		errs = append(errs, errors.New("cleanup_interval must be at least 1s"))
	}
	if c.TokenBytes < 16 || c.TokenBytes > 64 {
		errs = append(errs, errors.New("token_bytes out of range [16..64]"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}
