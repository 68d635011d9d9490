package authapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrConfig wraps every configuration failure from this package.
var ErrConfig = errors.New("authapi: invalid config")

// Config controls cookies, body limits and login throttling.
type Config struct {
	CookieName     string `env:"JUSTICE_SESSION_COOKIE"`
	CookiePath     string `env:"JUSTICE_COOKIE_PATH"`
	CookieDomain   string `env:"JUSTICE_COOKIE_DOMAIN"`
	CookieSecure   bool   `env:"JUSTICE_COOKIE_SECURE"`
	CookieSameSite string `env:"JUSTICE_COOKIE_SAMESITE"`

	TrustProxy   bool  `env:"JUSTICE_TRUST_PROXY"`
	MaxBodyBytes int64 `env:"JUSTICE_AUTH_MAX_BODY_BYTES"`

	// LoginRate is the sustained number of register/login attempts per
	// second allowed from one client IP; LoginBurst is the bucket size.
	LoginRate   float64       `env:"JUSTICE_AUTH_LOGIN_RATE"`
	LoginBurst  int           `env:"JUSTICE_AUTH_LOGIN_BURST"`
	LimiterIdle time.Duration `env:"JUSTICE_AUTH_LIMITER_IDLE"`
}

func DefaultConfig() Config {
	return Config{
		CookieName:     "session",
		CookiePath:     "/",
		CookieSameSite: "lax",
		MaxBodyBytes:   16 << 10,
		LoginRate:      0.5,
		LoginBurst:     10,
		LimiterIdle:    10 * time.Minute,
	}
}

// LoadConfigFromEnv overlays environment variables on DefaultConfig.
// SameSite=None forces Secure, as browsers require.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if cfg.SameSite() == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.CookieName) == "" || strings.ContainsAny(c.CookieName, " ;=,") {
		errs = append(errs, fmt.Errorf("cookie name %q is invalid", c.CookieName))
	}
	if !strings.HasPrefix(c.CookiePath, "/") {
		errs = append(errs, errors.New("cookie path must start with /"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max body bytes must be > 0"))
	}
	if c.LoginRate <= 0 || c.LoginBurst <= 0 {
		errs = append(errs, errors.New("login rate and burst must be > 0"))
	}
	if c.LimiterIdle < time.Second {
		errs = append(errs, errors.New("limiter idle must be >= 1s"))
	}
	if c.SameSite() == http.SameSiteNoneMode && !c.CookieSecure {
		errs = append(errs, errors.New("SameSite=None requires Secure"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}

// SameSite parses CookieSameSite. Unknown values fall back to Lax.
func (c Config) SameSite() http.SameSite {
	return parseSameSite(c.CookieSameSite)
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}
