package realtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrConfig wraps every configuration failure from this package.
var ErrConfig = errors.New("realtime: invalid config")

// Config covers the hub and both stream transports.
type Config struct {
	Buffer       int           `env:"JUSTICE_EVENTS_BUFFER"`
	SSEHeartbeat time.Duration `env:"JUSTICE_SSE_HEARTBEAT"`

	AllowedOrigins []string `env:"JUSTICE_WS_ALLOWED_ORIGINS" envSeparator:","`
	OriginRequired bool     `env:"JUSTICE_WS_ORIGIN_REQUIRED"`
	DevInsecure    bool     `env:"JUSTICE_WS_DEV_INSECURE"`

	WriteTimeout      time.Duration `env:"JUSTICE_WS_WRITE_TIMEOUT"`
	// ReadIdleTimeout closes a WebSocket whose peer has neither sent a frame
	// nor answered a ping for this long.
	ReadIdleTimeout   time.Duration `env:"JUSTICE_WS_READ_IDLE_TIMEOUT"`
	HeartbeatInterval time.Duration `env:"JUSTICE_WS_HEARTBEAT_INTERVAL"`
	HeartbeatTimeout  time.Duration `env:"JUSTICE_WS_HEARTBEAT_TIMEOUT"`
	ControlQueue      int           `env:"JUSTICE_WS_CONTROL_QUEUE"`

	RateEvents int           `env:"JUSTICE_WS_RATE_EVENTS"`
	RateWindow time.Duration `env:"JUSTICE_WS_RATE_WINDOW"`
}

// DefaultConfig allows only localhost origins.
func DefaultConfig() Config {
	return Config{
		Buffer:            DefaultBuffer,
		SSEHeartbeat:      heartbeatInterval,
		AllowedOrigins:    []string{"http://localhost", "http://127.0.0.1"},
		OriginRequired:    true,
		WriteTimeout:      wsDefaultWriteTimeout,
		ReadIdleTimeout:   wsDefaultReadIdle,
		HeartbeatInterval: heartbeatInterval,
		HeartbeatTimeout:  heartbeatTimeout,
		ControlQueue:      wsDefaultControlQueue,
		RateEvents:        rateLimitEvents,
		RateWindow:        rateLimitWindow,
	}
}

// LoadConfigFromEnv overlays JUSTICE_EVENTS_*, JUSTICE_SSE_* and JUSTICE_WS_* on DefaultConfig.
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
	if c.Buffer < 1 || c.Buffer > 4096 {
		errs = append(errs, errors.New("events buffer out of range [1..4096]"))
	}
	if c.SSEHeartbeat < time.Second {
		errs = append(errs, errors.New("sse heartbeat must be >= 1s"))
	}
	if c.WriteTimeout <= 0 || c.ReadIdleTimeout <= 0 {
		errs = append(errs, errors.New("ws timeouts must be > 0"))
	}
	if c.HeartbeatInterval < time.Second || c.HeartbeatTimeout <= 0 {
		errs = append(errs, errors.New("ws heartbeat interval must be >= 1s and timeout > 0"))
	}
	if c.HeartbeatTimeout >= c.HeartbeatInterval {
		errs = append(errs, fmt.Errorf("ws heartbeat timeout(%s) must be below interval(%s)", c.HeartbeatTimeout, c.HeartbeatInterval))
	}
	if c.ControlQueue < wsMinControlQueue {
		errs = append(errs, fmt.Errorf("ws control queue must be >= %d", wsMinControlQueue))
	}
	if c.RateEvents <= 0 || c.RateWindow <= 0 {
		errs = append(errs, errors.New("ws rate limit must be > 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}
