package session

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.TTL != 7*24*time.Hour || cfg.MaxAttempts != 5 || cfg.CleanupInterval != time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("JUSTICE_SESSION_TTL", "48h")
	t.Setenv("JUSTICE_SESSION_MAX_ATTEMPTS", "3")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.TTL != 48*time.Hour || cfg.MaxAttempts != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.CleanupInterval != time.Hour {
		t.Fatalf("unset values must keep defaults: %+v", cfg)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	cases := map[string]string{
		"JUSTICE_SESSION_TTL":              "-5m",
		"JUSTICE_SESSION_MAX_ATTEMPTS":     "0",
		"JUSTICE_SESSION_CLEANUP_INTERVAL": "10ms",
		"JUSTICE_SESSION_TOKEN_BYTES":      "8",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig for %s=%s, got %v", key, val, err)
			}
		})
	}

	t.Run("unparseable", func(t *testing.T) {
		t.Setenv("JUSTICE_SESSION_TTL", "soon")
		if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
			t.Fatalf("expected ErrConfig, got %v", err)
		}
	})
}
