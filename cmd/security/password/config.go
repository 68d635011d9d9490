package password

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32 `env:"MEMORY_KIB"`
	Iterations  uint32 `env:"ITERATIONS"`
	Parallelism uint8  `env:"PARALLELISM"`
	SaltLength  uint32 `env:"SALT_LEN"`
	KeyLength   uint32 `env:"KEY_LEN"`
}

// Policy bounds accepted passwords.
type Policy struct {
	MinLength      int  `env:"MIN_LEN"`
	MaxLength      int  `env:"MAX_LEN"`
	RejectVeryWeak bool `env:"REJECT_VERY_WEAK"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams `envPrefix:"JUSTICE_ARGON2_"`
	Policy Policy         `envPrefix:"JUSTICE_PASSWORD_"`
}

// DefaultConfig returns the production baseline.
func DefaultConfig() Config {
	// Clamp to [1..4] so container hosts with many cores stay predictable.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 6,
			MaxLength: 128,
		},
	}
}

// FromEnv overlays environment variables on DefaultConfig.
//
// Env surface:
//   - JUSTICE_PASSWORD_MIN_LEN, JUSTICE_PASSWORD_MAX_LEN, JUSTICE_PASSWORD_REJECT_VERY_WEAK
//   - JUSTICE_ARGON2_MEMORY_KIB, JUSTICE_ARGON2_ITERATIONS, JUSTICE_ARGON2_PARALLELISM
//   - JUSTICE_ARGON2_SALT_LEN, JUSTICE_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check validates the configured bounds.
func (c Config) Check() error {
	var errs []error
	p := c.Params
	if p.MemoryKiB < 8*1024 || p.MemoryKiB > 1024*1024 {
		errs = append(errs, fmt.Errorf("argon2 memory_kib out of range [%d..%d]", 8*1024, 1024*1024))
	}
	if p.Iterations < 1 || p.Iterations > 20 {
		errs = append(errs, errors.New("argon2 iterations out of range [1..20]"))
	}
	if p.Parallelism < 1 || p.Parallelism > 64 {
		errs = append(errs, errors.New("argon2 parallelism out of range [1..64]"))
	}
	if p.SaltLength < 8 || p.SaltLength > 64 {
		errs = append(errs, errors.New("argon2 salt_len out of range [8..64]"))
	}
	if p.KeyLength < 16 || p.KeyLength > 64 {
		errs = append(errs, errors.New("argon2 key_len out of range [16..64]"))
	}
	if c.Policy.MinLength < 1 || c.Policy.MaxLength > 4096 {
		errs = append(errs, errors.New("password length bounds out of range [1..4096]"))
	}
	if c.Policy.MinLength > c.Policy.MaxLength {
		errs = append(errs, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)", c.Policy.MinLength, c.Policy.MaxLength))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}
