package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"justice/cmd/identity"
	"justice/cmd/internal/metrics"
	"justice/cmd/security/token"
)

// TokenSource draws fresh opaque tokens. *token.Source implements it.
type TokenSource interface {
	Token() string
}

// Hasher digests a token before it reaches storage. *token.Hasher implements it.
type Hasher interface {
	Hash(tok string) string
}

// Issued is a freshly created session. Token is the only copy of the clear token.
type Issued struct {
	Token     string
	Owner     identity.UserID
	ExpiresAt time.Time
}

// Service issues, validates and deletes sessions.
type Service struct {
	cfg    Config
	repo   Repository
	tokens TokenSource
	hasher Hasher

	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires a Service. A nil hasher falls back to plain SHA-256.
func NewService(cfg Config, repo Repository, tokens TokenSource, hasher Hasher, opts ...Option) *Service {
	if hasher == nil {
		hasher = token.NewHasher(nil)
	}
	s := &Service{
		cfg:    cfg,
		repo:   repo,
		tokens: tokens,
		hasher: hasher,
		now:    func() time.Time { return time.Now().UTC() },
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.cfg.MaxAttempts < 1 {
		s.cfg.MaxAttempts = 1
	}
	return s
}

// TTL is the lifetime given to new sessions.
func (s *Service) TTL() time.Duration { return s.cfg.TTL }

// Create issues a session for owner, drawing a new token whenever the
// repository reports a hash collision. After MaxAttempts collisions it
// returns ErrCollision.
func (s *Service) Create(ctx context.Context, owner identity.UserID) (Issued, error) {
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		tok := s.tokens.Token()
		expiresAt := s.now().Add(s.cfg.TTL)

		err := s.repo.Insert(ctx, s.hasher.Hash(tok), owner, expiresAt)
		if err == nil {
			s.metrics.SessionCreated()
			return Issued{Token: tok, Owner: owner, ExpiresAt: expiresAt}, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Issued{}, fmt.Errorf("session: insert: %w", err)
		}

		s.metrics.SessionCollision()
		s.log.Warn("session.collision",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.cfg.MaxAttempts),
		)
	}
	return Issued{}, ErrCollision
}

// Validate resolves tok to its owner. Empty, malformed, unknown and expired
// tokens all yield ErrNotFound; malformed ones never reach storage.
func (s *Service) Validate(ctx context.Context, tok string) (identity.UserID, error) {
	if !token.WellFormed(tok) {
		return 0, ErrNotFound
	}
	owner, err := s.repo.FindByToken(ctx, s.hasher.Hash(tok), s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("session: find: %w", err)
	}
	return owner, nil
}

// HashToken exposes the storage digest of tok for stores that join on it.
func (s *Service) HashToken(tok string) string { return s.hasher.Hash(tok) }

// Delete removes the session for tok. Deleting an absent or malformed token succeeds.
func (s *Service) Delete(ctx context.Context, tok string) error {
	if !token.WellFormed(tok) {
		return nil
	}
	if err := s.repo.DeleteByToken(ctx, s.hasher.Hash(tok)); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// DeleteAll removes every session held by owner and reports how many were removed.
func (s *Service) DeleteAll(ctx context.Context, owner identity.UserID) (int64, error) {
	n, err := s.repo.DeleteByOwner(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("session: delete all: %w", err)
	}
	return n, nil
}

// Sweep deletes every session that has expired by now.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("session: sweep: %w", err)
	}
	return n, nil
}
