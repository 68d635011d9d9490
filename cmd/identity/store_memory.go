package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps users in process memory. It is used by tests and the
// "memory" store backend.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID UserID
	byID   map[UserID]User
	byNorm map[string]UserID

	lookup SessionLookup
}

// NewMemoryStore returns an empty store. lookup may be nil, in which case
// GetUserBySession always reports ErrNotFound.
func NewMemoryStore(lookup SessionLookup) *MemoryStore {
	return &MemoryStore{
		byID:   make(map[UserID]User),
		byNorm: make(map[string]UserID),
		lookup: lookup,
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, username, passwordHash string) (UserID, error) {
	const op = "identity.CreateUser"
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	norm, err := checkCreate(op, username, passwordHash)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byNorm[norm]; ok {
		return 0, ConflictError{Op: op, Field: "username"}
	}
	s.nextID++
	u := User{
		ID:           s.nextID,
		Username:     strings.TrimSpace(username),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.byID[u.ID] = u
	s.byNorm[norm] = u.ID
	return u.ID, nil
}

func (s *MemoryStore) GetUserBySession(ctx context.Context, tokenHash string, now time.Time) (User, error) {
	const op = "identity.GetUserBySession"
	if s.lookup == nil {
		return User{}, NotFoundError{Op: op, Resource: "session"}
	}
	id, err := s.lookup(ctx, tokenHash, now)
	if err != nil {
		return User{}, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *MemoryStore) SearchUsersByUsername(ctx context.Context, prefix string, limit int) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	norm := NormalizeUsername(prefix)
	limit = clampSearchLimit(limit)

	s.mu.RLock()
	out := make([]User, 0, limit)
	for n, id := range s.byNorm {
		if strings.HasPrefix(n, norm) {
			out = append(out, s.byID[id])
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return NormalizeUsername(out[i].Username) < NormalizeUsername(out[j].Username)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNorm[NormalizeUsername(username)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByUsername", Resource: "user"}
	}
	return s.byID[id], nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id UserID) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return u, nil
}
