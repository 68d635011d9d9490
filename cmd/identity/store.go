package identity

import (
	"context"
	"time"
)

// DefaultSearchLimit caps SearchUsersByUsername when the caller passes limit <= 0.
const DefaultSearchLimit = 20

// Store is the user repository.
//
// Usernames are unique case-insensitively; CreateUser returns a ConflictError
// (errors.Is ErrConflict) on a duplicate. Lookups that find nothing return
// NotFoundError (errors.Is ErrNotFound).
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (UserID, error)
	GetUserBySession(ctx context.Context, tokenHash string, now time.Time) (User, error)
	SearchUsersByUsername(ctx context.Context, prefix string, limit int) ([]User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByID(ctx context.Context, id UserID) (User, error)
}

// SessionLookup resolves a hashed session token to its owner. It must return an
// error matching ErrNotFound for unknown or expired sessions.
//
// Stores use it when sessions are not kept in the same database as users.
type SessionLookup func(ctx context.Context, tokenHash string, now time.Time) (UserID, error)

func clampSearchLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return DefaultSearchLimit
	}
	return limit
}

func checkCreate(op, username, passwordHash string) (string, error) {
	name := NormalizeUsername(username)
	if name == "" {
		return "", invalid(op, "missing username")
	}
	if passwordHash == "" {
		return "", invalid(op, "missing password hash")
	}
	return name, nil
}
