//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../../mocks/mock_session_repository.go -package=mocks

package session

import (
	"context"
	"errors"
	"time"

	"justice/cmd/identity"
)

// Repository persists sessions keyed by token hash.
//
// Implementations must report a duplicate hash as ErrConflict and a missing or
// expired (expires_at <= now) session as ErrNotFound. DeleteByToken is idempotent.
type Repository interface {
	Insert(ctx context.Context, tokenHash string, owner identity.UserID, expiresAt time.Time) error
	FindByToken(ctx context.Context, tokenHash string, now time.Time) (identity.UserID, error)
	DeleteByToken(ctx context.Context, tokenHash string) error
	DeleteByOwner(ctx context.Context, owner identity.UserID) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserLookup adapts repo to identity.SessionLookup for user stores that keep
// no sessions of their own.
func UserLookup(repo Repository) identity.SessionLookup {
	return func(ctx context.Context, tokenHash string, now time.Time) (identity.UserID, error) {
		id, err := repo.FindByToken(ctx, tokenHash, now)
		if errors.Is(err, ErrNotFound) {
			return 0, identity.NotFoundError{Op: "identity.GetUserBySession", Resource: "session"}
		}
		return id, err
	}
}
