package session

import (
	"context"
	"sync"
	"time"

	"justice/cmd/identity"
)

type memoryRow struct {
	owner     identity.UserID
	expiresAt time.Time
}

// MemoryRepository keeps sessions in process memory.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[string]memoryRow
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]memoryRow)}
}

func (r *MemoryRepository) Insert(ctx context.Context, tokenHash string, owner identity.UserID, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[tokenHash]; ok {
		return ErrConflict
	}
	r.rows[tokenHash] = memoryRow{owner: owner, expiresAt: expiresAt}
	return nil
}

func (r *MemoryRepository) FindByToken(ctx context.Context, tokenHash string, now time.Time) (identity.UserID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[tokenHash]
	if !ok || !row.expiresAt.After(now) {
		return 0, ErrNotFound
	}
	return row.owner, nil
}

func (r *MemoryRepository) DeleteByToken(ctx context.Context, tokenHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.rows, tokenHash)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) DeleteByOwner(ctx context.Context, owner identity.UserID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for h, row := range r.rows {
		if row.owner == owner {
			delete(r.rows, h)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for h, row := range r.rows {
		if !row.expiresAt.After(now) {
			delete(r.rows, h)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored rows, expired ones included.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}
