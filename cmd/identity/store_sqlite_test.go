package identity

import (
	"context"
	"testing"
	"time"

	"justice/cmd/internal/testdb"
)

func TestSQLiteStore_Contract(t *testing.T) {
	t.Parallel()
	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(testdb.SQLite(t), nil)
		if err != nil {
			t.Fatalf("new store: %v", err)
		}
		return s
	})
}

func TestSQLiteStore_GetUserBySession_JoinsSessions(t *testing.T) {
	t.Parallel()

	db := testdb.SQLite(t)
	s, err := NewSQLiteStore(db, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	id, err := s.CreateUser(ctx, "erin", "hash")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC()
	if _, err := db.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?), (?, ?, ?, ?)`,
		"live", int64(id), now.UnixMilli(), now.Add(time.Hour).UnixMilli(),
		"stale", int64(id), now.UnixMilli(), now.Add(-time.Second).UnixMilli(),
	); err != nil {
		t.Fatalf("seed sessions: %v", err)
	}

	u, err := s.GetUserBySession(ctx, "live", now)
	if err != nil {
		t.Fatalf("live session: %v", err)
	}
	if u.ID != id {
		t.Fatalf("id=%d want=%d", u.ID, id)
	}
	if _, err := s.GetUserBySession(ctx, "stale", now); !IsNotFound(err) {
		t.Fatalf("expired session must be not found, got %v", err)
	}
}
