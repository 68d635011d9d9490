package identity

import (
	"context"
	"testing"
	"time"

	"justice/cmd/internal/testdb"
)

// Integration tests are opt-in and require JUSTICE_TEST_DATABASE_URL.

func TestPostgresStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		pool, schema := testdb.Postgres(t)
		s, err := NewPostgresStore(pool, WithSchema(schema))
		if err != nil {
			t.Fatalf("new store: %v", err)
		}
		return s
	})
}

func TestPostgresStore_GetUserBySession_ExpiredIsNotFound(t *testing.T) {
	pool, schema := testdb.Postgres(t)
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	id, err := s.CreateUser(ctx, "frank", "hash")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC()
	if _, err := pool.Exec(ctx,
		`INSERT INTO `+s.table("sessions")+` (token_hash, user_id, expires_at) VALUES ($1, $2, $3), ($4, $2, $5)`,
		"live", int64(id), now.Add(time.Hour), "stale", now.Add(-time.Second),
	); err != nil {
		t.Fatalf("seed sessions: %v", err)
	}

	if u, err := s.GetUserBySession(ctx, "live", now); err != nil || u.ID != id {
		t.Fatalf("live session: id=%d err=%v", u.ID, err)
	}
	if _, err := s.GetUserBySession(ctx, "stale", now); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWithSchema_RejectsBadIdentifiers(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "  ", "1abc", `x"; DROP`} {
		st := &PostgresStore{}
		if err := WithSchema(in)(st); err == nil {
			t.Fatalf("WithSchema(%q) should fail", in)
		}
	}
}
