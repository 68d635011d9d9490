package identity

import (
	"context"
	"testing"
	"time"
)

// runStoreContract exercises behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create and fetch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.CreateUser(ctx, "  Alice_01 ", "$argon2id$hash")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if id <= 0 {
			t.Fatalf("expected positive id, got %d", id)
		}

		byID, err := s.GetUserByID(ctx, id)
		if err != nil {
			t.Fatalf("by id: %v", err)
		}
		if byID.Username != "Alice_01" {
			t.Fatalf("username=%q want trimmed %q", byID.Username, "Alice_01")
		}
		if byID.PasswordHash != "$argon2id$hash" {
			t.Fatalf("password hash not stored")
		}

		byName, err := s.GetUserByUsername(ctx, "alice_01")
		if err != nil {
			t.Fatalf("by username: %v", err)
		}
		if byName.ID != id {
			t.Fatalf("id=%d want=%d", byName.ID, id)
		}
	})

	t.Run("duplicate username conflicts case-insensitively", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.CreateUser(ctx, "Navid", "h1"); err != nil {
			t.Fatalf("create: %v", err)
		}
		_, err := s.CreateUser(ctx, "nAvId", "h2")
		if !IsConflict(err) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("missing rows are not found", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.GetUserByID(ctx, 4242); !IsNotFound(err) {
			t.Fatalf("expected not found, got %v", err)
		}
		if _, err := s.GetUserByUsername(ctx, "ghost"); !IsNotFound(err) {
			t.Fatalf("expected not found, got %v", err)
		}
		if _, err := s.GetUserBySession(ctx, "deadbeef", time.Now()); !IsNotFound(err) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("search matches prefix literally", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, name := range []string{"bob", "bobby", "bo_b", "boxer", "alice"} {
			if _, err := s.CreateUser(ctx, name, "h"); err != nil {
				t.Fatalf("create %s: %v", name, err)
			}
		}

		got, err := s.SearchUsersByUsername(ctx, "BOB", 0)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if names := usernames(got); !equalStrings(names, []string{"bob", "bobby"}) {
			t.Fatalf("search BOB = %v", names)
		}

		got, err = s.SearchUsersByUsername(ctx, "bo_", 0)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if names := usernames(got); !equalStrings(names, []string{"bo_b"}) {
			t.Fatalf("underscore must match literally, got %v", names)
		}

		got, err = s.SearchUsersByUsername(ctx, "bo", 2)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("limit ignored: %d results", len(got))
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.CreateUser(context.Background(), "   ", "h"); !IsInvalidInput(err) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})
}

func usernames(us []User) []string {
	out := make([]string, 0, len(us))
	for _, u := range us {
		out = append(out, u.Username)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
