package chat

import (
	"context"
	"errors"
	"testing"

	"justice/cmd/identity"
	"justice/cmd/internal/testdb"
)

type chatStores interface {
	ChatStore
	MessageStore
}

type storeFixture struct {
	store            chatStores
	alice, bob, carl identity.UserID
}

func runStoreContract(t *testing.T, open func(t *testing.T) storeFixture) {
	t.Run("create chat with members", func(t *testing.T) {
		f := open(t)
		ctx := context.Background()

		id, err := f.store.CreateChat(ctx, "trip", []identity.UserID{f.alice, f.bob, f.alice})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		c, err := f.store.GetChat(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if c.ID != id || c.Title != "trip" || c.CreatedAt.IsZero() {
			t.Fatalf("unexpected chat %+v", c)
		}

		members, err := f.store.GetChatMembers(ctx, id)
		if err != nil {
			t.Fatalf("members: %v", err)
		}
		if len(members) != 2 {
			t.Fatalf("members=%v want alice and bob once each", members)
		}

		for _, tc := range []struct {
			user identity.UserID
			want bool
		}{{f.alice, true}, {f.bob, true}, {f.carl, false}} {
			ok, err := f.store.IsMember(ctx, tc.user, id)
			if err != nil {
				t.Fatalf("is member: %v", err)
			}
			if ok != tc.want {
				t.Fatalf("IsMember(%d)=%v want=%v", tc.user, ok, tc.want)
			}
		}
	})

	t.Run("unknown member rolls back", func(t *testing.T) {
		f := open(t)
		ctx := context.Background()

		_, err := f.store.CreateChat(ctx, "ghost", []identity.UserID{f.alice, 999_999})
		if !errors.Is(err, ErrUnknownMember) {
			t.Fatalf("expected ErrUnknownMember, got %v", err)
		}
		ids, err := f.store.GetUserChatIDs(ctx, f.alice)
		if err != nil {
			t.Fatalf("chat ids: %v", err)
		}
		if len(ids) != 0 {
			t.Fatalf("partial chat left behind: %v", ids)
		}
	})

	t.Run("user chats newest first", func(t *testing.T) {
		f := open(t)
		ctx := context.Background()

		first, err := f.store.CreateChat(ctx, "first", []identity.UserID{f.alice, f.bob})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		second, err := f.store.CreateChat(ctx, "second", []identity.UserID{f.alice})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		chats, err := f.store.GetUserChats(ctx, f.alice)
		if err != nil {
			t.Fatalf("user chats: %v", err)
		}
		if len(chats) != 2 || chats[0].ID != second || chats[1].ID != first {
			t.Fatalf("unexpected order %+v", chats)
		}

		bobs, err := f.store.GetUserChatIDs(ctx, f.bob)
		if err != nil {
			t.Fatalf("chat ids: %v", err)
		}
		if len(bobs) != 1 || bobs[0] != first {
			t.Fatalf("bob chats=%v want [%d]", bobs, first)
		}
	})

	t.Run("messages descend and page by cursor", func(t *testing.T) {
		f := open(t)
		ctx := context.Background()

		id, err := f.store.CreateChat(ctx, "log", []identity.UserID{f.alice, f.bob})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		var sent []Message
		for _, body := range []string{"one", "two", "three", "four", "five"} {
			m, err := f.store.CreateMessage(ctx, id, f.alice, body)
			if err != nil {
				t.Fatalf("message: %v", err)
			}
			if m.SenderID == nil || *m.SenderID != f.alice || m.ChatID != id {
				t.Fatalf("unexpected message %+v", m)
			}
			sent = append(sent, m)
		}

		page, err := f.store.GetMessages(ctx, id, 2, nil)
		if err != nil {
			t.Fatalf("page: %v", err)
		}
		if len(page) != 2 || page[0].ID != sent[4].ID || page[1].ID != sent[3].ID {
			t.Fatalf("first page %+v", page)
		}

		cursor := page[1].ID
		rest, err := f.store.GetMessages(ctx, id, 10, &cursor)
		if err != nil {
			t.Fatalf("rest: %v", err)
		}
		if len(rest) != 3 {
			t.Fatalf("rest=%d want=3", len(rest))
		}
		for i := 1; i < len(rest); i++ {
			if rest[i].ID >= rest[i-1].ID {
				t.Fatalf("not strictly descending at %d: %+v", i, rest)
			}
		}
		if rest[0].ID >= cursor {
			t.Fatalf("cursor not exclusive: %d >= %d", rest[0].ID, cursor)
		}
		if rest[2].Content != "one" {
			t.Fatalf("oldest=%q want=one", rest[2].Content)
		}
	})

	t.Run("message into missing chat", func(t *testing.T) {
		f := open(t)
		if _, err := f.store.CreateMessage(context.Background(), 424242, f.alice, "hi"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("remove cascades", func(t *testing.T) {
		f := open(t)
		ctx := context.Background()

		id, err := f.store.CreateChat(ctx, "bye", []identity.UserID{f.alice, f.bob})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := f.store.CreateMessage(ctx, id, f.bob, "hello"); err != nil {
			t.Fatalf("message: %v", err)
		}
		if err := f.store.RemoveChat(ctx, id); err != nil {
			t.Fatalf("remove: %v", err)
		}

		if _, err := f.store.GetChat(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if ok, err := f.store.IsMember(ctx, f.alice, id); err != nil || ok {
			t.Fatalf("membership survived removal: ok=%v err=%v", ok, err)
		}
		msgs, err := f.store.GetMessages(ctx, id, 10, nil)
		if err != nil {
			t.Fatalf("messages: %v", err)
		}
		if len(msgs) != 0 {
			t.Fatalf("messages survived removal: %+v", msgs)
		}
		if err := f.store.RemoveChat(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("second remove: expected ErrNotFound, got %v", err)
		}
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	t.Parallel()
	runStoreContract(t, func(t *testing.T) storeFixture {
		users := identity.NewMemoryStore(nil)
		return storeFixture{
			store: NewMemoryStore(users),
			alice: mustCreateUser(t, users, "alice"),
			bob:   mustCreateUser(t, users, "bob"),
			carl:  mustCreateUser(t, users, "carl"),
		}
	})
}

func TestSQLiteStore_Contract(t *testing.T) {
	t.Parallel()
	runStoreContract(t, func(t *testing.T) storeFixture {
		db := testdb.SQLite(t)
		users, err := identity.NewSQLiteStore(db, nil)
		if err != nil {
			t.Fatalf("users: %v", err)
		}
		store, err := NewSQLiteStore(db)
		if err != nil {
			t.Fatalf("store: %v", err)
		}
		return storeFixture{
			store: store,
			alice: mustCreateUser(t, users, "alice"),
			bob:   mustCreateUser(t, users, "bob"),
			carl:  mustCreateUser(t, users, "carl"),
		}
	})
}

func TestPostgresStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) storeFixture {
		pool, schema := testdb.Postgres(t)
		users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
		if err != nil {
			t.Fatalf("users: %v", err)
		}
		store, err := NewPostgresStore(pool, schema)
		if err != nil {
			t.Fatalf("store: %v", err)
		}
		return storeFixture{
			store: store,
			alice: mustCreateUser(t, users, "alice"),
			bob:   mustCreateUser(t, users, "bob"),
			carl:  mustCreateUser(t, users, "carl"),
		}
	})
}

func mustCreateUser(t *testing.T, s identity.Store, name string) identity.UserID {
	t.Helper()
	id, err := s.CreateUser(context.Background(), name, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return id
}
