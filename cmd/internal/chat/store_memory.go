package chat

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"justice/cmd/identity"
)

// MemoryStore implements ChatStore and MessageStore in process memory.
type MemoryStore struct {
	users UserDirectory
	now   func() time.Time

	mu       sync.RWMutex
	nextChat ChatID
	nextMsg  MessageID
	chats    map[ChatID]Chat
	members  map[ChatID]map[identity.UserID]struct{}
	messages map[ChatID][]Message // ascending id
}

// NewMemoryStore validates member ids against users.
func NewMemoryStore(users UserDirectory) *MemoryStore {
	return &MemoryStore{
		users:    users,
		now:      func() time.Time { return time.Now().UTC() },
		chats:    make(map[ChatID]Chat),
		members:  make(map[ChatID]map[identity.UserID]struct{}),
		messages: make(map[ChatID][]Message),
	}
}

func (s *MemoryStore) CreateChat(ctx context.Context, title string, members []identity.UserID) (ChatID, error) {
	members = lo.Uniq(members)
	if len(members) == 0 {
		return 0, ErrInvalidInput
	}
	for _, id := range members {
		if _, err := s.users.GetUserByID(ctx, id); err != nil {
			if identity.IsNotFound(err) {
				return 0, ErrUnknownMember
			}
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextChat++
	id := s.nextChat
	s.chats[id] = Chat{ID: id, Title: title, CreatedAt: s.now()}
	set := make(map[identity.UserID]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	s.members[id] = set
	return id, nil
}

func (s *MemoryStore) RemoveChat(ctx context.Context, chat ChatID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chat]; !ok {
		return ErrNotFound
	}
	delete(s.chats, chat)
	delete(s.members, chat)
	delete(s.messages, chat)
	return nil
}

func (s *MemoryStore) GetChat(ctx context.Context, chat ChatID) (Chat, error) {
	if err := ctx.Err(); err != nil {
		return Chat{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[chat]
	if !ok {
		return Chat{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) GetUserChats(ctx context.Context, user identity.UserID) ([]Chat, error) {
	ids, err := s.GetUserChatIDs(ctx, user)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Chat, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chats[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetUserChatIDs returns ids newest first.
func (s *MemoryStore) GetUserChatIDs(ctx context.Context, user identity.UserID) ([]ChatID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ChatID, 0)
	for id, set := range s.members {
		if _, ok := set[user]; ok {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b ChatID) int { return cmp.Compare(b, a) })
	return out, nil
}

func (s *MemoryStore) GetChatMembers(ctx context.Context, chat ChatID) ([]identity.UserID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := lo.Keys(s.members[chat])
	slices.Sort(out)
	return out, nil
}

func (s *MemoryStore) IsMember(ctx context.Context, user identity.UserID, chat ChatID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.members[chat][user]
	return ok, nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, chat ChatID, sender identity.UserID, content string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chat]; !ok {
		return Message{}, ErrNotFound
	}
	s.nextMsg++
	from := sender
	m := Message{ID: s.nextMsg, Content: content, ChatID: chat, SenderID: &from, CreatedAt: s.now()}
	s.messages[chat] = append(s.messages[chat], m)
	return m, nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, chat ChatID, limit int, before *MessageID) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []Message{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[chat]
	out := make([]Message, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if before != nil && all[i].ID >= *before {
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}
