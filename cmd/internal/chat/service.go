package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"justice/cmd/identity"
	"justice/cmd/internal/realtime"
)

// Message page bounds.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Service runs chat use cases. Every chat-scoped call is authorized before it
// touches chat data, and every successful mutation is fanned out to the other
// members.
type Service struct {
	chats    ChatStore
	messages MessageStore
	access   *AccessControl
	fanout   *Fanout
	log      *slog.Logger
}

func NewService(chats ChatStore, messages MessageStore, pub Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		chats:    chats,
		messages: messages,
		access:   NewAccessControl(chats),
		fanout:   NewFanout(pub, log),
		log:      log,
	}
}

// Access exposes the membership check used by the service.
func (s *Service) Access() *AccessControl { return s.access }

// CreateChat creates a chat with actor plus userIDs as members. The actor is
// always included and the list is deduplicated, actor first.
func (s *Service) CreateChat(ctx context.Context, actor identity.UserID, title string, userIDs []identity.UserID) (ChatID, error) {
	members := lo.Uniq(append([]identity.UserID{actor}, userIDs...))

	id, err := s.chats.CreateChat(ctx, title, members)
	if err != nil {
		return 0, err
	}

	s.publish(actor, members, realtime.KindChat, ChatEvent{ChatID: id, Title: title, UsersIDs: members})
	return id, nil
}

// RemoveChat deletes chat and tells the other members it is gone.
func (s *Service) RemoveChat(ctx context.Context, actor identity.UserID, chat ChatID) error {
	if err := s.access.Authorize(ctx, actor, chat); err != nil {
		return err
	}

	c, err := s.chats.GetChat(ctx, chat)
	if err != nil {
		return err
	}
	members, err := s.chats.GetChatMembers(ctx, chat)
	if err != nil {
		return err
	}
	if err := s.chats.RemoveChat(ctx, chat); err != nil {
		return err
	}

	s.publish(actor, members, realtime.KindChat, ChatEvent{ChatID: chat, Title: c.Title, UsersIDs: members, Removed: true})
	return nil
}

// ListChats returns the actor's chats, newest first.
func (s *Service) ListChats(ctx context.Context, actor identity.UserID) ([]Chat, error) {
	return s.chats.GetUserChats(ctx, actor)
}

// SendMessage stores a message from actor and fans it out.
func (s *Service) SendMessage(ctx context.Context, actor identity.UserID, chat ChatID, content string) (Message, error) {
	if err := s.access.Authorize(ctx, actor, chat); err != nil {
		return Message{}, err
	}

	msg, err := s.messages.CreateMessage(ctx, chat, actor, content)
	if err != nil {
		return Message{}, err
	}

	members, err := s.chats.GetChatMembers(ctx, chat)
	if err != nil {
		// The message is stored; only the live notification is lost.
		s.log.Warn("chat.fanout.fail", slog.String("chat_id", chat.String()), slog.Any("err", err))
		return msg, nil
	}
	s.publish(actor, members, realtime.KindMessage, MessageEvent{ChatID: chat, Message: msg, UserID: actor})
	return msg, nil
}

// ListMessages returns up to limit messages older than before, newest first.
// limit <= 0 means DefaultPageLimit; larger than MaxPageLimit is clamped.
func (s *Service) ListMessages(ctx context.Context, actor identity.UserID, chat ChatID, limit int, before *MessageID) (Page, error) {
	if err := s.access.Authorize(ctx, actor, chat); err != nil {
		return Page{}, err
	}
	limit = ClampLimit(limit)

	msgs, err := s.messages.GetMessages(ctx, chat, limit+1, before)
	if err != nil {
		return Page{}, err
	}
	page := Page{Messages: msgs, HasMore: len(msgs) > limit}
	if page.HasMore {
		page.Messages = msgs[:limit]
	}
	if page.Messages == nil {
		page.Messages = []Message{}
	}
	return page, nil
}

// ClampLimit maps a requested page size into [1, MaxPageLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageLimit
	case limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return limit
	}
}

func (s *Service) publish(actor identity.UserID, members []identity.UserID, kind realtime.Kind, payload any) {
	ev, err := realtime.NewEvent(kind, payload)
	if err != nil {
		s.log.Error("chat.fanout.fail", slog.Any("err", fmt.Errorf("encode: %w", err)))
		return
	}
	s.fanout.Send(actor, members, ev)
}
