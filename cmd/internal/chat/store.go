//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_chat_store.go -package=mocks

package chat

import (
	"context"

	"justice/cmd/identity"
)

// MembershipReader answers "is user in chat". Authorization and fan-out both
// read the same membership relation.
type MembershipReader interface {
	IsMember(ctx context.Context, user identity.UserID, chat ChatID) (bool, error)
}

// ChatStore persists chats and their members.
//
// CreateChat inserts the chat and every membership row in one transaction and
// returns ErrUnknownMember if any id is not a user. RemoveChat returns
// ErrNotFound for an absent chat and cascades to members and messages.
type ChatStore interface {
	MembershipReader

	CreateChat(ctx context.Context, title string, members []identity.UserID) (ChatID, error)
	RemoveChat(ctx context.Context, chat ChatID) error
	GetChat(ctx context.Context, chat ChatID) (Chat, error)
	GetUserChats(ctx context.Context, user identity.UserID) ([]Chat, error)
	GetUserChatIDs(ctx context.Context, user identity.UserID) ([]ChatID, error)
	GetChatMembers(ctx context.Context, chat ChatID) ([]identity.UserID, error)
}

// MessageStore persists messages.
//
// GetMessages returns up to limit messages of chat with id < *before (all when
// before is nil), in strictly descending id order.
type MessageStore interface {
	CreateMessage(ctx context.Context, chat ChatID, sender identity.UserID, content string) (Message, error)
	GetMessages(ctx context.Context, chat ChatID, limit int, before *MessageID) ([]Message, error)
}

// UserDirectory is the identity lookup the memory store uses to reject unknown members.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id identity.UserID) (identity.User, error)
}
