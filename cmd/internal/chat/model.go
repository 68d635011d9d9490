package chat

import (
	"strconv"
	"time"

	"justice/cmd/identity"
)

type ChatID int64

func (id ChatID) String() string { return strconv.FormatInt(int64(id), 10) }

type MessageID int64

func (id MessageID) String() string { return strconv.FormatInt(int64(id), 10) }

// Title and content bounds, in characters.
const (
	MaxTitleChars   = 50
	MaxContentChars = 4000
)

type Chat struct {
	ID        ChatID    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one chat message. SenderID is nil once the sender's account is gone.
type Message struct {
	ID        MessageID        `json:"id"`
	Content   string           `json:"content"`
	ChatID    ChatID           `json:"chat_id"`
	SenderID  *identity.UserID `json:"sender_id"`
	CreatedAt time.Time        `json:"created_at"`
}

// Page is one slice of a chat's history, newest first.
type Page struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// ChatEvent is the payload of a "chat" event. Removed marks a deleted chat.
type ChatEvent struct {
	ChatID   ChatID            `json:"chat_id"`
	Title    string            `json:"title"`
	UsersIDs []identity.UserID `json:"users_ids"`
	Removed  bool              `json:"removed"`
}

// MessageEvent is the payload of a "message" event.
type MessageEvent struct {
	ChatID  ChatID          `json:"chat_id"`
	Message Message         `json:"message"`
	UserID  identity.UserID `json:"user_id"`
}
