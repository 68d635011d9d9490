package identity

import (
	"strconv"
	"time"
)

// UserID is the numeric primary key of a user.
type UserID int64

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// User is a stored account. PasswordHash is an encoded Argon2id string and never leaves the server.
type User struct {
	ID           UserID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// PublicUser is the externally visible projection of a User.
type PublicUser struct {
	ID        UserID    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Public drops credential material.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt.UTC()}
}
