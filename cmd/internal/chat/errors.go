package chat

import "errors"

var (
	// ErrNotFound: the chat does not exist.
	ErrNotFound = errors.New("chat: not found")
	// ErrUnknownMember: a member id passed to CreateChat is not a user.
	ErrUnknownMember = errors.New("chat: unknown member")
	// ErrForbidden: the caller is not a member. Also returned for chats that
	// do not exist, so callers cannot probe for them.
	ErrForbidden = errors.New("chat: forbidden")
	// ErrAccessCheck: membership could not be determined. Never grants access.
	ErrAccessCheck = errors.New("chat: access check failed")
	// ErrInvalidInput: empty member list or similar caller mistakes.
	ErrInvalidInput = errors.New("chat: invalid input")
)
