package chat

import (
	"context"
	"fmt"

	"justice/cmd/identity"
)

// AccessControl gates chat-scoped operations on membership. It fails closed:
// a storage error never grants access.
type AccessControl struct {
	members MembershipReader
}

func NewAccessControl(members MembershipReader) *AccessControl {
	return &AccessControl{members: members}
}

// IsMember reports whether user belongs to chat.
func (a *AccessControl) IsMember(ctx context.Context, user identity.UserID, chat ChatID) (bool, error) {
	ok, err := a.members.IsMember(ctx, user, chat)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAccessCheck, err)
	}
	return ok, nil
}

// Authorize returns nil for members, ErrForbidden for non-members and for
// chats that do not exist, and ErrAccessCheck when membership is unknown.
func (a *AccessControl) Authorize(ctx context.Context, user identity.UserID, chat ChatID) error {
	ok, err := a.IsMember(ctx, user, chat)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
