// Package chat owns chats, members and messages: the repositories, the
// membership check that gates every chat-scoped request, the service that
// fans mutations out to the other members, and the HTTP handlers.
package chat
