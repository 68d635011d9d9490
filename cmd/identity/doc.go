// Package identity owns user accounts: the User model, username rules,
// and the UserRepository capability (Store) with memory, postgres and sqlite
// implementations.
//
// Password hashing lives in security/password; session records live in
// internal/auth/session. Stores here only read sessions when resolving a
// user by session token.
package identity
