// Package session is the session authority: it issues opaque session tokens,
// resolves them back to their owner, deletes them, and sweeps expired ones.
//
// Tokens come from a seeded security/token.Source; repositories only ever see
// the token's digest (HMAC-SHA256 when a key is configured, SHA-256 otherwise).
// An expired session is indistinguishable from a missing one.
//
// Transport (cookies, HTTP status mapping) lives in internal/auth/api.
package session
