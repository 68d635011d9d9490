// Package token produces and digests opaque session tokens.
//
// Source is the seeded generator used for session tokens and password salts.
// Hasher turns a clear token into the 64-char hex digest that repositories store:
// HMAC-SHA256 when a key is configured, plain SHA-256 otherwise.
// The clear token only ever travels in the session cookie.
package token
