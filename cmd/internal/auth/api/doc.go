// Package authapi serves the account endpoints and the request authenticator
// that resolves the session cookie into a Principal for every gated route.
package authapi
