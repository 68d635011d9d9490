// Package web holds the HTTP plumbing every handler package shares: the error
// taxonomy and its JSON body, per-request trace ids, strict JSON decoding and
// request validation.
package web
