package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// DefaultMaxBody bounds request bodies decoded by DecodeJSON.
const DefaultMaxBody int64 = 64 << 10

var (
	ErrEmptyBody = errors.New("empty body")
	ErrExtraData = errors.New("extra data after JSON object")
)

// WriteJSON encodes v with status. Responses are never cached.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON strictly decodes exactly one JSON object from r into dst.
// Unknown fields and trailing data are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	if maxBytes <= 0 {
		maxBytes = DefaultMaxBody
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return ErrExtraData
	}
	return nil
}

// DecodeFields is the Validation body for a body that failed to decode.
func DecodeFields(err error) Fields {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return Fields{"body": {"Request body too large"}}
	}
	return Fields{"body": {"Malformed JSON body"}}
}
