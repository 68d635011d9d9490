package web

import (
	"log/slog"
	"net/http"
)

// Kind is the "type" discriminator of an error body.
type Kind string

const (
	KindValidation      Kind = "Validation"
	KindUnauthorized    Kind = "Unauthorized"
	KindForbidden       Kind = "Forbidden"
	KindNotFound        Kind = "NotFound"
	KindConflict        Kind = "Conflict"
	KindTooManyRequests Kind = "TooManyRequests"
	KindUnknown         Kind = "Unknown"
)

// Status maps k to its HTTP status code. Unrecognised kinds are 500.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Fields maps a request field to its validation messages.
type Fields map[string][]string

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Type    Kind   `json:"type"`
	TraceID string `json:"trace_id"`
	Fields  Fields `json:"fields,omitempty"`
}

// WriteError writes the error body for kind, stamped with the request's trace id.
func WriteError(w http.ResponseWriter, r *http.Request, kind Kind) {
	writeError(w, r, kind, nil)
}

// WriteValidation writes a 400 Validation body listing fields.
func WriteValidation(w http.ResponseWriter, r *http.Request, fields Fields) {
	writeError(w, r, KindValidation, fields)
}

// WriteInternal logs cause with the trace id and writes a 500 Unknown body.
// The cause is never serialized.
func WriteInternal(w http.ResponseWriter, r *http.Request, log *slog.Logger, event string, cause error) {
	if log != nil {
		log.Error(event,
			slog.String("trace_id", TraceID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("err", cause),
		)
	}
	writeError(w, r, KindUnknown, nil)
}

func writeError(w http.ResponseWriter, r *http.Request, kind Kind, fields Fields) {
	if len(fields) == 0 {
		fields = nil
	}
	WriteJSON(w, kind.Status(), ErrorBody{
		Type:    kind,
		TraceID: TraceID(r.Context()),
		Fields:  fields,
	})
}
