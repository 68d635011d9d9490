package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindStatus(t *testing.T) {
	t.Parallel()

	cases := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindUnauthorized:    http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindConflict:        http.StatusConflict,
		KindTooManyRequests: http.StatusTooManyRequests,
		KindUnknown:         http.StatusInternalServerError,
		Kind("Nope"):        http.StatusInternalServerError,
	}
	for k, want := range cases {
		require.Equal(t, want, k.Status(), "kind %s", k)
	}
}

func TestWriteError_CarriesTraceID(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r = r.WithContext(WithTraceID(r.Context(), "01TRACE"))
	w := httptest.NewRecorder()

	WriteError(w, r, KindNotFound)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "NotFound", body["type"])
	require.Equal(t, "01TRACE", body["trace_id"])
	_, hasFields := body["fields"]
	require.False(t, hasFields)
}

func TestWriteValidation_ListsFields(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/x", nil)
	w := httptest.NewRecorder()

	WriteValidation(w, r, Fields{"title": {"Title is empty"}})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, KindValidation, body.Type)
	require.Equal(t, []string{"Title is empty"}, body.Fields["title"])
}

func TestWriteInternal_DoesNotLeakCause(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()

	WriteInternal(w, r, nil, "test.fail", errors.New("pq: password=hunter2"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "hunter2")
	require.Contains(t, w.Body.String(), `"type":"Unknown"`)
}

func TestNewTraceID_IsULID(t *testing.T) {
	t.Parallel()

	a, b := NewTraceID(), NewTraceID()
	require.Len(t, a, 26)
	require.NotEqual(t, a, b)
}

type decodeTarget struct {
	Name string `json:"name"`
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		body    string
		max     int64
		wantErr bool
	}{
		{name: "ok", body: `{"name":"x"}`},
		{name: "unknown field", body: `{"name":"x","extra":1}`, wantErr: true},
		{name: "trailing data", body: `{"name":"x"}{}`, wantErr: true},
		{name: "empty", body: ``, wantErr: true},
		{name: "too large", body: `{"name":"` + strings.Repeat("a", 64) + `"}`, max: 16, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tc.body))
			w := httptest.NewRecorder()
			var dst decodeTarget
			err := DecodeJSON(w, r, tc.max, &dst)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "x", dst.Name)
		})
	}
}

func TestDecodeFields_TooLarge(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"`+strings.Repeat("a", 64)+`"}`))
	w := httptest.NewRecorder()
	var dst decodeTarget
	err := DecodeJSON(w, r, 8, &dst)
	require.Error(t, err)
	require.Equal(t, []string{"Request body too large"}, DecodeFields(err)["body"])
}

type signup struct {
	Username string `json:"username" validate:"username"`
	Password string `json:"password" validate:"trimmed_min=6"`
	Title    string `json:"title" validate:"required,max=5"`
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.Nil(t, Validate(signup{Username: "alice", Password: "secret", Title: "hi"}))

	fields := Validate(signup{Username: "a!", Password: "  ab   ", Title: ""})
	require.NotNil(t, fields)
	require.Len(t, fields["username"], 2)
	require.Equal(t, []string{"Password must be at least 6 characters"}, fields["password"])
	require.Equal(t, []string{"Title is empty"}, fields["title"])

	fields = Validate(signup{Username: "alice", Password: "secret", Title: "toolong"})
	require.Equal(t, []string{"Title must be at most 5 characters"}, fields["title"])
}
