package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"justice/cmd/internal/web"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://chat.example.com", want: "wss://chat.example.com"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.StoreBackend = "mongo" }, wantErr: `unknown store backend "mongo"`},
		{name: "postgres without url", mutate: func(c *Config) { c.StoreBackend = BackendPostgres }, wantErr: "JUSTICE_DATABASE_URL"},
		{name: "bad schema", mutate: func(c *Config) {
			c.StoreBackend = BackendPostgres
			c.DatabaseURL = "postgres://localhost/justice"
			c.DBSchema = "bad-schema;"
		}, wantErr: "not a valid identifier"},
		{name: "redis sessions without addr", mutate: func(c *Config) { c.SessionBackend = BackendRedis }, wantErr: "JUSTICE_REDIS_ADDR"},
		{name: "mismatched session backend", mutate: func(c *Config) { c.SessionBackend = BackendSQLite }, wantErr: "session backend"},
		{name: "wildcard cors with credentials", mutate: func(c *Config) { c.CORSAllowedOrigins = []string{"*"} }, wantErr: "cors origin *"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrConfig)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, writeFile(path, "JUSTICE_HTTP_ADDR=127.0.0.1:7000\nJUSTICE_LOG_LEVEL=debug\n"))

	t.Setenv("JUSTICE_ENV_FILE", path)
	t.Setenv("JUSTICE_LOG_LEVEL", "warn")
	t.Setenv("JUSTICE_STORE_BACKEND", " SQLite ")
	t.Setenv("JUSTICE_CORS_ORIGINS", "https://a.example/, ,https://b.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7000", cfg.HTTPAddr)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, BackendSQLite, cfg.StoreBackend)
	require.Equal(t, BackendSQLite, cfg.SessionStoreBackend())
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestTokenHasher_Policy(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	h, err := TokenHasher(cfg)
	require.NoError(t, err)
	require.False(t, h.HMACEnabled())

	cfg.RequireTokenHMAC = true
	_, err = TokenHasher(cfg)
	require.ErrorIs(t, err, ErrSecurityPolicy)

	cfg.TokenHMACKey = "short"
	_, err = TokenHasher(cfg)
	require.ErrorIs(t, err, ErrSecurityPolicy)

	cfg.TokenHMACKey = strings.Repeat("k", minHMACKeyBytes)
	h, err = TokenHasher(cfg)
	require.NoError(t, err)
	require.True(t, h.HMACEnabled())
}

func testSettings(t *testing.T, backend string) Settings {
	t.Helper()
	s := DefaultSettings()
	s.App.StoreBackend = backend
	s.App.SQLitePath = filepath.Join(t.TempDir(), "justice.db")
	s.App.ShutdownTimeout = 2 * time.Second
	s.Password.Params.MemoryKiB = 8 * 1024
	s.Password.Params.Iterations = 1
	s.Password.Params.Parallelism = 1
	s.Events.SSEHeartbeat = time.Hour
	return s
}

func newTestApp(t *testing.T, backend string) *App {
	t.Helper()
	a, err := New(t.Context(), testSettings(t, backend), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newClient(t *testing.T, base string) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: base, http: &http.Client{Jar: jar, Timeout: 5 * time.Second}}
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(c.t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func (c *client) register(name string) int64 {
	c.t.Helper()
	var out struct {
		UserID int64 `json:"user_id"`
	}
	status := c.do(http.MethodPost, "/users", map[string]string{"username": name, "password": "correct horse battery"}, &out)
	require.Equal(c.t, http.StatusCreated, status)
	require.Positive(c.t, out.UserID)
	return out.UserID
}

func TestApp_EndToEnd(t *testing.T) {
	t.Parallel()

	for _, backend := range []string{BackendMemory, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			a := newTestApp(t, backend)
			srv := httptest.NewServer(a.Handler())
			t.Cleanup(srv.Close)

			alice := newClient(t, srv.URL)
			bob := newClient(t, srv.URL)
			aliceID := alice.register("alice")
			bobID := bob.register("bob")

			var me struct {
				ID       int64  `json:"id"`
				Username string `json:"username"`
			}
			require.Equal(t, http.StatusOK, bob.do(http.MethodGet, "/users/me", nil, &me))
			require.Equal(t, bobID, me.ID)
			require.Equal(t, "bob", me.Username)

			req, err := http.NewRequest(http.MethodGet, srv.URL+"/events", nil)
			require.NoError(t, err)
			stream, err := (&http.Client{Jar: bob.http.Jar}).Do(req)
			require.NoError(t, err)
			defer stream.Body.Close()
			require.Equal(t, http.StatusOK, stream.StatusCode)
			require.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))
			events := bufio.NewReader(stream.Body)

			var created struct {
				ChatID int64 `json:"chat_id"`
			}
			status := alice.do(http.MethodPost, "/chats", map[string]any{"title": "lunch", "users_ids": []int64{bobID}}, &created)
			require.Equal(t, http.StatusCreated, status)
			require.Positive(t, created.ChatID)

			kind, data := readEvent(t, events)
			require.Equal(t, "chat", kind)
			require.Contains(t, data, `"title":"lunch"`)

			var sent struct {
				MessageID int64 `json:"message_id"`
			}
			status = alice.do(http.MethodPost, chatPath(created.ChatID, "/messages"), map[string]string{"content": "pizza?"}, &sent)
			require.Equal(t, http.StatusCreated, status)

			kind, data = readEvent(t, events)
			require.Equal(t, "message", kind)
			require.Contains(t, data, `"content":"pizza?"`)

			var page struct {
				Messages []struct {
					ID       int64  `json:"id"`
					Content  string `json:"content"`
					SenderID *int64 `json:"sender_id"`
				} `json:"messages"`
				HasMore bool `json:"has_more"`
			}
			require.Equal(t, http.StatusOK, bob.do(http.MethodGet, chatPath(created.ChatID, "/messages"), nil, &page))
			require.Len(t, page.Messages, 1)
			require.Equal(t, sent.MessageID, page.Messages[0].ID)
			require.Equal(t, aliceID, *page.Messages[0].SenderID)
			require.False(t, page.HasMore)

			carl := newClient(t, srv.URL)
			carl.register("carl")
			var body web.ErrorBody
			require.Equal(t, http.StatusForbidden, carl.do(http.MethodGet, chatPath(created.ChatID, "/messages"), nil, &body))
			require.Equal(t, web.KindForbidden, body.Type)

			require.Equal(t, http.StatusNoContent, alice.do(http.MethodPost, "/users/logout", nil, nil))
			require.Equal(t, http.StatusUnauthorized, alice.do(http.MethodGet, "/chats", nil, nil))
		})
	}
}

func TestApp_OperationalEndpoints(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, BackendMemory)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "nosniff", res.Header.Get("X-Content-Type-Options"))
	require.NotEmpty(t, res.Header.Get(web.TraceHeader))

	res, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(srv.URL + "/events")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	b, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(b), "justice_http_requests_total")
	require.Contains(t, string(b), "justice_events_subscribers")
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, BackendMemory)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		res, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		res.Body.Close()
		return res.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	require.Zero(t, a.hub.Subscribers())
}

func readEvent(t *testing.T, r *bufio.Reader) (kind, data string) {
	t.Helper()
	type result struct {
		kind, data string
		err        error
	}
	ch := make(chan result, 1)
	go func() {
		var res result
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				res.err = err
				ch <- res
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				res.kind = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				res.data = strings.TrimPrefix(line, "data: ")
			case line == "" && res.kind != "":
				ch <- res
				return
			}
		}
	}()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.kind, res.data
	case <-time.After(3 * time.Second):
		t.Fatal("no event within 3s")
		return "", ""
	}
}

func chatPath(id int64, suffix string) string {
	return "/chats/" + strconv.FormatInt(id, 10) + suffix
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
