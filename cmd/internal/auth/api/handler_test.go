package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"justice/cmd/identity"
	"justice/cmd/internal/auth/session"
	"justice/cmd/internal/web"
	"justice/cmd/security/password"
	"justice/cmd/security/token"

	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv      *httptest.Server
	h        *Handler
	users    *identity.MemoryStore
	repo     *session.MemoryRepository
	sessions *session.Service
}

func fastPasswords() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := DefaultConfig()
	cfg.LoginBurst = 100
	if mutate != nil {
		mutate(&cfg)
	}

	src := token.NewSource([32]byte{42})
	repo := session.NewMemoryRepository()
	sessions := session.NewService(session.DefaultConfig(), repo, src, nil)
	users := identity.NewMemoryStore(session.UserLookup(repo))

	h, err := NewHandler(nil, cfg, users, sessions, fastPasswords(), src)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux, NewAuthenticator(nil, sessions, cfg))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, h: h, users: users, repo: repo, sessions: sessions}
}

func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func do(t *testing.T, c *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	out, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, out
}

func sessionCookie(res *http.Response) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}

func creds(u, p string) map[string]string {
	return map[string]string{"username": u, "password": p}
}

func TestRegister_LogsInAndMeWorks(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	c := env.client(t)

	res, body := do(t, c, http.MethodPost, env.srv.URL+"/users", creds("alice", "correct-horse"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))

	var created userIDResponse
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotZero(t, created.UserID)

	ck := sessionCookie(res)
	require.NotNil(t, ck)
	require.True(t, ck.HttpOnly)
	require.True(t, token.WellFormed(ck.Value))
	require.Equal(t, 1, env.repo.Len())

	res, body = do(t, c, http.MethodGet, env.srv.URL+"/users/me", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var me identity.PublicUser
	require.NoError(t, json.Unmarshal(body, &me))
	require.Equal(t, identity.UserID(created.UserID), me.ID)
	require.Equal(t, "alice", me.Username)
	require.NotContains(t, string(body), "argon2id")
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	c := env.client(t)

	res, body := do(t, c, http.MethodPost, env.srv.URL+"/users", creds("a!", "123"))
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	var eb web.ErrorBody
	require.NoError(t, json.Unmarshal(body, &eb))
	require.Equal(t, web.KindValidation, eb.Type)
	require.Equal(t, []string{
		"Username must be more than 3 characters",
		"Username must contain only latin letters or digits, underscores, dashes and dots",
	}, eb.Fields["username"])
	require.Equal(t, []string{"Password must be more than 6 characters"}, eb.Fields["password"])

	res, body = do(t, c, http.MethodPost, env.srv.URL+"/users", creds("", ""))
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.NoError(t, json.Unmarshal(body, &eb))
	require.Equal(t, []string{"Empty username"}, eb.Fields["username"])
	require.Equal(t, []string{"Empty password"}, eb.Fields["password"])

	res, _ = do(t, c, http.MethodPost, env.srv.URL+"/users", map[string]any{"username": "alice", "password": "secret-pw", "admin": true})
	require.Equal(t, http.StatusBadRequest, res.StatusCode, "unknown fields are rejected")
}

func TestRegister_DuplicateIsConflict(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	res, _ := do(t, env.client(t), http.MethodPost, env.srv.URL+"/users", creds("Bob", "secret-pw"))
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, body := do(t, env.client(t), http.MethodPost, env.srv.URL+"/users", creds("bob", "other-pw"))
	require.Equal(t, http.StatusConflict, res.StatusCode)
	require.Contains(t, string(body), `"type":"Conflict"`)
}

func TestLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	res, _ := do(t, env.client(t), http.MethodPost, env.srv.URL+"/users", creds("carol", "secret-pw"))
	require.Equal(t, http.StatusCreated, res.StatusCode)

	c := env.client(t)
	res, _ = do(t, c, http.MethodPost, env.srv.URL+"/users/login", creds("CAROL", "secret-pw"))
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.NotNil(t, sessionCookie(res))
	require.Equal(t, 2, env.repo.Len(), "one user may hold many sessions")

	for _, tc := range []map[string]string{
		creds("carol", "wrong-pw"),
		creds("nobody", "secret-pw"),
	} {
		res, body := do(t, env.client(t), http.MethodPost, env.srv.URL+"/users/login", tc)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)
		require.Contains(t, string(body), `"type":"Unauthorized"`)
		ck := sessionCookie(res)
		require.NotNil(t, ck)
		require.Equal(t, "", ck.Value)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.LoginRate = 0.001
		c.LoginBurst = 2
	})
	c := env.client(t)

	for i := 0; i < 2; i++ {
		res, _ := do(t, c, http.MethodPost, env.srv.URL+"/users/login", creds("nobody", "secret-pw"))
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	}
	res, body := do(t, c, http.MethodPost, env.srv.URL+"/users/login", creds("nobody", "secret-pw"))
	require.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	require.Contains(t, string(body), `"type":"TooManyRequests"`)
	require.NotEmpty(t, res.Header.Get("Retry-After"))
}

func TestLogout_DeletesSessionAndClearsCookie(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	c := env.client(t)

	res, _ := do(t, c, http.MethodPost, env.srv.URL+"/users", creds("dave", "secret-pw"))
	require.Equal(t, http.StatusCreated, res.StatusCode)
	tok := sessionCookie(res).Value

	res, _ = do(t, c, http.MethodPost, env.srv.URL+"/users/logout", nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	ck := sessionCookie(res)
	require.NotNil(t, ck)
	require.Equal(t, -1, ck.MaxAge)

	_, err := env.sessions.Validate(context.Background(), tok)
	require.ErrorIs(t, err, session.ErrNotFound)

	res, _ = do(t, c, http.MethodGet, env.srv.URL+"/users/me", nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestMe_ResolvesThroughSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	res, _ := do(t, env.client(t), http.MethodPost, env.srv.URL+"/users", creds("gail", "secret-pw"))
	require.Equal(t, http.StatusCreated, res.StatusCode)
	tok := sessionCookie(res).Value
	u, err := env.users.GetUserByUsername(context.Background(), "gail")
	require.NoError(t, err)

	me := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: u.ID, Token: tok}))
		rec := httptest.NewRecorder()
		env.h.handleMe(rec, req)
		return rec
	}

	rec := me()
	require.Equal(t, http.StatusOK, rec.Code)
	var got identity.PublicUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "gail", got.Username)

	// Session revoked after the authenticator admitted the request.
	require.NoError(t, env.repo.DeleteByToken(context.Background(), env.sessions.HashToken(tok)))
	require.Equal(t, http.StatusUnauthorized, me().Code)
}

func TestLogoutAll(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	c := env.client(t)
	res, _ := do(t, c, http.MethodPost, env.srv.URL+"/users", creds("erin", "secret-pw"))
	require.Equal(t, http.StatusCreated, res.StatusCode)
	for i := 0; i < 2; i++ {
		res, _ = do(t, env.client(t), http.MethodPost, env.srv.URL+"/users/login", creds("erin", "secret-pw"))
		require.Equal(t, http.StatusCreated, res.StatusCode)
	}

	res, body := do(t, c, http.MethodPost, env.srv.URL+"/users/logout_all", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.JSONEq(t, `{"sessions_removed":3}`, string(body))
	require.Equal(t, 0, env.repo.Len())
}

func TestSearch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	for _, u := range []string{"frank", "franny", "grace"} {
		res, _ := do(t, env.client(t), http.MethodPost, env.srv.URL+"/users", creds(u, "secret-pw"))
		require.Equal(t, http.StatusCreated, res.StatusCode)
	}
	c := env.client(t)
	res, _ := do(t, c, http.MethodPost, env.srv.URL+"/users/login", creds("grace", "secret-pw"))
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, body := do(t, c, http.MethodGet, env.srv.URL+"/search/users?username=FRA", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var found []identity.PublicUser
	require.NoError(t, json.Unmarshal(body, &found))
	require.Len(t, found, 2)
	require.Equal(t, "frank", found[0].Username)
	require.Equal(t, "franny", found[1].Username)

	res, body = do(t, c, http.MethodGet, env.srv.URL+"/search/users?username=zzz", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "[]", strings.TrimSpace(string(body)))

	res, body = do(t, c, http.MethodGet, env.srv.URL+"/search/users?username=a", nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Contains(t, string(body), "Username must be more than 3 characters")

	res, _ = do(t, env.client(t), http.MethodGet, env.srv.URL+"/search/users?username=fra", nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

type validatorFunc func(ctx context.Context, tok string) (identity.UserID, error)

func (f validatorFunc) Validate(ctx context.Context, tok string) (identity.UserID, error) {
	return f(ctx, tok)
}

func TestAuthenticator(t *testing.T) {
	t.Parallel()

	good := token.NewSource([32]byte{9}).Token()
	var calls int
	a := NewAuthenticator(nil, validatorFunc(func(_ context.Context, tok string) (identity.UserID, error) {
		calls++
		switch tok {
		case good:
			return 77, nil
		case strings.Repeat("b", 43):
			return 0, errors.New("db down")
		default:
			return 0, session.ErrNotFound
		}
	}), DefaultConfig())

	var seen Principal
	h := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		require.True(t, ok)
		seen = p
		w.WriteHeader(http.StatusTeapot)
	}))

	serve := func(cookie string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/x", nil)
		if cookie != "" {
			r.AddCookie(&http.Cookie{Name: "session", Value: cookie})
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	w := serve(good)
	require.Equal(t, http.StatusTeapot, w.Code)
	require.Equal(t, Principal{UserID: 77, Token: good}, seen)
	require.Equal(t, 1, calls)

	for _, c := range []string{"", "short!", strings.Repeat("a", 43)} {
		w = serve(c)
		require.Equal(t, http.StatusUnauthorized, w.Code, c)
		require.Contains(t, w.Header().Get("Set-Cookie"), "session=;")
		require.Contains(t, w.Header().Get("Set-Cookie"), "Max-Age=0")
	}
	require.Equal(t, 2, calls, "malformed tokens never reach the store")

	w = serve(strings.Repeat("b", 43))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Empty(t, w.Header().Get("Set-Cookie"))
	require.Contains(t, w.Body.String(), `"type":"Unknown"`)
}

func TestCookieJar_ClearMatchesIssueAttributes(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.CookieDomain = "example.com"
	cfg.CookieSecure = true
	cfg.CookieSameSite = "strict"
	jar := cookieJar{cfg: cfg}

	w := httptest.NewRecorder()
	jar.set(w, "tok", time.Now().Add(time.Hour))
	jar.clear(w)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		require.Equal(t, "session", c.Name)
		require.Equal(t, "/", c.Path)
		require.Equal(t, "example.com", c.Domain)
		require.True(t, c.Secure)
		require.True(t, c.HttpOnly)
		require.Equal(t, http.SameSiteStrictMode, c.SameSite)
	}
	require.Equal(t, "", cookies[1].Value)
}
