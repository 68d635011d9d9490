package authapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"

	"justice/cmd/identity"
	"justice/cmd/internal/auth/session"
	"justice/cmd/internal/web"
	"justice/cmd/security/password"
)

// Sessions is the part of the session store the account handlers use.
// *session.Service implements it.
type Sessions interface {
	Create(ctx context.Context, owner identity.UserID) (session.Issued, error)
	Delete(ctx context.Context, tok string) error
	DeleteAll(ctx context.Context, owner identity.UserID) (int64, error)
	HashToken(tok string) string
}

// SaltSource draws password salts. *token.Source implements it.
type SaltSource interface {
	Salt() []byte
}

// Handler serves the account endpoints.
type Handler struct {
	log *slog.Logger
	cfg Config

	users     identity.Store
	sessions  Sessions
	passwords password.Config
	salts     SaltSource

	cookies cookieJar
	limiter *ipLimiter
	now     func() time.Time

	// dummyHash keeps login timing flat when the username does not exist.
	dummyHash string
}

type HandlerOption func(*Handler)

// WithClock overrides time.Now for the rate limiter and session lookups.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(log *slog.Logger, cfg Config, users identity.Store, sessions Sessions, passwords password.Config, salts SaltSource, opts ...HandlerOption) (*Handler, error) {
	if users == nil || sessions == nil || salts == nil {
		return nil, errors.New("authapi: nil dependency")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	h := &Handler{
		log:       log,
		cfg:       cfg,
		users:     users,
		sessions:  sessions,
		passwords: passwords,
		salts:     salts,
		cookies:   cookieJar{cfg: cfg},
		limiter:   newIPLimiter(cfg.LoginRate, cfg.LoginBurst, cfg.LimiterIdle),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	if hash, err := passwords.HashWithSalt("dummy-password-for-timing-only", salts.Salt()); err == nil {
		h.dummyHash = hash
	}
	return h, nil
}

// Register mounts the account routes. Gated routes go through auth.
func (h *Handler) Register(mux *http.ServeMux, auth *Authenticator) {
	mux.HandleFunc("POST /users", h.throttle(h.handleRegister))
	mux.HandleFunc("POST /users/login", h.throttle(h.handleLogin))
	mux.Handle("POST /users/logout", auth.RequireFunc(h.handleLogout))
	mux.Handle("POST /users/logout_all", auth.RequireFunc(h.handleLogoutAll))
	mux.Handle("GET /users/me", auth.RequireFunc(h.handleMe))
	mux.Handle("GET /search/users", auth.RequireFunc(h.handleSearch))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := web.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		web.WriteValidation(w, r, web.DecodeFields(err))
		return
	}

	fields := web.Validate(req)
	if p := h.passwordProblems(req.Password); len(p) > 0 {
		if fields == nil {
			fields = web.Fields{}
		}
		fields["password"] = p
	}
	if len(fields) > 0 {
		web.WriteValidation(w, r, fields)
		return
	}

	hash, err := h.passwords.HashWithSalt(req.Password, h.salts.Salt())
	if err != nil {
		web.WriteInternal(w, r, h.log, "auth.register.hash.fail", err)
		return
	}

	ctx := r.Context()
	id, err := h.users.CreateUser(ctx, req.Username, hash)
	switch {
	case identity.IsConflict(err):
		h.log.Info("auth.register.conflict", "trace_id", web.TraceID(ctx))
		web.WriteError(w, r, web.KindConflict)
		return
	case identity.IsInvalidInput(err):
		web.WriteValidation(w, r, web.Fields{"username": identity.UsernameProblems(req.Username)})
		return
	case err != nil:
		web.WriteInternal(w, r, h.log, "auth.register.fail", err)
		return
	}

	h.auditRegistered(r, id)
	h.startSession(w, r, id)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := web.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		web.WriteValidation(w, r, web.DecodeFields(err))
		return
	}
	if fields := web.Validate(req); fields != nil {
		web.WriteValidation(w, r, fields)
		return
	}

	ctx := r.Context()
	u, err := h.users.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if !identity.IsNotFound(err) {
			web.WriteInternal(w, r, h.log, "auth.login.lookup.fail", err)
			return
		}
		if h.dummyHash != "" {
			_, _ = h.passwords.Verify(h.dummyHash, req.Password)
		}
		h.auditLoginFailed(r, req.Username, "not_found")
		h.unauthorized(w, r)
		return
	}

	ok, err := h.passwords.Verify(u.PasswordHash, req.Password)
	if err != nil {
		web.WriteInternal(w, r, h.log, "auth.login.verify.fail", err)
		return
	}
	if !ok {
		h.auditLoginFailed(r, req.Username, "bad_password")
		h.unauthorized(w, r)
		return
	}

	h.auditLoginSuccess(r, u.ID)
	h.startSession(w, r, u.ID)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		h.unauthorized(w, r)
		return
	}
	if err := h.sessions.Delete(r.Context(), p.Token); err != nil {
		web.WriteInternal(w, r, h.log, "auth.logout.fail", err)
		return
	}

	h.auditLogout(r, p.UserID)
	h.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		h.unauthorized(w, r)
		return
	}
	n, err := h.sessions.DeleteAll(r.Context(), p.UserID)
	if err != nil {
		web.WriteInternal(w, r, h.log, "auth.logout_all.fail", err)
		return
	}

	h.auditLogoutAll(r, p.UserID, n)
	h.cookies.clear(w)
	web.WriteJSON(w, http.StatusOK, logoutAllResponse{SessionsRemoved: n})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		h.unauthorized(w, r)
		return
	}
	u, err := h.users.GetUserBySession(r.Context(), h.sessions.HashToken(p.Token), h.now())
	if err != nil {
		if identity.IsNotFound(err) {
			h.unauthorized(w, r)
			return
		}
		web.WriteInternal(w, r, h.log, "auth.me.fail", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, u.Public())
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := searchQuery{Username: r.URL.Query().Get("username")}
	if fields := web.Validate(q); fields != nil {
		web.WriteValidation(w, r, fields)
		return
	}

	users, err := h.users.SearchUsersByUsername(r.Context(), q.Username, identity.DefaultSearchLimit)
	if err != nil {
		web.WriteInternal(w, r, h.log, "auth.search.fail", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, lo.Map(users, func(u identity.User, _ int) identity.PublicUser {
		return u.Public()
	}))
}

// startSession issues a session for id, sets the cookie and writes 201 {user_id}.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, id identity.UserID) {
	issued, err := h.sessions.Create(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrCollision):
		h.log.Warn("auth.session.collision", "trace_id", web.TraceID(r.Context()), "user_id", id.String())
		web.WriteError(w, r, web.KindConflict)
		return
	case err != nil:
		web.WriteInternal(w, r, h.log, "auth.session.create.fail", err)
		return
	}

	h.cookies.set(w, issued.Token, issued.ExpiresAt)
	web.WriteJSON(w, http.StatusCreated, userIDResponse{UserID: int64(id)})
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w)
	web.WriteError(w, r, web.KindUnauthorized)
}

func (h *Handler) passwordProblems(pw string) []string {
	err := h.passwords.Validate(pw)
	switch {
	case err == nil:
		return nil
	case strings.TrimSpace(pw) == "":
		return []string{"Empty password"}
	case errors.Is(err, password.ErrPasswordTooShort):
		return []string{fmt.Sprintf("Password must be more than %d characters", h.passwords.Policy.MinLength)}
	case errors.Is(err, password.ErrPasswordTooLong):
		return []string{fmt.Sprintf("Password must be less than %d characters", h.passwords.Policy.MaxLength)}
	case errors.Is(err, password.ErrWeakPassword):
		return []string{"Password is too weak"}
	default:
		return []string{"Password is invalid"}
	}
}
