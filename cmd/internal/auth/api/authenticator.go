package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"justice/cmd/identity"
	"justice/cmd/internal/auth/session"
	"justice/cmd/internal/web"
	"justice/cmd/security/token"
)

// SessionValidator resolves a clear session token to its owner.
// *session.Service implements it.
type SessionValidator interface {
	Validate(ctx context.Context, tok string) (identity.UserID, error)
}

// Authenticator gates handlers on a valid session cookie.
type Authenticator struct {
	log      *slog.Logger
	sessions SessionValidator
	cookies  cookieJar
}

func NewAuthenticator(log *slog.Logger, sessions SessionValidator, cfg Config) *Authenticator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Authenticator{log: log, sessions: sessions, cookies: cookieJar{cfg: cfg}}
}

// Require runs next with the caller's Principal in its context.
//
// A missing, malformed, unknown or expired token is 401 and clears the
// cookie. A storage failure is 500 and leaves the cookie alone.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := a.cookies.token(r)
		if tok == "" || !token.WellFormed(tok) {
			a.reject(w, r)
			return
		}

		owner, err := a.sessions.Validate(r.Context(), tok)
		switch {
		case errors.Is(err, session.ErrNotFound):
			a.reject(w, r)
			return
		case err != nil:
			web.WriteInternal(w, r, a.log, "auth.session.fail", err)
			return
		}

		ctx := WithPrincipal(r.Context(), Principal{UserID: owner, Token: tok})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireFunc is Require for a HandlerFunc.
func (a *Authenticator) RequireFunc(next http.HandlerFunc) http.Handler {
	return a.Require(next)
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request) {
	a.cookies.clear(w)
	web.WriteError(w, r, web.KindUnauthorized)
}
