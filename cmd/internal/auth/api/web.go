package authapi

import (
	"net/http"
	"strings"
	"time"
)

// cookieJar issues and clears the session cookie. Every Set-Cookie carries
// the same Path, Domain, Secure and SameSite attributes.
type cookieJar struct {
	cfg Config
}

func (c cookieJar) set(w http.ResponseWriter, token string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.CookieName,
		Value:    token,
		Path:     c.cfg.CookiePath,
		Domain:   c.cfg.CookieDomain,
		Expires:  exp.UTC(),
		HttpOnly: true,
		Secure:   c.cfg.CookieSecure,
		SameSite: c.cfg.SameSite(),
	})
}

func (c cookieJar) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.CookieName,
		Value:    "",
		Path:     c.cfg.CookiePath,
		Domain:   c.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cfg.CookieSecure,
		SameSite: c.cfg.SameSite(),
	})
}

// token returns the trimmed session cookie value, or "".
func (c cookieJar) token(r *http.Request) string {
	ck, err := r.Cookie(c.cfg.CookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(ck.Value)
}
