package app

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	authapi "justice/cmd/internal/auth/api"
	"justice/cmd/internal/chat"
	"justice/cmd/internal/realtime"
)

type routes struct {
	auth    *authapi.Authenticator
	account *authapi.Handler
	chats   *chat.Handler
	sse     *realtime.SSEHandler
	ws      *realtime.WSGateway
}

func (a *App) registerHTTP(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := a.stores.Ready(ctx); err != nil {
			a.log.Warn("readyz.not_ready", "err", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", a.metrics.Handler())

	rt.account.Register(mux, rt.auth)
	rt.chats.Register(mux, rt.auth)
	mux.Handle("GET /events", rt.auth.Require(rt.sse))
	mux.Handle("GET /ws", rt.auth.Require(rt.ws))
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
// Wildcard binds map to loopback.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
