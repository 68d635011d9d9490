// Package app wires the justice server runtime: config, logging, storage,
// HTTP routes, live event streams and background cleanup.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	authapi "justice/cmd/internal/auth/api"
	"justice/cmd/internal/auth/session"
	"justice/cmd/internal/chat"
	"justice/cmd/internal/metrics"
	"justice/cmd/internal/realtime"
	"justice/cmd/security/password"
	"justice/cmd/security/token"
)

// Settings bundles the configuration of every component the app wires.
type Settings struct {
	App      Config
	Session  session.Config
	Auth     authapi.Config
	Events   realtime.Config
	Password password.Config
}

// DefaultSettings is every package's DefaultConfig.
func DefaultSettings() Settings {
	return Settings{
		App:      DefaultConfig(),
		Session:  session.DefaultConfig(),
		Auth:     authapi.DefaultConfig(),
		Events:   realtime.DefaultConfig(),
		Password: password.DefaultConfig(),
	}
}

// LoadSettings reads every component's configuration from the environment.
func LoadSettings() (Settings, error) {
	var (
		s    Settings
		err  error
		errs []error
	)
	if s.App, err = LoadConfig(); err != nil {
		return Settings{}, err
	}
	if s.Session, err = session.LoadConfigFromEnv(); err != nil {
		errs = append(errs, err)
	}
	if s.Auth, err = authapi.LoadConfigFromEnv(); err != nil {
		errs = append(errs, err)
	}
	if s.Events, err = realtime.LoadConfigFromEnv(); err != nil {
		errs = append(errs, err)
	}
	if s.Password, err = password.FromEnv(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Settings{}, errors.Join(errs...)
	}
	return s, nil
}

// App owns the server, the hub, the stores and the session cleaner.
type App struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics

	stores   *stores
	hub      *realtime.Hub
	sessions *session.Service
	cleaner  *session.Cleaner
	handler  http.Handler
}

// New opens storage and builds the full handler graph. The caller must
// eventually call Run, or Close if Run is never reached.
func New(ctx context.Context, s Settings, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	cfg := s.App

	hasher, err := TokenHasher(cfg)
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewSeededSource(token.WithTokenBytes(s.Session.TokenBytes))
	if err != nil {
		return nil, err
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	hub := realtime.NewHub(log, s.Events.Buffer, m)
	m.Gauge("events", "subscribers", "Live event subscriptions.", func() float64 { return float64(hub.Subscribers()) })
	m.Gauge("events", "channels", "Users with at least one live subscription.", func() float64 { return float64(hub.Channels()) })

	sessions := session.NewService(s.Session, st.sessions, tokens, hasher,
		session.WithLogger(log),
		session.WithMetrics(m),
	)

	account, err := authapi.NewHandler(log, s.Auth, st.users, sessions, s.Password, tokens)
	if err != nil {
		hub.Close()
		_ = st.Close()
		return nil, err
	}
	auth := authapi.NewAuthenticator(log, sessions, s.Auth)

	svc := chat.NewService(st.chats, st.messages, hub, log)

	a := &App{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		stores:   st,
		hub:      hub,
		sessions: sessions,
		cleaner:  session.NewCleaner(sessions, s.Session.CleanupInterval, log, m),
	}

	mux := http.NewServeMux()
	a.registerHTTP(mux, routes{
		auth:    auth,
		account: account,
		chats:   chat.NewHandler(log, svc, s.Auth.MaxBodyBytes),
		sse:     realtime.NewSSEHandler(log, hub, s.Events.SSEHeartbeat),
		ws:      realtime.NewWSGateway(log, hub, s.Events),
	})

	var h http.Handler = mux
	h = WithCORS(h, cfg, log)
	h = WithSecurityHeaders(h)
	h = WithRecover(h, log)
	h = WithMetrics(h, m)
	h = WithRequestLogging(h, log)
	h = WithTrace(h)
	a.handler = h

	return a, nil
}

// Handler is the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run listens on cfg.HTTPAddr and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		_ = a.Close()
		return fmt.Errorf("listen %s: %w", a.cfg.HTTPAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the server and the session cleaner on ln until ctx is cancelled
// or the server fails, then shuts down: HTTP first (live streams are ended by
// closing the hub as shutdown begins), then the cleaner, then storage.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}
	srv.RegisterOnShutdown(a.hub.Close)

	cleanCtx, stopCleaner := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.cleaner.Run(cleanCtx)
	}()

	base := runtimeBaseURL(ln.Addr().String())
	a.log.Info("server.start",
		slog.String("addr", ln.Addr().String()),
		slog.String("url", base),
		slog.String("ws_url", wsBaseURL(base)+"/ws"),
		slog.String("store", a.stores.backend),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", slog.String("reason", "context_done"))
	case runErr = <-errCh:
		a.log.Error("server.fail", slog.Any("err", runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", slog.Any("err", err))
		runErr = errors.Join(runErr, err)
	}

	stopCleaner()
	wg.Wait()

	if err := a.Close(); err != nil {
		a.log.Error("store.close.fail", slog.Any("err", err))
	}
	a.log.Info("server.stopped")
	return runErr
}

// Close releases the hub and storage. It is safe to call more than once.
func (a *App) Close() error {
	a.hub.Close()
	return a.stores.closeOnce()
}
