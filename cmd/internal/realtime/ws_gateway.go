package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	authapi "justice/cmd/internal/auth/api"
	"justice/cmd/internal/web"
	v1 "justice/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

// WSGateway streams the caller's events over a WebSocket.
//
// It enforces the origin policy and subprotocol, answers hello and ping
// frames, keeps the connection alive with pings, and rate limits inbound
// frames. Hub events are forwarded as "chat" and "message" envelopes.
type WSGateway struct {
	log *slog.Logger
	hub *Hub
	cfg Config

	// websocket.Accept authorizes same-host origins by itself; cross-origin
	// requests need host patterns derived from the allowlist.
	originPatterns []string
}

func NewWSGateway(log *slog.Logger, hub *Hub, cfg Config) *WSGateway {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &WSGateway{
		log:            log,
		hub:            hub,
		cfg:            cfg,
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins),
	}
}

func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and runs the stream until either side leaves.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		web.WriteError(w, r, web.KindForbidden)
		return
	}

	p, ok := authapi.PrincipalFrom(r.Context())
	if !ok {
		web.WriteError(w, r, web.KindUnauthorized)
		return
	}

	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err, "trace_id", web.TraceID(r.Context()))
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sub := g.hub.Subscribe(p.UserID)
	defer sub.Close()

	log := g.log.With("user_id", p.UserID.String(), "subscription_id", sub.ID)
	log.Info("ws.open")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	control := make(chan v1.Envelope, g.cfg.ControlQueue)

	var closeOnce sync.Once
	// shutdown is idempotent. control is never closed.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			log.Info("ws.close", "code", code.String(), "reason", reason, "lagged", sub.Lagged())
			sub.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			var env v1.Envelope
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				shutdown(websocket.StatusGoingAway, "server shutting down")
				return
			case env = <-control:
			case ev := <-sub.Events():
				env = newEnvelope(string(ev.Kind), ev.Data, time.Now().UTC())
			}
			if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
				log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
				shutdown(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}()

	// lastSeen is refreshed by every inbound frame and every answered ping.
	// A listen-only client stays open as long as it answers pings.
	var lastSeen atomic.Int64
	touch := func() { lastSeen.Store(time.Now().UnixNano()) }
	touch()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err == nil {
					failures = 0
					touch()
					continue
				}
				failures++
				log.Info("ws.ping.fail", "failures", failures, "err", err)
				if failures >= wsMaxPingFailures {
					shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
				if idle := time.Since(time.Unix(0, lastSeen.Load())); idle > g.cfg.ReadIdleTimeout {
					shutdown(websocket.StatusGoingAway, "idle")
					return
				}
			}
		}
	}()

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		env, err := readEnvelope(ctx, conn)
		if err == nil || errors.Is(err, errBadFrame) {
			touch()
		}

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				trySendError(ctx, control, "bad_json", "invalid JSON")
				continue readLoop
			default:
				log.Info("ws.read.fail", "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			trySendError(ctx, control, "rate_limited", "too many frames")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			trySendError(ctx, control, "bad_envelope", err.Error())
			continue readLoop
		}
		if !v1.ClientSendable(env.Type) {
			trySendError(ctx, control, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
			continue readLoop
		}

		switch env.Type {
		case v1.TypeHello:
			ack, _ := json.Marshal(v1.HelloAckPayload{SubscriptionID: sub.ID, UserID: int64(p.UserID)})
			if !enqueue(ctx, control, newEnvelope(v1.TypeHelloAck, ack, now)) {
				shutdown(websocket.StatusPolicyViolation, "backpressure")
				break readLoop
			}
		case v1.TypePing:
			pong := newEnvelope(v1.TypePong, nil, now)
			pong.ID = env.ID
			_ = enqueue(ctx, control, pong)
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

func trySendError(ctx context.Context, control chan<- v1.Envelope, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	_ = enqueue(ctx, control, newEnvelope(v1.TypeError, p, time.Now().UTC()))
}

// enqueue never blocks; a full control queue drops the frame.
func enqueue(ctx context.Context, control chan<- v1.Envelope, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case control <- env:
		return true
	default:
		return false
	}
}

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      newEnvelopeID(ts),
		TS:      ts,
		Payload: payload,
	}
}

var errBadFrame = errors.New("realtime: bad frame")

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	switch {
	case errors.Is(err, errBadFrame):
		return readErrBadJSON
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	}
	return readErrUnknown
}

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	host := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*", a == origin:
			return nil
		case host != "" && host == originHostOnly(a):
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

// originHostOnly lowercases the host of a URL or host[:port] string.
func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		out = append(out, h)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
