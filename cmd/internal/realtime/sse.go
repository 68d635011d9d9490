package realtime

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	authapi "justice/cmd/internal/auth/api"
	"justice/cmd/internal/web"
)

// SSEHandler streams the caller's events as text/event-stream.
// It must sit behind the request authenticator.
type SSEHandler struct {
	log       *slog.Logger
	hub       *Hub
	heartbeat time.Duration
}

func NewSSEHandler(log *slog.Logger, hub *Hub, heartbeat time.Duration) *SSEHandler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if heartbeat <= 0 {
		heartbeat = heartbeatInterval
	}
	return &SSEHandler{log: log, hub: hub, heartbeat: heartbeat}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := authapi.PrincipalFrom(r.Context())
	if !ok {
		web.WriteError(w, r, web.KindUnauthorized)
		return
	}

	rc := http.NewResponseController(w)
	// The server's WriteTimeout would otherwise cut the stream.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.log.Debug("sse.deadline.fail", slog.String("err", err.Error()))
	}

	sub := h.hub.Subscribe(p.UserID)
	defer sub.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	flush := func() error {
		if err := bw.Flush(); err != nil {
			return err
		}
		return rc.Flush()
	}
	if err := flush(); err != nil {
		return
	}

	log := h.log.With(
		slog.String("user_id", p.UserID.String()),
		slog.String("subscription_id", sub.ID),
		slog.String("trace_id", web.TraceID(r.Context())),
	)
	log.Info("sse.open")
	started := time.Now()

	t := time.NewTicker(h.heartbeat)
	defer t.Stop()

	var lastLag uint64
	reason := "client_gone"
loop:
	for {
		select {
		case <-r.Context().Done():
			break loop
		case <-sub.Done():
			reason = "hub_closed"
			break loop
		case <-t.C:
			if _, err := bw.WriteString(": ping\n\n"); err != nil {
				reason = "write_failed"
				break loop
			}
		case ev := <-sub.Events():
			if lag := sub.Lagged(); lag != lastLag {
				log.Warn("sse.lagged", slog.Uint64("missed", lag-lastLag))
				lastLag = lag
			}
			if err := writeSSE(bw, ev); err != nil {
				reason = "write_failed"
				break loop
			}
		}
		if err := flush(); err != nil {
			reason = "write_failed"
			break
		}
	}

	log.Info("sse.close",
		slog.String("reason", reason),
		slog.Uint64("lagged", sub.Lagged()),
		slog.Duration("duration", time.Since(started)),
	)
}

func writeSSE(w *bufio.Writer, ev Event) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, ev.Data)
	return err
}
