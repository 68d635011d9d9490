package authapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"justice/cmd/identity"
	"justice/cmd/internal/web"
)

// Audit events are structured log lines on the handler's logger, grouped
// under "audit" so they can be routed separately.

func (h *Handler) audit(r *http.Request, action string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("action", action),
		slog.String("trace_id", web.TraceID(r.Context())),
		slog.String("ua", strings.TrimSpace(r.UserAgent())),
	}
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		base = append(base, slog.String("ip", ip.String()))
	}
	h.log.LogAttrs(r.Context(), slog.LevelInfo, "auth.audit", slog.Attr{
		Key:   "audit",
		Value: slog.GroupValue(append(base, attrs...)...),
	})
}

func (h *Handler) auditRegistered(r *http.Request, id identity.UserID) {
	h.audit(r, "auth.register", slog.String("user_id", id.String()))
}

func (h *Handler) auditLoginSuccess(r *http.Request, id identity.UserID) {
	h.audit(r, "auth.login.success", slog.String("user_id", id.String()))
}

func (h *Handler) auditLoginFailed(r *http.Request, username, reason string) {
	h.audit(r, "auth.login.failed",
		slog.String("identifier", identity.NormalizeUsername(username)),
		slog.String("reason", reason),
	)
}

func (h *Handler) auditRateLimited(r *http.Request, key string, retryAfter time.Duration) {
	h.audit(r, "auth.rate_limited",
		slog.String("key", key),
		slog.Int64("retry_after_s", int64(retryAfter.Seconds())),
	)
}

func (h *Handler) auditLogout(r *http.Request, id identity.UserID) {
	h.audit(r, "auth.logout", slog.String("user_id", id.String()))
}

func (h *Handler) auditLogoutAll(r *http.Request, id identity.UserID, removed int64) {
	h.audit(r, "auth.logout_all", slog.String("user_id", id.String()), slog.Int64("removed", removed))
}
