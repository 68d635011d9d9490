package chat

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"justice/cmd/identity"
	authapi "justice/cmd/internal/auth/api"
	"justice/cmd/internal/web"
)

type createChatRequest struct {
	Title    string            `json:"title" validate:"required,max=50"`
	UsersIDs []identity.UserID `json:"users_ids" validate:"max=100,dive,gt=0"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

type chatIDResponse struct {
	ChatID ChatID `json:"chat_id"`
}

type messageIDResponse struct {
	MessageID MessageID `json:"message_id"`
}

// Handler serves the chat and message routes.
type Handler struct {
	log     *slog.Logger
	svc     *Service
	maxBody int64
}

func NewHandler(log *slog.Logger, svc *Service, maxBody int64) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{log: log, svc: svc, maxBody: maxBody}
}

// Register mounts the routes behind auth.
func (h *Handler) Register(mux *http.ServeMux, auth *authapi.Authenticator) {
	mux.Handle("GET /chats", auth.RequireFunc(h.handleList))
	mux.Handle("POST /chats", auth.RequireFunc(h.handleCreate))
	mux.Handle("DELETE /chats/{chat_id}", auth.RequireFunc(h.handleRemove))
	mux.Handle("POST /chats/{chat_id}/messages", auth.RequireFunc(h.handleSend))
	mux.Handle("GET /chats/{chat_id}/messages", auth.RequireFunc(h.handleHistory))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	chats, err := h.svc.ListChats(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, "chat.list.fail", err)
		return
	}
	if chats == nil {
		chats = []Chat{}
	}
	web.WriteJSON(w, http.StatusOK, chats)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req createChatRequest
	if err := web.DecodeJSON(w, r, h.maxBody, &req); err != nil {
		web.WriteValidation(w, r, web.DecodeFields(err))
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if fields := web.Validate(req); fields != nil {
		web.WriteValidation(w, r, fields)
		return
	}

	id, err := h.svc.CreateChat(r.Context(), p.UserID, req.Title, req.UsersIDs)
	if err != nil {
		h.fail(w, r, "chat.create.fail", err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, chatIDResponse{ChatID: id})
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	chat, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.RemoveChat(r.Context(), p.UserID, chat); err != nil {
		h.fail(w, r, "chat.remove.fail", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	chat, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := web.DecodeJSON(w, r, h.maxBody, &req); err != nil {
		web.WriteValidation(w, r, web.DecodeFields(err))
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if fields := web.Validate(req); fields != nil {
		web.WriteValidation(w, r, fields)
		return
	}

	msg, err := h.svc.SendMessage(r.Context(), p.UserID, chat, req.Content)
	if err != nil {
		h.fail(w, r, "chat.message.fail", err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, messageIDResponse{MessageID: msg.ID})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	chat, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	fields := web.Fields{}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			fields["limit"] = []string{"Limit must be a number"}
		case n < 1:
			limit = 1
		default:
			limit = n
		}
	}
	var before *MessageID
	if raw := q.Get("cursor"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			fields["cursor"] = []string{"Cursor must be a positive message id"}
		} else {
			id := MessageID(n)
			before = &id
		}
	}
	if len(fields) > 0 {
		web.WriteValidation(w, r, fields)
		return
	}

	page, err := h.svc.ListMessages(r.Context(), p.UserID, chat, limit, before)
	if err != nil {
		h.fail(w, r, "chat.history.fail", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, page)
}

// fail translates a service error into exactly one response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		web.WriteError(w, r, web.KindForbidden)
	case errors.Is(err, ErrAccessCheck):
		web.WriteInternal(w, r, h.log, "chat.access.fail", err)
	case errors.Is(err, ErrNotFound):
		web.WriteError(w, r, web.KindNotFound)
	case errors.Is(err, ErrUnknownMember):
		web.WriteValidation(w, r, web.Fields{"users_ids": {"Unknown user id"}})
	case errors.Is(err, ErrInvalidInput):
		web.WriteValidation(w, r, web.Fields{"body": {"Invalid request"}})
	default:
		web.WriteInternal(w, r, h.log, event, err)
	}
}

func principal(w http.ResponseWriter, r *http.Request) (authapi.Principal, bool) {
	p, ok := authapi.PrincipalFrom(r.Context())
	if !ok {
		web.WriteError(w, r, web.KindUnauthorized)
	}
	return p, ok
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (ChatID, bool) {
	n, err := strconv.ParseInt(r.PathValue("chat_id"), 10, 64)
	if err != nil || n <= 0 {
		web.WriteValidation(w, r, web.Fields{"chat_id": {"Chat id must be a positive integer"}})
		return 0, false
	}
	return ChatID(n), true
}
