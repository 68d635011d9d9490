package realtime

import (
	"errors"
	"log/slog"
	"sync"

	"justice/cmd/identity"
	"justice/cmd/internal/metrics"
)

// DefaultBuffer is the per-subscription queue size.
const DefaultBuffer = 16

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("realtime: hub closed")

// Hub owns the user id -> channel registry.
//
// Subscribe and the last Subscription.Close both mutate the registry under
// mu, so a user never has two channels. Publish looks the channel up under mu
// and delivers under the channel's read lock.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	buffer  int

	mu       sync.Mutex
	channels map[identity.UserID]*channel
	subs     int
	closed   bool
}

// NewHub constructs a Hub. buffer <= 0 uses DefaultBuffer.
func NewHub(log *slog.Logger, buffer int, m *metrics.Metrics) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		log:      log,
		metrics:  m,
		buffer:   buffer,
		channels: make(map[identity.UserID]*channel),
	}
}

// Subscribe attaches a new, empty subscription for user. After Close the
// returned subscription is already done.
func (h *Hub) Subscribe(user identity.UserID) *Subscription {
	s := newSubscription(h, user, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		s.hub = nil
		s.Close()
		return s
	}

	ch, ok := h.channels[user]
	if !ok {
		ch = newChannel(user)
		h.channels[user] = ch
	}
	ch.mu.Lock()
	ch.subs[s] = struct{}{}
	ch.mu.Unlock()
	h.subs++

	h.log.Debug("hub.subscribe", slog.String("user_id", user.String()), slog.String("subscription_id", s.ID))
	return s
}

// Publish delivers ev to every live subscription of user without blocking.
// A user with no subscriptions drops the event.
func (h *Hub) Publish(user identity.UserID, ev Event) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	ch := h.channels[user]
	h.mu.Unlock()

	if ch == nil {
		h.metrics.EventDropped(metrics.DropNoSubscriber)
		return nil
	}

	delivered, dropped := ch.broadcast(ev)
	for i := 0; i < delivered; i++ {
		h.metrics.EventDelivered()
	}
	for i := 0; i < dropped; i++ {
		h.metrics.EventDropped(metrics.DropLagged)
	}
	if delivered == 0 && dropped == 0 {
		h.metrics.EventDropped(metrics.DropNoSubscriber)
	}
	return nil
}

// Close marks the hub closed and ends every subscription. Idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*Subscription
	for _, ch := range h.channels {
		all = append(all, ch.snapshot()...)
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	h.log.Info("hub.close", slog.Int("subscriptions", len(all)))
}

// Subscribers is the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subs
}

// Channels is the number of users with at least one live subscription.
func (h *Hub) Channels() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

func (h *Hub) detach(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[s.User]
	if !ok {
		return
	}
	ch.mu.Lock()
	if _, ok := ch.subs[s]; ok {
		delete(ch.subs, s)
		h.subs--
	}
	empty := len(ch.subs) == 0
	ch.mu.Unlock()

	if empty {
		delete(h.channels, s.User)
	}
}
