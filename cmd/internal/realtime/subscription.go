package realtime

import (
	"sync"
	"sync/atomic"

	"justice/cmd/identity"
)

// Subscription is one live stream's view of a user's events.
//
// The queue is never closed; Done signals shutdown instead, so a publisher
// racing with Close can never panic on a closed channel. Close is idempotent.
type Subscription struct {
	ID   string
	User identity.UserID

	queue  chan Event
	sendMu sync.Mutex
	lagged atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	hub       *Hub
}

func newSubscription(h *Hub, user identity.UserID, buffer int) *Subscription {
	return &Subscription{
		ID:    newSubscriptionID(),
		User:  user,
		queue: make(chan Event, buffer),
		done:  make(chan struct{}),
		hub:   h,
	}
}

// Events yields queued events. Select on Done alongside it.
func (s *Subscription) Events() <-chan Event { return s.queue }

// Done is closed by Close or when the hub shuts down.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Lagged is the number of events discarded because the queue was full.
func (s *Subscription) Lagged() uint64 { return s.lagged.Load() }

// Close releases the subscription's slot in the hub.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.hub != nil {
			s.hub.detach(s)
		}
	})
}

// offer enqueues ev without blocking. When the queue is full the oldest event
// is discarded to make room. Reports whether an older event was dropped.
func (s *Subscription) offer(ev Event) (delivered, dropped bool) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case <-s.done:
		return false, false
	default:
	}

	select {
	case s.queue <- ev:
		return true, false
	default:
	}

	select {
	case <-s.queue:
		dropped = true
		s.lagged.Add(1)
	default:
	}

	select {
	case s.queue <- ev:
		return true, dropped
	default:
		s.lagged.Add(1)
		return false, true
	}
}
