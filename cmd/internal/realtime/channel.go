package realtime

import (
	"sync"

	"justice/cmd/identity"
)

// channel is the set of live subscriptions for one user.
type channel struct {
	user identity.UserID

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func newChannel(user identity.UserID) *channel {
	return &channel{user: user, subs: make(map[*Subscription]struct{})}
}

// broadcast offers ev to every subscriber. It never blocks.
func (c *channel) broadcast(ev Event) (delivered, dropped int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for s := range c.subs {
		ok, lost := s.offer(ev)
		if ok {
			delivered++
		}
		if lost {
			dropped++
		}
	}
	return delivered, dropped
}

func (c *channel) snapshot() []*Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Subscription, 0, len(c.subs))
	for s := range c.subs {
		out = append(out, s)
	}
	return out
}
