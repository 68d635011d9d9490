//go:generate go run go.uber.org/mock/mockgen -source=fanout.go -destination=../mocks/mock_chat_publisher.go -package=mocks

package chat

import (
	"log/slog"

	"github.com/samber/lo"

	"justice/cmd/identity"
	"justice/cmd/internal/realtime"
)

// Publisher delivers an event to one user's live streams. *realtime.Hub implements it.
type Publisher interface {
	Publish(user identity.UserID, ev realtime.Event) error
}

// Fanout publishes a mutation to every member except the actor.
type Fanout struct {
	pub Publisher
	log *slog.Logger
}

func NewFanout(pub Publisher, log *slog.Logger) *Fanout {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Fanout{pub: pub, log: log}
}

// Send publishes ev once to each distinct member other than actor and returns
// how many publishes succeeded. Failures are logged, never returned.
func (f *Fanout) Send(actor identity.UserID, members []identity.UserID, ev realtime.Event) int {
	sent := 0
	for _, m := range lo.Uniq(lo.Without(members, actor)) {
		if err := f.pub.Publish(m, ev); err != nil {
			f.log.Warn("chat.fanout.fail",
				slog.String("user_id", m.String()),
				slog.String("kind", string(ev.Kind)),
				slog.Any("err", err),
			)
			continue
		}
		sent++
	}
	return sent
}
