package realtime

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// newSubscriptionID keys a subscription inside its channel.
func newSubscriptionID() string {
	return ulid.Make().String()
}

// newEnvelopeID stamps a server-sent WebSocket frame. Ids sort by ts.
func newEnvelopeID(ts time.Time) string {
	return ulid.MustNew(ulid.Timestamp(ts), ulid.DefaultEntropy()).String()
}
