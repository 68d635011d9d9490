package realtime

import "time"

// Stream limits.
const (
	// Max bytes per websocket frame read. Clients only send hello and ping.
	maxFrameBytes = 16 << 10
)

const (
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection inbound rate limit (frames per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)

const (
	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsDefaultControlQueue = 8
	wsMinControlQueue     = 2

	wsMaxPingFailures = 3
)
