// Package realtime is the in-process event hub and the two stream transports
// that drain it: Server-Sent Events on /events and WebSocket on /ws.
//
// The hub maps a user id to the set of live subscriptions for that user.
// Publishing never blocks: each subscription owns a bounded queue and, when
// it is full, the oldest queued event is discarded and the subscription's lag
// counter advances. Users without a live subscription simply miss the event;
// nothing is persisted or replayed.
package realtime
