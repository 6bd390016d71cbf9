package relay

import "context"

// Outbound is the single-slot port through which the relay reaches the bot
// transport. At most one implementation is bound at a time; the bot adapter
// injects itself via Relay.BindOutbound after both sides are constructed,
// which breaks the construction cycle between the two transport adapters.
type Outbound interface {
	Send(ctx context.Context, chatID, text string) error
}

// Broadcaster abstracts event emission toward connected push subscribers.
//
// Delivery is best-effort and fire-and-forget: no acknowledgement, no retry,
// no queuing beyond the transport's own bounded send queues. A disconnected
// subscriber simply does not receive the payload; that is not an error.
type Broadcaster interface {
	// EmitToAll fans an event out to every connected subscriber.
	EmitToAll(event string, payload any)
	// EmitToOne targets exactly one subscriber by its opaque session id.
	EmitToOne(sessionID, event string, payload any)
}
