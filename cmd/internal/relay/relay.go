// Package relay implements the dispatch engine coupling the bot transport,
// the push transport, and the in-memory store.
//
// The relay owns no transport lifecycle. Both adapters call into it with
// already-parsed events; it updates the store and fans snapshots out through
// the broadcast port.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"opchat/cmd/internal/metrics"
	pushv1 "opchat/contracts/push/v1"
)

// Relay dispatches inbound events from either transport, updates the Store,
// and triggers fan-out via the Broadcaster.
type Relay struct {
	log   *slog.Logger
	store *Store
	bc    Broadcaster

	// mu serializes each mutating flow's write+snapshot pair so that no other
	// write interleaves between an append/upsert and the snapshot read that
	// feeds its broadcast.
	mu sync.Mutex

	outMu    sync.RWMutex
	outbound Outbound
}

// New constructs a Relay with an unbound outbound port.
func New(log *slog.Logger, store *Store, bc Broadcaster) *Relay {
	return &Relay{
		log:   log,
		store: store,
		bc:    bc,
	}
}

// BindOutbound binds the outbound port, replacing any previous binding.
func (r *Relay) BindOutbound(o Outbound) {
	r.outMu.Lock()
	r.outbound = o
	r.outMu.Unlock()
}

func (r *Relay) outboundPort() Outbound {
	r.outMu.RLock()
	defer r.outMu.RUnlock()
	return r.outbound
}

// OnStart handles a bot-origin start event: a user begins or resumes a
// conversation. The chat record is upserted and the full chat list is
// re-broadcast so every subscriber holds a consistent snapshot.
func (r *Relay) OnStart(chatID, username, firstName, lastName string) {
	r.log.Info("relay.chat.start", "chat_id", chatID)

	r.mu.Lock()
	r.store.UpsertChat(ChatInfo{
		ChatID:    chatID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
	})
	chats := r.store.ListChats()
	r.mu.Unlock()

	r.bc.EmitToAll(pushv1.EventNewChat, chats)
}

// OnTextMessage handles a bot-origin text message. The chat identity is
// refreshed implicitly even without a prior start event, the message is
// appended, and the chat's full message snapshot is broadcast.
func (r *Relay) OnTextMessage(chatID, text, username, firstName string) {
	r.log.Info("relay.message.user", "chat_id", chatID, "text_len", len(text))

	now := time.Now()
	msg := Message{
		ID:        NewMessageID(now),
		ChatID:    chatID,
		Text:      text,
		From:      OriginUser,
		Username:  username,
		FirstName: firstName,
		Timestamp: now.UnixMilli(),
	}

	r.mu.Lock()
	r.store.UpsertChat(ChatInfo{
		ChatID:    chatID,
		Username:  username,
		FirstName: firstName,
	})
	r.store.AppendMessage(msg)
	msgs := r.store.ListMessages(chatID)
	r.mu.Unlock()

	metrics.MessagesRelayed.WithLabelValues(string(OriginUser)).Inc()
	r.bc.EmitToAll(pushv1.EventMessageFromUser, msgs)
}

// OnSubscriberConnected synchronizes a newly attached subscriber: it alone
// receives the full current chat list, no polling required.
func (r *Relay) OnSubscriberConnected(sessionID string) {
	r.log.Info("relay.subscriber.connected", "session_id", sessionID)
	r.bc.EmitToOne(sessionID, pushv1.EventGetChats, r.store.ListChats())
}

// OnFetchHistory replies to the single requesting subscriber with the chat's
// message snapshot. An unknown chat yields an empty list, not an error.
func (r *Relay) OnFetchHistory(sessionID, chatID string) {
	r.log.Debug("relay.history.fetch", "session_id", sessionID, "chat_id", chatID)
	r.bc.EmitToOne(sessionID, pushv1.EventGetChatMessages, r.store.ListMessages(chatID))
}

// OnSendRequest handles outbound operator text. The outbound delivery happens
// before any store mutation: a message that could not be delivered to the bot
// transport must never appear in the store or be echoed to subscribers.
func (r *Relay) OnSendRequest(ctx context.Context, sessionID, chatID, text string) {
	out := r.outboundPort()
	if out == nil {
		r.log.Error("relay.send.unbound", "session_id", sessionID, "chat_id", chatID)
		r.bc.EmitToOne(sessionID, pushv1.EventError, pushv1.ErrorPayload{Message: "Bot not initialized"})
		return
	}

	// Outbound delivery may block on the external transport. No relay or
	// store lock is held across this call.
	if err := out.Send(ctx, chatID, text); err != nil {
		metrics.OutboundSendFailures.Inc()
		r.log.Error("relay.send.fail", "session_id", sessionID, "chat_id", chatID, "err", err)
		r.bc.EmitToOne(sessionID, pushv1.EventError, pushv1.ErrorPayload{Message: "Failed to send message to Telegram"})
		return
	}

	now := time.Now()
	msg := Message{
		ID:        NewMessageID(now),
		ChatID:    chatID,
		Text:      text,
		From:      OriginBot,
		Timestamp: now.UnixMilli(),
	}

	r.mu.Lock()
	r.store.AppendMessage(msg)
	msgs := r.store.ListMessages(chatID)
	r.mu.Unlock()

	metrics.MessagesRelayed.WithLabelValues(string(OriginBot)).Inc()
	r.bc.EmitToAll(pushv1.EventMessageFromBot, msgs)
}
