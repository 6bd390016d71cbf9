package relay

import "sync"

// Store owns the authoritative in-memory collections of messages and chats.
//
// Concurrency guarantees:
//   - Every logical operation (append, upsert, snapshot read) runs under one
//     coarse lock braced for human conversational throughput.
//   - List operations return copies, never aliases of internal slices, so a
//     caller holds a consistent snapshot regardless of later writes.
//   - Messages are append-only: nothing mutates or deletes a stored Message.
type Store struct {
	mu        sync.Mutex
	messages  []Message
	chats     map[string]ChatInfo
	chatOrder []string
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		messages: make([]Message, 0, 256),
		chats:    make(map[string]ChatInfo),
	}
}

// AppendMessage inserts at the end of the message log.
// Fields must already be populated by the caller; the store never fails.
func (s *Store) AppendMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// ListMessages returns all messages when chatID is empty, else only messages
// of that chat, preserving insertion order. The result is never nil so that
// it serializes as an empty JSON array rather than null.
func (s *Store) ListMessages(chatID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		if chatID == "" || m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// ListMessagesSince returns messages with Timestamp strictly greater than ts,
// optionally filtered by chatID. Ordering matches ListMessages.
func (s *Store) ListMessagesSince(ts int64, chatID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0)
	for _, m := range s.messages {
		if m.Timestamp <= ts {
			continue
		}
		if chatID == "" || m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// UpsertChat inserts or fully replaces the record keyed by ChatID.
// Repeated contact is idempotent; the previous record's optional fields do
// not survive a replace.
func (s *Store) UpsertChat(c ChatInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[c.ChatID]; !ok {
		s.chatOrder = append(s.chatOrder, c.ChatID)
	}
	s.chats[c.ChatID] = c
}

// ListChats returns a snapshot of all chats in first-contact order.
func (s *Store) ListChats() []ChatInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ChatInfo, 0, len(s.chatOrder))
	for _, id := range s.chatOrder {
		out = append(out, s.chats[id])
	}
	return out
}

// GetChat returns the chat record and whether it exists.
// Absence is a normal outcome, not an error.
func (s *Store) GetChat(chatID string) (ChatInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	return c, ok
}
