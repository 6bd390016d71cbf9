package relay

// Origin discriminates which side of the bridge produced a message.
type Origin string

const (
	// OriginUser marks messages that arrived from the bot transport.
	OriginUser Origin = "user"
	// OriginBot marks messages the operator sent through the relay.
	OriginBot Origin = "bot"
)

// Message is one immutable entry in the relay log.
//
// JSON tags are wire-stable: subscribers consume these structs verbatim in
// push payloads, so field names must not change.
type Message struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
	Text      string `json:"text"`
	From      Origin `json:"from"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	// Timestamp is milliseconds since epoch. Used for ordering and
	// incremental filtering only, never for cross-process sync.
	Timestamp int64 `json:"timestamp"`
}

// ChatInfo is the last-known identity of one bot-transport conversation.
// Upserts replace the whole record; there is no field-level merge.
type ChatInfo struct {
	ChatID    string `json:"chatId"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}
