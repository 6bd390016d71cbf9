// Package v1 defines the opchat push protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between the server and the operator web client to keep the
// wire protocol authoritative. Event names and payload shapes are wire-stable
// and must not change within a protocol version.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Event constants (wire-stable).
const (
	// EventGetChats carries the full chat list to one subscriber on connect
	// (server -> client).
	EventGetChats = "get_chats"
	// EventNewChat broadcasts the full chat list after a chat is created or
	// refreshed (server -> all clients).
	EventNewChat = "new_chat"

	// EventGetChatMessages requests history for one chat (client -> server)
	// and carries the reply snapshot back (server -> requesting client).
	EventGetChatMessages = "get_chat_messages"

	// EventSendMessage requests delivery of operator text to the bot
	// transport (client -> server).
	EventSendMessage = "send_message"

	// EventMessageFromUser broadcasts the affected chat's message snapshot
	// after a user message arrived (server -> all clients).
	EventMessageFromUser = "message_from_user"
	// EventMessageFromBot broadcasts the affected chat's message snapshot
	// after an operator message was delivered (server -> all clients).
	EventMessageFromBot = "message_from_bot"

	// EventError reports a recoverable failure to one subscriber
	// (server -> client).
	EventError = "error"
)

// Envelope is the canonical wire wrapper: one event name plus its payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Event) == "" {
		return errors.New("missing field: event")
	}

	switch e.Event {
	case EventGetChats,
		EventNewChat,
		EventGetChatMessages,
		EventSendMessage,
		EventMessageFromUser,
		EventMessageFromBot,
		EventError:
		return nil
	default:
		return fmt.Errorf("unknown event: %q", e.Event)
	}
}

// ---- Payloads ----

// FetchMessagesPayload requests the message snapshot of one chat.
type FetchMessagesPayload struct {
	ChatID string `json:"chatId"`
}

// SendMessagePayload requests sending operator text into one chat.
type SendMessagePayload struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

// ErrorPayload is the generic error response payload.
type ErrorPayload struct {
	Message string `json:"message"`
}
