// Package main provides a CI-friendly WebSocket smoke test for the opchat
// push transport.
//
// It validates:
//   - handshake against the origin policy
//   - get_chats sync on connect
//   - get_chat_messages request/reply
//   - optionally an operator send: message_from_bot fanout against a live
//     bot transport, or the error envelope when -expect-error is set
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	pushv1 "opchat/contracts/push/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

func main() {
	var (
		wsURL       = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin      = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		chatID      = flag.String("chat", "42", "Chat id to fetch history for")
		text        = flag.String("text", "", "Optional operator text to send into -chat")
		expectError = flag.Bool("expect-error", false, "Expect the send to fail with an error envelope")
		timeout     = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *wsURL, &websocket.DialOptions{
		HTTPHeader: map[string][]string{"Origin": {*origin}},
	})
	if err != nil {
		fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
	conn.SetReadLimit(maxReadBytes)

	// Step 1: the server pushes the chat list unprompted on connect.
	env := mustRead(ctx, conn, *timeout)
	if env.Event != pushv1.EventGetChats {
		fatalf("on connect: got %q want %q", env.Event, pushv1.EventGetChats)
	}
	fmt.Printf("ok get_chats payload=%s\n", env.Payload)

	// Step 2: explicit history fetch is answered to this client only.
	mustWrite(ctx, conn, *timeout, pushv1.EventGetChatMessages, pushv1.FetchMessagesPayload{ChatID: *chatID})
	env = mustRead(ctx, conn, *timeout)
	if env.Event != pushv1.EventGetChatMessages {
		fatalf("history fetch: got %q want %q", env.Event, pushv1.EventGetChatMessages)
	}
	fmt.Printf("ok get_chat_messages payload=%s\n", env.Payload)

	// Step 3 (optional): request an outbound send.
	if *text != "" {
		mustWrite(ctx, conn, *timeout, pushv1.EventSendMessage, pushv1.SendMessagePayload{ChatID: *chatID, Text: *text})
		env = mustRead(ctx, conn, *timeout)

		switch {
		case *expectError && env.Event == pushv1.EventError:
			fmt.Printf("ok error payload=%s\n", env.Payload)
		case !*expectError && env.Event == pushv1.EventMessageFromBot:
			fmt.Printf("ok message_from_bot payload=%s\n", env.Payload)
		default:
			fatalf("send: got %q (expect-error=%v)", env.Event, *expectError)
		}
	}

	fmt.Println("smoke passed")
}

func mustRead(parent context.Context, conn *websocket.Conn, timeout time.Duration) pushv1.Envelope {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		fatalf("read: %v", err)
	}
	var env pushv1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		fatalf("decode: %v", err)
	}
	return env
}

func mustWrite(parent context.Context, conn *websocket.Conn, timeout time.Duration, event string, payload any) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	raw, err := json.Marshal(payload)
	if err != nil {
		fatalf("encode payload: %v", err)
	}
	b, err := json.Marshal(pushv1.Envelope{Event: event, Payload: raw})
	if err != nil {
		fatalf("encode envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ws-smoke: "+format+"\n", args...)
	os.Exit(1)
}
