package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandlerBasicLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false)
	log := slog.New(h)

	log.Info("relay.chat.start", "chat_id", "42", "count", 3)

	out := buf.String()
	for _, want := range []string{"lvl=[INFO]", "msg=relay.chat.start", "chat_id=42", "count=3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("color disabled but output has ANSI codes: %q", out)
	}
}

func TestPrettyHandlerQuotesValuesWithSpaces(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false))

	log.Info("msg", "err", "connection refused by peer", "empty", "")

	out := buf.String()
	if !strings.Contains(out, `err="connection refused by peer"`) {
		t.Fatalf("output %q: values with spaces must be quoted", out)
	}
	if !strings.Contains(out, `empty=""`) {
		t.Fatalf("output %q: empty value must render as \"\"", out)
	}
}

func TestPrettyHandlerRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info must be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error must be enabled at warn level")
	}
}

func TestPrettyHandlerGroupsAndAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false))

	log.With("component", "push").Info("connected")
	log.WithGroup("ws").Info("connected", "session_id", "abc")

	out := buf.String()
	if !strings.Contains(out, "component=push") {
		t.Fatalf("output %q missing bound attr", out)
	}
	if !strings.Contains(out, "ws.session_id=abc") {
		t.Fatalf("output %q missing grouped attr", out)
	}
}
