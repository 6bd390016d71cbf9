package push

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	pushv1 "opchat/contracts/push/v1"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func recvOne(t *testing.T, s *Subscriber) pushv1.Envelope {
	t.Helper()
	select {
	case env := <-s.Send:
		return env
	default:
		t.Fatalf("subscriber %s: no envelope queued", s.SessionID)
		return pushv1.Envelope{}
	}
}

func TestHubEmitToAllReachesEverySubscriber(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	a := NewSubscriber("a", 4)
	b := NewSubscriber("b", 4)
	h.Add(a)
	h.Add(b)

	h.EmitToAll("new_chat", []string{"42"})

	for _, s := range []*Subscriber{a, b} {
		env := recvOne(t, s)
		if env.Event != "new_chat" {
			t.Fatalf("event=%q want new_chat", env.Event)
		}
		var got []string
		if err := json.Unmarshal(env.Payload, &got); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if len(got) != 1 || got[0] != "42" {
			t.Fatalf("payload=%v", got)
		}
	}
}

func TestHubEmitToOneTargetsSingleSubscriber(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	a := NewSubscriber("a", 4)
	b := NewSubscriber("b", 4)
	h.Add(a)
	h.Add(b)

	h.EmitToOne("a", "get_chats", nil)

	if got := len(a.Send); got != 1 {
		t.Fatalf("a queued=%d want 1", got)
	}
	if got := len(b.Send); got != 0 {
		t.Fatalf("b queued=%d want 0", got)
	}
}

func TestHubEmitToOneUnknownSessionIsNoop(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	h.EmitToOne("ghost", "get_chats", nil) // must not panic
}

func TestHubDropsUnderBackpressure(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	s := NewSubscriber("a", 32)
	h.Add(s)

	for i := 0; i < cap(s.Send)+8; i++ {
		h.EmitToAll("message_from_user", i)
	}

	if got := len(s.Send); got != cap(s.Send) {
		t.Fatalf("queued=%d want full queue %d (overflow dropped, not blocked)", got, cap(s.Send))
	}
}

func TestHubRemoveStopsDelivery(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	s := NewSubscriber("a", 4)
	h.Add(s)
	h.Remove("a")

	select {
	case <-s.Done():
	default:
		t.Fatal("Remove must signal subscriber shutdown")
	}

	h.EmitToAll("new_chat", nil)
	if got := len(s.Send); got != 0 {
		t.Fatalf("removed subscriber received %d envelopes", got)
	}

	if h.Len() != 0 {
		t.Fatalf("Len()=%d want 0", h.Len())
	}
}

func TestSubscriberCloseIdempotent(t *testing.T) {
	t.Parallel()

	s := NewSubscriber("a", 4)
	s.Close()
	s.Close() // must not panic
}
