package push

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestEnforceOrigin(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		required bool
		allowed  []string
		origin   string
		wantErr  bool
	}{
		{name: "missing origin rejected when required", required: true, allowed: []string{"http://localhost"}, origin: "", wantErr: true},
		{name: "missing origin ok when optional", required: false, allowed: []string{"http://localhost"}, origin: "", wantErr: false},
		{name: "exact match", required: true, allowed: []string{"http://localhost:3000"}, origin: "http://localhost:3000", wantErr: false},
		{name: "host match ignores port", required: true, allowed: []string{"http://localhost"}, origin: "http://localhost:5173", wantErr: false},
		{name: "unlisted origin rejected", required: true, allowed: []string{"http://localhost"}, origin: "http://evil.example", wantErr: true},
		{name: "wildcard honored", required: true, allowed: []string{"*"}, origin: "http://anywhere.example", wantErr: false},
		{name: "empty allowlist rejects", required: true, allowed: nil, origin: "http://localhost", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g := NewGateway(nil, newTestHub(), nil, Options{
				OriginRequired: tc.required,
				AllowedOrigins: tc.allowed,
			})

			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}

			err := g.enforceOrigin(r)
			if tc.wantErr && err == nil {
				t.Fatal("want error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("want nil, got %v", err)
			}
		})
	}
}

func TestOriginHostOnly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://localhost:3000", want: "localhost"},
		{in: "https://Chat.Example.com", want: "chat.example.com"},
		{in: "localhost:8080", want: "localhost"},
		{in: "localhost", want: "localhost"},
		{in: "", want: ""},
	}

	for _, tc := range cases {
		if got := originHostOnly(tc.in); got != tc.want {
			t.Fatalf("originHostOnly(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatternsFromAllowedOrigins([]string{
		"http://localhost:3000",
		"http://localhost",
		"https://ops.example.com",
		"*",
		"",
	})
	want := []string{"*", "localhost", "ops.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("patterns=%v want=%v", got, want)
	}
}

func TestRateLimiterAllowsWithinWindow(t *testing.T) {
	t.Parallel()

	now := time.Now()
	rl := newRateLimiter(3, time.Second)

	for i := 0; i < 3; i++ {
		if !rl.allow(now) {
			t.Fatalf("event %d must be allowed", i)
		}
	}
	if rl.allow(now) {
		t.Fatal("4th event inside the window must be rejected")
	}

	// The window slides: old events expire.
	if !rl.allow(now.Add(2 * time.Second)) {
		t.Fatal("event after the window must be allowed again")
	}
}

type nopEvents struct{}

func (nopEvents) OnSubscriberConnected(string)                     {}
func (nopEvents) OnFetchHistory(string, string)                    {}
func (nopEvents) OnSendRequest(_ context.Context, _, _, _ string) {}

func TestHandleWSRateLimitsMalformedFrames(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := NewGateway(log, newTestHub(), nopEvents{}, Options{
		RateEvents: 1,
		RateWindow: time.Minute,
	})
	srv := httptest.NewServer(g)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// The first malformed frame consumes the single slot; the second must
	// trip the limiter and close the session with a policy violation.
	for i := 0; i < 2; i++ {
		if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
				t.Fatalf("close status=%v want=%v (err=%v)", got, websocket.StatusPolicyViolation, err)
			}
			return
		}
	}
}

func TestNewSessionID(t *testing.T) {
	t.Parallel()

	a, err := NewSessionID(time.Now())
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	b, err := NewSessionID(time.Now())
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("session ids must be 26-char ULIDs, got %q %q", a, b)
	}
	if a == b {
		t.Fatal("session ids must be unique")
	}
}
