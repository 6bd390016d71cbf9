// Package push implements the websocket push transport: the subscriber
// registry, the broadcast fanout, and the gateway that bridges websocket
// sessions to the relay.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	pushv1 "opchat/contracts/push/v1"

	"github.com/coder/websocket"
)

const (
	// Max bytes per websocket frame read (hard limit).
	gwMaxFrameBytes = 64 << 10 // 64 KiB

	gwDefaultSendQueueSize = 256
	gwMinSendQueueSize     = 32

	gwDefaultWriteTimeout = 5 * time.Second
	gwDefaultReadIdle     = 2 * time.Minute
	gwCloseGrace          = 1 * time.Second

	gwDefaultHeartbeatInterval = 25 * time.Second
	gwDefaultHeartbeatTimeout  = 5 * time.Second
	gwMaxPingFailures          = 3

	// Per-connection rate limit defaults (frames per window).
	gwDefaultRateEvents = 120
	gwDefaultRateWindow = 10 * time.Second
)

// Events is the inbound call contract the gateway drives on the relay.
type Events interface {
	OnSubscriberConnected(sessionID string)
	OnFetchHistory(sessionID, chatID string)
	OnSendRequest(ctx context.Context, sessionID, chatID, text string)
}

// Options are the gateway transport knobs. Zero values pick safe defaults.
type Options struct {
	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	RateEvents int
	RateWindow time.Duration
}

// Gateway is the websocket entrypoint for push subscribers.
//
// It enforces origin policy, heartbeats, and per-connection rate limits, and
// routes validated envelopes to the relay. All fanout back to subscribers
// goes through the Hub.
type Gateway struct {
	log    *slog.Logger
	hub    *Hub
	events Events

	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks. Accept() authorizes
	// same-host origins by default, but cross-origin requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewGateway constructs a gateway with secure defaults.
func NewGateway(log *slog.Logger, hub *Hub, events Events, opts Options) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if hub == nil {
		hub = NewHub(log)
	}

	g := &Gateway{log: log, hub: hub, events: events}

	g.originRequired = opts.OriginRequired
	g.allowedOrigins = opts.AllowedOrigins
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = nonZeroDuration(opts.WriteTimeout, gwDefaultWriteTimeout)
	g.readIdleTimeout = nonZeroDuration(opts.ReadIdleTimeout, gwDefaultReadIdle)

	g.sendQueueSize = opts.SendQueueSize
	if g.sendQueueSize <= 0 {
		g.sendQueueSize = gwDefaultSendQueueSize
	}
	if g.sendQueueSize < gwMinSendQueueSize {
		g.sendQueueSize = gwMinSendQueueSize
	}

	g.heartbeatEvery = nonZeroDuration(opts.HeartbeatInterval, gwDefaultHeartbeatInterval)
	g.heartbeatTimeout = nonZeroDuration(opts.HeartbeatTimeout, gwDefaultHeartbeatTimeout)

	g.rateEvents = opts.RateEvents
	if g.rateEvents <= 0 {
		g.rateEvents = gwDefaultRateEvents
	}
	g.rateWindow = nonZeroDuration(opts.RateWindow, gwDefaultRateWindow)

	return g
}

// Hub returns the subscriber registry backing this gateway.
func (g *Gateway) Hub() *Hub { return g.hub }

// ServeHTTP adapter so the gateway can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a websocket session and runs the
// subscriber loop until the peer disconnects.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(gwMaxFrameBytes)

	sessionID, err := NewSessionID(time.Now())
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "session id")
		return
	}

	sub := NewSubscriber(sessionID, g.sendQueueSize)
	g.hub.Add(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close sub.Send; registry removal
	// happens before sub.Close so broadcasters never race a teardown.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Remove(sessionID)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := newRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case env := <-sub.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= gwMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	// Synchronize the newly attached subscriber before reading anything:
	// it alone receives the current chat list.
	g.events.OnSubscriberConnected(sessionID)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				// Malformed frames still consume the rate budget, otherwise
				// garbage input bypasses the limiter entirely.
				if !rl.allow(time.Now().UTC()) {
					g.sendError(sessionID, "too many events")
					shutdown(websocket.StatusPolicyViolation, "rate limited")
					break readLoop
				}
				g.sendError(sessionID, "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.allow(now) {
			g.sendError(sessionID, "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.sendError(sessionID, err.Error())
			continue readLoop
		}

		switch env.Event {
		case pushv1.EventGetChatMessages:
			var p pushv1.FetchMessagesPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				g.sendError(sessionID, "invalid payload")
				continue readLoop
			}
			if strings.TrimSpace(p.ChatID) == "" {
				g.sendError(sessionID, "missing chatId")
				continue readLoop
			}
			g.events.OnFetchHistory(sessionID, p.ChatID)

		case pushv1.EventSendMessage:
			var p pushv1.SendMessagePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				g.sendError(sessionID, "invalid payload")
				continue readLoop
			}
			if strings.TrimSpace(p.ChatID) == "" || strings.TrimSpace(p.Text) == "" {
				g.sendError(sessionID, "missing chatId or text")
				continue readLoop
			}
			g.events.OnSendRequest(ctx, sessionID, p.ChatID, p.Text)

		default:
			g.sendError(sessionID, fmt.Sprintf("unsupported event: %s", env.Event))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(gwCloseGrace):
	}
}

// sendError routes a transport-level failure back to the requesting
// subscriber as an error envelope instead of dropping the connection.
func (g *Gateway) sendError(sessionID, msg string) {
	g.hub.EmitToOne(sessionID, pushv1.EventError, pushv1.ErrorPayload{Message: msg})
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (pushv1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return pushv1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return pushv1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env pushv1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return pushv1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env pushv1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors are typically returned by json.Unmarshal, not
	// conn.Read. This fallback exists for robustness when error strings are
	// propagated.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using
	// filepath.Match patterns. Keep this strict: only hosts extracted from
	// the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			seen["*"] = struct{}{}
			continue
		}
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	// Stable in-file sort (avoid importing sort just for this).
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
