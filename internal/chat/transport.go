package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrNotConnected means a send was attempted while the connection was not
// open. The affordance layer is expected to gate sends, so callers usually
// treat this as a no-op.
var ErrNotConnected = errors.New("transport not connected")

// TransportEvent is the closed set of events a Transport emits to its owner.
type TransportEvent interface {
	transportEvent()
}

// OpenedEvent signals that a connection handshake completed.
type OpenedEvent struct{}

// FrameEvent carries one decoded inbound frame.
type FrameEvent struct {
	Frame Frame
}

// ClosedEvent signals that the connection dropped or failed to open.
// A reconnect attempt is already scheduled unless the transport was
// deliberately closed.
type ClosedEvent struct {
	// Unauthorized is set when the peer rejected the credential
	// (policy-violation close). The owner should clear stored credentials
	// instead of retrying forever.
	Unauthorized bool
}

func (OpenedEvent) transportEvent() {}
func (FrameEvent) transportEvent()  {}
func (ClosedEvent) transportEvent() {}

// Transport owns at most one live websocket connection and its lifecycle:
// dial, read, close, and a single scheduled reconnect per drop.
//
// Connection errors never surface to the caller; they fall into the retry
// path and are visible only through ClosedEvents. Parse failures on inbound
// frames are dropped with a log line and never stop the read loop.
type Transport struct {
	log *slog.Logger

	wsURL            string
	reconnectDelay   time.Duration
	handshakeTimeout time.Duration
	sendTimeout      time.Duration

	events chan TransportEvent

	mu   sync.Mutex
	conn *websocket.Conn

	done      chan struct{}
	closeOnce sync.Once
}

// TransportOptions configures a Transport. Zero durations fall back to
// package defaults.
type TransportOptions struct {
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	SendTimeout      time.Duration
}

// NewTransport constructs a transport for the given websocket URL
// (see DeriveWSURL).
func NewTransport(log *slog.Logger, wsURL string, opts TransportOptions) *Transport {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	return &Transport{
		log:              log,
		wsURL:            wsURL,
		reconnectDelay:   opts.ReconnectDelay,
		handshakeTimeout: opts.HandshakeTimeout,
		sendTimeout:      opts.SendTimeout,
		events:           make(chan TransportEvent, 64),
		done:             make(chan struct{}),
	}
}

// Events returns the event stream consumed by the owning session loop.
func (t *Transport) Events() <-chan TransportEvent { return t.events }

// Run drives the connect/read/reconnect loop until ctx is canceled or Close
// is called. It is intended to run on its own goroutine.
func (t *Transport) Run(ctx context.Context) {
	first := true
	for {
		if !first {
			// Exactly one reconnect attempt per drop, after a fixed delay.
			// Teardown disables the schedule.
			select {
			case <-ctx.Done():
				return
			case <-t.done:
				return
			case <-time.After(t.reconnectDelay):
			}
			reconnects.Inc()
		}
		first = false

		dialCtx, cancel := context.WithTimeout(ctx, t.handshakeTimeout)
		conn, _, err := websocket.Dial(dialCtx, t.wsURL, nil)
		cancel()
		if err != nil {
			if ctx.Err() != nil || t.closed() {
				return
			}
			t.log.Info("ws.dial.fail", "err", err)
			t.emit(ctx, ClosedEvent{})
			continue
		}

		conn.SetReadLimit(maxFrameBytes)
		t.setConn(conn)
		t.emit(ctx, OpenedEvent{})

		unauthorized := t.readLoop(ctx, conn)

		t.setConn(nil)
		_ = conn.Close(websocket.StatusNormalClosure, "bye")

		if ctx.Err() != nil || t.closed() {
			return
		}
		t.emit(ctx, ClosedEvent{Unauthorized: unauthorized})
	}
}

// readLoop reads frames until the connection errors. It reports whether the
// peer closed with a policy-violation status (rejected credential).
func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn) bool {
	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusPolicyViolation {
				t.log.Info("ws.close.unauthorized", "status", status)
				return true
			}
			if ctx.Err() == nil && !t.closed() {
				t.log.Info("ws.read.fail", "close_status", status, "err", err)
			}
			return false
		}
		if mt != websocket.MessageText && mt != websocket.MessageBinary {
			continue
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			// Malformed frames are dropped; the session must keep going.
			frameParseFailures.Inc()
			t.log.Info("ws.frame.drop", "err", err)
			continue
		}
		t.emit(ctx, FrameEvent{Frame: frame})
	}
}

// Send transmits the raw text payload of a user message. No acknowledgement
// is awaited; the reply arrives asynchronously as a message or error frame.
func (t *Transport) Send(ctx context.Context, text string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	wctx, cancel := context.WithTimeout(ctx, t.sendTimeout)
	defer cancel()

	if err := conn.Write(wctx, websocket.MessageText, []byte(text)); err != nil {
		return fmt.Errorf("ws send: %w", err)
	}
	messagesSent.Inc()
	return nil
}

// Close tears the transport down deliberately: the reconnect schedule is
// disabled and the live connection, if any, is released. Idempotent.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.done)

		t.mu.Lock()
		conn := t.conn
		t.conn = nil
		t.mu.Unlock()

		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
		}
	})
}

func (t *Transport) setConn(conn *websocket.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
}

func (t *Transport) closed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// emit delivers an event unless the transport is shutting down.
func (t *Transport) emit(ctx context.Context, ev TransportEvent) {
	select {
	case <-ctx.Done():
	case <-t.done:
	case t.events <- ev:
	}
}

// DeriveWSURL builds the streaming endpoint address from the configured base
// address and the bearer credential: http maps to ws, https to wss, and the
// token rides as a query parameter.
func DeriveWSURL(base, token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("ws url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("ws url: unsupported scheme: %q", u.Scheme)
	}

	u.Path = "/ws/chat"
	q := url.Values{}
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
