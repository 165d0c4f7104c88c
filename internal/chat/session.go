package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Options configures a Session.
type Options struct {
	// BaseURL is the backend's HTTP address; the websocket address is
	// derived from it.
	BaseURL string
	// Token is the bearer credential.
	Token string
	// UserID scopes the session to one identity.
	UserID string

	PageLimit        int
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	SendTimeout      time.Duration
	HistoryTimeout   time.Duration

	// OnUnauthorized is called (at most once, from the session loop) when
	// the backend rejects the credential. The owner typically clears stored
	// credentials and closes the session.
	OnUnauthorized func()
}

// Session owns one user's live chat: the streaming transport, the history
// fetcher and the conversation store, scoped to the consuming view.
//
// All store mutations are serialized on a single event-loop goroutine, the Go
// rendition of the original's single-threaded callback model: one mutation
// completes fully before the next event is handled. Construction takes the
// identity and credential; Close guarantees connection teardown and
// reconnect-timer cancellation.
type Session struct {
	log *slog.Logger

	store     *Store
	fetcher   *HistoryFetcher
	transport *Transport

	sendCh      chan string
	loadOlderCh chan struct{}
	fetchDone   chan fetchResult
	notify      chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	wg        sync.WaitGroup
	closeOnce sync.Once

	onUnauthorized func()
}

type fetchResult struct {
	epoch  uint64
	offset int
	page   HistoryPage
	err    error
}

// NewSession constructs and starts a session. The connection opens
// immediately; on open the authoritative offset-0 history fetch is issued.
func NewSession(log *slog.Logger, opts Options) (*Session, error) {
	if opts.UserID == "" {
		return nil, errors.New("session: missing user id")
	}
	if opts.Token == "" {
		return nil, errors.New("session: missing credential")
	}

	wsURL, err := DeriveWSURL(opts.BaseURL, opts.Token)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	log = log.With("user_id", opts.UserID)

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		log:     log,
		store:   NewStore(opts.PageLimit),
		fetcher: NewHistoryFetcher(log, opts.BaseURL, opts.Token, opts.PageLimit, opts.HistoryTimeout),
		transport: NewTransport(log, wsURL, TransportOptions{
			ReconnectDelay:   opts.ReconnectDelay,
			HandshakeTimeout: opts.HandshakeTimeout,
			SendTimeout:      opts.SendTimeout,
		}),
		sendCh:         make(chan string, 16),
		loadOlderCh:    make(chan struct{}, 1),
		fetchDone:      make(chan fetchResult, 1),
		notify:         make(chan struct{}, 1),
		ctx:            ctx,
		cancel:         cancel,
		onUnauthorized: opts.OnUnauthorized,
	}

	connectionState.Set(float64(ConnConnecting))

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.transport.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.loop()
	}()

	return s, nil
}

// Snapshot returns the current conversation state for rendering.
func (s *Session) Snapshot() Snapshot { return s.store.Snapshot() }

// Notify returns a coalesced change signal: it receives at least once after
// any state change since the last receive.
func (s *Session) Notify() <-chan struct{} { return s.notify }

// Send submits a user message: it is appended optimistically and transmitted
// over the transport. While disconnected the intent is dropped; the caller is
// responsible for not offering the affordance in that state.
func (s *Session) Send(text string) {
	select {
	case <-s.ctx.Done():
	case s.sendCh <- text:
	}
}

// LoadOlder requests one more page of history. Duplicate requests while a
// fetch is pending are dropped; the scroll gesture naturally repeats.
func (s *Session) LoadOlder() {
	select {
	case s.loadOlderCh <- struct{}{}:
	default:
	}
}

// Close tears the session down: the reconnect schedule is disabled, the live
// connection is released, and any in-flight history fetch completes and is
// discarded. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.transport.Close()
		s.wg.Wait()
		// All producers have stopped; closing lets observers of Notify
		// unblock and detect teardown.
		close(s.notify)
	})
}

// loop is the session's single-writer event loop. Loop-local state implements
// the per-connection-epoch seed machine: frames received while awaiting the
// seed are buffered and replayed once it resolves, and results tagged with a
// previous epoch are discarded.
func (s *Session) loop() {
	var (
		epoch        uint64
		awaitingSeed bool
		pending      []MessageFrame
		fetchPending bool
	)

	startFetch := func(offset int) {
		fetchPending = true
		resEpoch := epoch
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			page, err := s.fetcher.FetchPage(s.ctx, offset)
			select {
			case <-s.ctx.Done():
				// Completion after teardown is discarded, never applied.
			case s.fetchDone <- fetchResult{epoch: resEpoch, offset: offset, page: page, err: err}:
			}
		}()
	}

	for {
		select {
		case <-s.ctx.Done():
			return

		case ev := <-s.transport.Events():
			switch ev := ev.(type) {
			case OpenedEvent:
				s.log.Info("session.open")
				s.store.SetConnState(ConnOpen)
				connectionState.Set(float64(ConnOpen))

				// New connection epoch: anything still in flight from the
				// previous connection is stale. The offset-0 fetch is the
				// authoritative point at which history is (re)loaded.
				epoch++
				awaitingSeed = true
				pending = nil
				if !fetchPending {
					startFetch(0)
				}

			case ClosedEvent:
				s.log.Info("session.closed", "unauthorized", ev.Unauthorized)
				s.store.SetConnState(ConnBackoff)
				connectionState.Set(float64(ConnBackoff))
				if ev.Unauthorized {
					s.fireUnauthorized()
				}

			case FrameEvent:
				s.handleFrame(ev.Frame, awaitingSeed, &pending)
			}

		case text := <-s.sendCh:
			if s.store.Conn() != ConnOpen {
				s.log.Debug("session.send.drop", "reason", "not connected")
				continue
			}
			s.store.AppendLocal(text, time.Now().UTC())
			if err := s.transport.Send(s.ctx, text); err != nil {
				s.log.Info("session.send.fail", "err", err)
			}

		case <-s.loadOlderCh:
			cursor := s.store.Cursor()
			if fetchPending || awaitingSeed || !cursor.HasMore {
				s.log.Debug("session.load_older.drop",
					"fetch_pending", fetchPending, "awaiting_seed", awaitingSeed, "has_more", cursor.HasMore)
				continue
			}
			startFetch(cursor.Offset)

		case res := <-s.fetchDone:
			fetchPending = false

			if res.epoch != epoch {
				s.log.Debug("session.fetch.stale", "offset", res.offset)
				if awaitingSeed {
					startFetch(0)
				}
				continue
			}

			if res.err != nil {
				// Logged and state left unchanged; the user can re-trigger
				// the gesture. A failed seed still releases the buffered
				// frames so live traffic is not lost.
				s.log.Info("session.fetch.fail", "offset", res.offset, "err", res.err)
				if errors.Is(res.err, ErrUnauthorized) {
					// The archive rejected the credential even though the
					// socket may still be open; the owner clears stored
					// credentials either way.
					s.fireUnauthorized()
				}
				if res.offset == 0 && awaitingSeed {
					awaitingSeed = false
					pending = s.replay(pending)
				}
				continue
			}

			if res.offset == 0 {
				s.store.Seed(res.page.Records, res.page.HasMoreHint)
				awaitingSeed = false
				pending = s.replay(pending)
			} else {
				s.store.Prepend(res.page.Records, res.page.HasMoreHint)
			}
		}

		s.changed()
	}
}

// handleFrame applies one inbound frame. The switch is exhaustive over the
// sealed Frame union.
func (s *Session) handleFrame(frame Frame, awaitingSeed bool, pending *[]MessageFrame) {
	switch f := frame.(type) {
	case HistoryFrame:
		// Advisory only; the REST fetcher is the authority for backfill.
		framesReceived.WithLabelValues("history").Inc()
		s.log.Debug("session.frame.history.ignored", "messages", len(f.Messages))

	case MessageFrame:
		framesReceived.WithLabelValues("message").Inc()
		if awaitingSeed {
			*pending = append(*pending, f)
			return
		}
		s.store.AppendLive(f.Role, f.Content, time.Now().UTC())

	case ErrorFrame:
		framesReceived.WithLabelValues("error").Inc()
		errorFrames.Inc()
		s.store.ClearTyping()
		s.log.Info("session.frame.error", "message", f.Message)
	}
}

// fireUnauthorized invokes the owner's callback at most once per session,
// regardless of which path (websocket close or REST 401) detected the
// rejected credential first. Runs on the event-loop goroutine.
func (s *Session) fireUnauthorized() {
	if s.onUnauthorized == nil {
		return
	}
	cb := s.onUnauthorized
	s.onUnauthorized = nil
	cb()
}

// replay appends buffered live frames after the seed resolves, preserving
// their arrival order. Returns the emptied buffer.
func (s *Session) replay(pending []MessageFrame) []MessageFrame {
	for _, f := range pending {
		s.store.AppendLive(f.Role, f.Content, time.Now().UTC())
	}
	return nil
}

// changed emits a coalesced change notification.
func (s *Session) changed() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
