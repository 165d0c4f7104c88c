package chat

import "time"

// Client limits and defaults.
// Keep these aligned with the backend's /chat/history and /ws/chat handlers.
const (
	// History page size. The archive serves newest-first; a short page
	// signals end of history.
	defaultPageLimit = 20

	// Fixed delay before the single reconnect attempt after a drop.
	// Deliberately not exponential: one user, one session.
	defaultReconnectDelay = 3 * time.Second

	// Max bytes per inbound websocket frame.
	maxFrameBytes = 64 << 10 // 64 KiB

	// Timeouts for the individual transport operations.
	defaultHandshakeTimeout = 10 * time.Second
	defaultSendTimeout      = 5 * time.Second

	// Timeout for one history page request.
	defaultHistoryTimeout = 15 * time.Second
)
