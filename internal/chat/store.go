package chat

import (
	"sync"
	"time"
)

// ConnState is the transport connection indicator exposed to the rendering
// layer. It is written only by the session's event loop.
type ConnState int

// Connection states.
const (
	ConnConnecting ConnState = iota
	ConnOpen
	ConnBackoff
)

// String returns the human-readable state name.
func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	case ConnBackoff:
		return "closed-pending-retry"
	default:
		return "unknown"
	}
}

// Message is one chat turn. Content is immutable once created.
type Message struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Cursor tracks backward pagination through the archive.
// HasMore is monotonic: once false it never becomes true again.
type Cursor struct {
	Offset  int
	Limit   int
	HasMore bool
}

// ChangeKind describes the last mutation applied to the store, so the
// rendering layer can distinguish a prepend (which needs a scroll-position
// fix-up) from a tail append.
type ChangeKind int

// Change kinds.
const (
	ChangeNone ChangeKind = iota
	ChangeSeed
	ChangePrepend
	ChangeAppend
	ChangeIndicator
)

// Snapshot is a read-only copy of the store handed to the rendering layer.
type Snapshot struct {
	Messages   []Message
	Cursor     Cursor
	Typing     bool
	Conn       ConnState
	Rev        uint64
	LastChange ChangeKind
}

// Store is the single source of truth for the ordered message log and the
// session indicators.
//
// Ordering invariants:
//   - The sequence is append-only at the tail and prepend-only at the head.
//   - Tail order equals arrival order; no reordering by timestamp.
//   - Seed is a full replace, only ever applied for the offset-0 page.
type Store struct {
	mu sync.Mutex

	msgs   []Message
	cursor Cursor
	typing bool
	conn   ConnState

	rev  uint64
	last ChangeKind
}

// NewStore constructs a store with the given history page size.
func NewStore(pageLimit int) *Store {
	if pageLimit <= 0 {
		pageLimit = defaultPageLimit
	}
	return &Store{
		cursor: Cursor{Limit: pageLimit, HasMore: true},
		conn:   ConnConnecting,
	}
}

// Seed replaces the entire sequence with the offset-0 page (oldest-first).
// Any prior optimistic or live state is considered stale relative to the
// authoritative reconnect snapshot.
func (s *Store) Seed(page []Message, hasMoreHint bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs = append(s.msgs[:0:0], page...)
	s.cursor.Offset = len(page)
	s.cursor.HasMore = s.cursor.HasMore && hasMoreHint
	s.bump(ChangeSeed)
}

// Prepend splices an older page (oldest-first) onto the head. The existing
// tail is untouched.
func (s *Store) Prepend(page []Message, hasMoreHint bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(page) > 0 {
		merged := make([]Message, 0, len(page)+len(s.msgs))
		merged = append(merged, page...)
		merged = append(merged, s.msgs...)
		s.msgs = merged
		s.cursor.Offset += len(page)
	}
	s.cursor.HasMore = s.cursor.HasMore && hasMoreHint
	s.bump(ChangePrepend)
}

// AppendLive adds a server-pushed turn to the tail and clears the typing
// indicator (the reply, or a failure notice standing in for it, has arrived).
func (s *Store) AppendLive(role Role, content string, now time.Time) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := Message{
		ID:        NewLocalMessageID(now),
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	s.msgs = append(s.msgs, msg)
	s.typing = false
	s.bump(ChangeAppend)
	return msg
}

// AppendLocal adds an optimistic user-sent turn to the tail and raises the
// typing indicator while the reply is pending. The local id is never
// reconciled against a server id; the protocol does not echo user turns back.
func (s *Store) AppendLocal(text string, now time.Time) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := Message{
		ID:        NewLocalMessageID(now),
		Role:      RoleUser,
		Content:   text,
		CreatedAt: now,
	}
	s.msgs = append(s.msgs, msg)
	s.typing = true
	s.bump(ChangeAppend)
	return msg
}

// ClearTyping lowers the typing indicator (error frame path).
func (s *Store) ClearTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.typing {
		s.typing = false
		s.bump(ChangeIndicator)
	}
}

// SetConnState records the connection indicator.
func (s *Store) SetConnState(state ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != state {
		s.conn = state
		s.bump(ChangeIndicator)
	}
}

// Conn returns the current connection indicator.
func (s *Store) Conn() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Cursor returns the current pagination cursor.
func (s *Store) Cursor() Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Len returns the number of materialized messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// Snapshot returns a read-only copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Messages:   append([]Message(nil), s.msgs...),
		Cursor:     s.cursor,
		Typing:     s.typing,
		Conn:       s.conn,
		Rev:        s.rev,
		LastChange: s.last,
	}
}

// bump must be called with s.mu held.
func (s *Store) bump(kind ChangeKind) {
	s.rev++
	s.last = kind
}
