package chat

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	localIDMu      sync.Mutex
	localIDEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewLocalMessageID returns a ULID used for messages created on this client
// (optimistic sends and live frames, which carry no server id).
//
// ULIDs are strictly monotonic within the process, so append order is
// preserved even for same-millisecond messages, and their 26-char alphabet
// cannot collide with the backend's integer message ids.
func NewLocalMessageID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	localIDMu.Lock()
	defer localIDMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), localIDEntropy)
	if err != nil {
		// Entropy exhaustion within a single millisecond is the only
		// realistic failure; fall back to a fresh timestamp.
		id = ulid.MustNew(ulid.Timestamp(now.Add(time.Millisecond)), localIDEntropy)
	}
	return id.String()
}
