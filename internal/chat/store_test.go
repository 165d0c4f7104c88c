package chat

import (
	"strconv"
	"testing"
	"time"
)

func historyPageOf(t *testing.T, firstID, n int) []Message {
	t.Helper()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	page := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		page = append(page, Message{
			ID:        strconv.Itoa(firstID + i),
			Role:      RoleUser,
			Content:   "m" + strconv.Itoa(firstID+i),
			CreatedAt: base.Add(time.Duration(firstID+i) * time.Minute),
		})
	}
	return page
}

func TestStoreSeedThenPrepend(t *testing.T) {
	t.Parallel()

	s := NewStore(20)

	// Page 0: a full page keeps hasMore true.
	s.Seed(historyPageOf(t, 21, 20), true)

	snap := s.Snapshot()
	if len(snap.Messages) != 20 {
		t.Fatalf("after seed: len=%d want=20", len(snap.Messages))
	}
	if !snap.Cursor.HasMore || snap.Cursor.Offset != 20 {
		t.Fatalf("after seed: cursor=%+v", snap.Cursor)
	}

	// Page 1: a short page flips hasMore and splices onto the head.
	s.Prepend(historyPageOf(t, 14, 7), false)

	snap = s.Snapshot()
	if len(snap.Messages) != 27 {
		t.Fatalf("after prepend: len=%d want=27", len(snap.Messages))
	}
	if snap.Cursor.HasMore {
		t.Fatal("after short page: hasMore still true")
	}
	if snap.Cursor.Offset != 27 {
		t.Fatalf("after prepend: offset=%d want=27", snap.Cursor.Offset)
	}
	if snap.Messages[0].ID != "14" || snap.Messages[6].ID != "20" || snap.Messages[7].ID != "21" {
		t.Fatalf("prepend did not precede existing head: %q %q %q",
			snap.Messages[0].ID, snap.Messages[6].ID, snap.Messages[7].ID)
	}
	if snap.LastChange != ChangePrepend {
		t.Fatalf("last change=%v want=%v", snap.LastChange, ChangePrepend)
	}
}

func TestStoreHasMoreIsMonotonic(t *testing.T) {
	t.Parallel()

	s := NewStore(20)
	s.Seed(historyPageOf(t, 1, 5), false)

	// A later full-looking hint must not resurrect hasMore.
	s.Prepend(historyPageOf(t, 100, 20), true)

	if s.Cursor().HasMore {
		t.Fatal("hasMore reversed false -> true")
	}
}

func TestStorePrependNeverTouchesTail(t *testing.T) {
	t.Parallel()

	s := NewStore(20)
	s.Seed(historyPageOf(t, 50, 3), true)
	s.AppendLocal("hello", time.Now().UTC())
	live := s.AppendLive(RoleAssistant, "hi", time.Now().UTC())

	tailBefore := s.Snapshot().Messages[3:]

	s.Prepend(historyPageOf(t, 40, 10), true)
	s.Prepend(historyPageOf(t, 30, 10), true)

	snap := s.Snapshot()
	tailAfter := snap.Messages[len(snap.Messages)-len(tailBefore):]
	for i := range tailBefore {
		if tailAfter[i].ID != tailBefore[i].ID || tailAfter[i].Content != tailBefore[i].Content {
			t.Fatalf("tail mutated at %d: %+v != %+v", i, tailAfter[i], tailBefore[i])
		}
	}
	if tailAfter[len(tailAfter)-1].ID != live.ID {
		t.Fatal("most recent append not at the tail")
	}
}

func TestStoreOptimisticSendAndReply(t *testing.T) {
	t.Parallel()

	s := NewStore(20)

	msg := s.AppendLocal("hello", time.Now().UTC())
	snap := s.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].Role != RoleUser {
		t.Fatalf("optimistic append missing: %+v", snap.Messages)
	}
	if !snap.Typing {
		t.Fatal("typing indicator not raised after send")
	}
	if msg.ID == "" {
		t.Fatal("optimistic message got no id")
	}

	s.AppendLive(RoleAssistant, "hi", time.Now().UTC())
	snap = s.Snapshot()
	if len(snap.Messages) != 2 || snap.Messages[1].Role != RoleAssistant {
		t.Fatalf("assistant reply missing: %+v", snap.Messages)
	}
	if snap.Typing {
		t.Fatal("typing indicator not cleared by reply")
	}
}

func TestStoreSeedReplacesEverything(t *testing.T) {
	t.Parallel()

	s := NewStore(20)
	s.AppendLocal("about to be discarded", time.Now().UTC())
	s.Seed(historyPageOf(t, 1, 2), false)

	snap := s.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("seed is a full replace: len=%d want=2", len(snap.Messages))
	}
	for _, m := range snap.Messages {
		if m.Content == "about to be discarded" {
			t.Fatal("seed merged instead of replacing")
		}
	}
}

func TestStoreClearTyping(t *testing.T) {
	t.Parallel()

	s := NewStore(20)
	s.AppendLocal("hello", time.Now().UTC())

	before := s.Snapshot()
	s.ClearTyping()
	snap := s.Snapshot()

	if snap.Typing {
		t.Fatal("typing not cleared")
	}
	if len(snap.Messages) != len(before.Messages) {
		t.Fatal("clearing typing changed the message log")
	}
}

func TestLocalMessageIDsAreMonotonic(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	prev := NewLocalMessageID(now)
	for i := 0; i < 100; i++ {
		next := NewLocalMessageID(now)
		if next <= prev {
			t.Fatalf("ids not monotonic: %q then %q", prev, next)
		}
		prev = next
	}
}
