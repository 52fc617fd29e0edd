package chat

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Transcript is the ordered sequence of turns of the active conversation.
//
// Writers serialize on a mutex and publish a fresh immutable slice;
// readers load the latest published slice without locking, so a reader
// never observes a partially appended turn.
type Transcript struct {
	mu    sync.Mutex
	turns atomic.Pointer[[]Turn]
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	t := &Transcript{}
	t.publish(nil)
	return t
}

func (t *Transcript) publish(turns []Turn) {
	t.turns.Store(&turns)
}

// Snapshot returns the turns visible right now. The returned slice must
// not be modified.
func (t *Transcript) Snapshot() []Turn {
	p := t.turns.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Len returns the number of visible turns.
func (t *Transcript) Len() int {
	return len(t.Snapshot())
}

// Load replaces all turns, ordering them by creation time. Pending turns
// that were never confirmed are dropped.
func (t *Transcript) Load(turns []Turn) {
	next := make([]Turn, 0, len(turns))
	for _, turn := range turns {
		turn.Pending = false
		next = append(next, turn)
	}
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].CreatedAt.Before(next[j].CreatedAt)
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	t.publish(next)
}

// Append adds a turn at the end. Appending a turn whose ID is already
// present is a no-op and reports false.
func (t *Transcript) Append(turn Turn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.Snapshot()
	if indexOf(cur, turn.ID) >= 0 {
		return false
	}
	next := make([]Turn, len(cur), len(cur)+1)
	copy(next, cur)
	t.publish(append(next, turn))
	return true
}

// Reconcile replaces the pending turn identified by tempID with its
// confirmed version, keeping its position. It reports false when no
// turn carries tempID.
func (t *Transcript) Reconcile(tempID string, confirmed Turn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.Snapshot()
	i := indexOf(cur, tempID)
	if i < 0 {
		return false
	}
	next := make([]Turn, 0, len(cur))
	for j, turn := range cur {
		if j == i {
			confirmed.Pending = false
			next = append(next, confirmed)
			continue
		}
		// the confirmed id may already have been appended by a retry
		if confirmed.ID != tempID && turn.ID == confirmed.ID {
			continue
		}
		next = append(next, turn)
	}
	t.publish(next)
	return true
}

// Discard removes the turn identified by id.
func (t *Transcript) Discard(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.Snapshot()
	i := indexOf(cur, id)
	if i < 0 {
		return false
	}
	next := make([]Turn, 0, len(cur)-1)
	next = append(next, cur[:i]...)
	next = append(next, cur[i+1:]...)
	t.publish(next)
	return true
}

// Clear empties the transcript.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publish(nil)
}

func indexOf(turns []Turn, id string) int {
	for i := range turns {
		if turns[i].ID == id {
			return i
		}
	}
	return -1
}
