package chat

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// BookmarkStore is the subset of Store the bookmark index needs.
type BookmarkStore interface {
	AddBookmark(ctx context.Context, userID, turnID string) error
	RemoveBookmark(ctx context.Context, userID, turnID string) error
}

// BookmarkIndex is the set of turn ids the user has bookmarked. Toggles
// are applied locally first and rolled back if the store rejects them.
type BookmarkIndex struct {
	store  BookmarkStore
	userID string

	mu       sync.RWMutex
	marked   map[string]struct{}
	toggling map[string]struct{}
}

// NewBookmarkIndex returns an empty index for userID.
func NewBookmarkIndex(store BookmarkStore, userID string) *BookmarkIndex {
	return &BookmarkIndex{
		store:    store,
		userID:   userID,
		marked:   map[string]struct{}{},
		toggling: map[string]struct{}{},
	}
}

// Load replaces the bookmarked set.
func (b *BookmarkIndex) Load(turnIDs []string) {
	marked := make(map[string]struct{}, len(turnIDs))
	for _, id := range turnIDs {
		marked[id] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.marked = marked
}

// IsBookmarked reports whether turnID is bookmarked.
func (b *BookmarkIndex) IsBookmarked(turnID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.marked[turnID]
	return ok
}

// IDs returns the bookmarked turn ids in no particular order.
func (b *BookmarkIndex) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.marked))
	for id := range b.marked {
		ids = append(ids, id)
	}
	return ids
}

// Toggle flips the bookmark on turnID and returns the new state.
func (b *BookmarkIndex) Toggle(ctx context.Context, turnID string) (bool, error) {
	b.mu.Lock()
	if _, busy := b.toggling[turnID]; busy {
		b.mu.Unlock()
		return b.IsBookmarked(turnID), &ConcurrentToggleError{TurnID: turnID}
	}
	_, was := b.marked[turnID]
	b.set(turnID, !was)
	b.toggling[turnID] = struct{}{}
	b.mu.Unlock()

	var err error
	if was {
		err = b.store.RemoveBookmark(ctx, b.userID, turnID)
	} else {
		err = b.store.AddBookmark(ctx, b.userID, turnID)
		if errors.Is(err, ErrDuplicateBookmark) {
			err = nil
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.toggling, turnID)
	if err != nil {
		b.set(turnID, was)
		log.Warn().Err(err).Str("turn_id", turnID).Bool("add", !was).Msg("chat: bookmark sync failed, rolled back")
		return was, &BookmarkSyncError{TurnID: turnID, Added: !was, Err: err}
	}
	return !was, nil
}

func (b *BookmarkIndex) set(turnID string, on bool) {
	if on {
		b.marked[turnID] = struct{}{}
	} else {
		delete(b.marked, turnID)
	}
}
