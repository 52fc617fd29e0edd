package chat

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memoryStore is an in-memory Store for engine tests.
type memoryStore struct {
	mu        sync.Mutex
	seq       int
	turns     map[string][]Turn
	titles    map[string]string
	touched   map[string]int
	bookmarks map[string]map[string]bool

	failCreate   error
	failAdd      error
	failRemove   error
	failTitle    error
	bookmarkGate chan struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		turns:     map[string][]Turn{},
		titles:    map[string]string{},
		touched:   map[string]int{},
		bookmarks: map[string]map[string]bool{},
	}
}

func (s *memoryStore) CreateTurn(ctx context.Context, userID, conversationID string, role Role, content string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return Turn{}, s.failCreate
	}
	s.seq++
	turn := Turn{
		ID:             fmt.Sprintf("msg-%d", s.seq),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Unix(int64(s.seq), 0),
	}
	s.turns[conversationID] = append(s.turns[conversationID], turn)
	return turn, nil
}

func (s *memoryStore) ListTurns(ctx context.Context, userID, conversationID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns[conversationID]...), nil
}

func (s *memoryStore) DeleteAllTurns(ctx context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, conversationID)
	return nil
}

func (s *memoryStore) UpsertConversationTitle(ctx context.Context, userID, conversationID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTitle != nil {
		return s.failTitle
	}
	s.titles[conversationID] = title
	return nil
}

func (s *memoryStore) TouchConversation(ctx context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[conversationID]++
	return nil
}

func (s *memoryStore) AddBookmark(ctx context.Context, userID, turnID string) error {
	if s.bookmarkGate != nil {
		<-s.bookmarkGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdd != nil {
		return s.failAdd
	}
	if s.bookmarks[userID] == nil {
		s.bookmarks[userID] = map[string]bool{}
	}
	if s.bookmarks[userID][turnID] {
		return ErrDuplicateBookmark
	}
	s.bookmarks[userID][turnID] = true
	return nil
}

func (s *memoryStore) RemoveBookmark(ctx context.Context, userID, turnID string) error {
	if s.bookmarkGate != nil {
		<-s.bookmarkGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRemove != nil {
		return s.failRemove
	}
	delete(s.bookmarks[userID], turnID)
	return nil
}

func (s *memoryStore) ListBookmarks(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.bookmarks[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

// transportFunc adapts a function to Transport.
type transportFunc func(ctx context.Context, endpoint, token string, payload *Payload) ([]byte, error)

func (f transportFunc) Post(ctx context.Context, endpoint, token string, payload *Payload) ([]byte, error) {
	return f(ctx, endpoint, token, payload)
}

// respondAfter answers body after d, or returns early when ctx is done.
func respondAfter(d time.Duration, body string) transportFunc {
	return func(ctx context.Context, _, _ string, _ *Payload) ([]byte, error) {
		select {
		case <-time.After(d):
			return []byte(body), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// respondIgnoringCancel answers body after d no matter what happens to ctx.
func respondIgnoringCancel(d time.Duration, body string) transportFunc {
	return func(ctx context.Context, _, _ string, _ *Payload) ([]byte, error) {
		time.Sleep(d)
		return []byte(body), nil
	}
}

const travelAnswer = `[{"html": "Here are options...", "suggestedQuestions": ["Do you travel often?"]}]`

func testConfig() Config {
	return Config{
		Endpoint:          "http://answers.invalid/webhook",
		SystemInstruction: "You are a helpful advisor.",
		HistoryWindow:     10,
		RequestTimeout:    2 * time.Second,
	}
}

const (
	timeoutShort = time.Second
	tick         = 5 * time.Millisecond
)
