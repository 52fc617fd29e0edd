package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence the engine relies on. Every call is scoped
// to userID.
type Store interface {
	BookmarkStore

	CreateTurn(ctx context.Context, userID, conversationID string, role Role, content string) (Turn, error)
	ListTurns(ctx context.Context, userID, conversationID string) ([]Turn, error)
	DeleteAllTurns(ctx context.Context, userID, conversationID string) error
	UpsertConversationTitle(ctx context.Context, userID, conversationID, title string) error
	TouchConversation(ctx context.Context, userID, conversationID string) error
	ListBookmarks(ctx context.Context, userID string) ([]string, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithTransientAnswers keeps assistant turns in memory only. They get a
// client-generated id and are never written to the store.
func WithTransientAnswers() Option {
	return func(e *Engine) {
		e.persistAnswers = false
	}
}

// WithClock overrides the time source used for optimistic turns.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine orchestrates one active conversation for one user.
type Engine struct {
	store      Store
	controller *Controller
	transcript *Transcript
	bookmarks  *BookmarkIndex
	userID     string

	persistAnswers bool
	now            func() time.Time
	newID          func() string

	mu           sync.Mutex
	conversation Conversation
	titled       bool
	renamed      bool
}

// NewEngine creates an engine for userID. Call Activate before Submit.
func NewEngine(store Store, transport Transport, userID string, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		controller:     NewController(transport),
		transcript:     NewTranscript(),
		bookmarks:      NewBookmarkIndex(store, userID),
		userID:         userID,
		persistAnswers: true,
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.controller.now = e.now
	return e
}

// Activate loads conv's turns and the user's bookmarks, replacing
// whatever the engine held before.
func (e *Engine) Activate(ctx context.Context, conv Conversation) error {
	var (
		turns     []Turn
		bookmarks []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		turns, err = e.store.ListTurns(gctx, e.userID, conv.ID)
		return errors.Wrapf(err, "loading turns of conversation %s", conv.ID)
	})
	g.Go(func() error {
		var err error
		bookmarks, err = e.store.ListBookmarks(gctx, e.userID)
		return errors.Wrap(err, "loading bookmarks")
	})
	if err := g.Wait(); err != nil {
		return err
	}

	e.controller.Cancel()
	e.transcript.Load(turns)
	e.bookmarks.Load(bookmarks)

	e.mu.Lock()
	e.conversation = conv
	e.titled = conv.Title != "" && conv.Title != DefaultTitle
	e.renamed = false
	e.mu.Unlock()

	log.Debug().
		Str("conversation_id", conv.ID).
		Int("turns", len(turns)).
		Int("bookmarks", len(bookmarks)).
		Msg("chat: conversation activated")
	return nil
}

// Conversation returns the active conversation.
func (e *Engine) Conversation() Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conversation
}

// Transcript returns the visible turns of the active conversation.
func (e *Engine) Transcript() []Turn {
	return e.transcript.Snapshot()
}

// IsBusy reports whether a request is in flight.
func (e *Engine) IsBusy() bool {
	return e.controller.IsBusy()
}

// Cancel aborts the in-flight request, if any.
func (e *Engine) Cancel() {
	e.controller.Cancel()
}

// IsBookmarked reports whether turnID is bookmarked by the user.
func (e *Engine) IsBookmarked(turnID string) bool {
	return e.bookmarks.IsBookmarked(turnID)
}

// ToggleBookmark flips the bookmark on turnID.
func (e *Engine) ToggleBookmark(ctx context.Context, turnID string) (bool, error) {
	return e.bookmarks.Toggle(ctx, turnID)
}

// LoadBookmarks replaces the known bookmarks without activating a
// conversation.
func (e *Engine) LoadBookmarks(ids []string) {
	e.bookmarks.Load(ids)
}

// Submit sends content as a new user turn and appends the answer.
//
// The user turn is visible in the transcript as soon as Submit starts.
// If the request fails, times out or is cancelled, the transcript keeps
// the user turn and no assistant turn is added.
func (e *Engine) Submit(ctx context.Context, cfg Config, content string) (*Answer, error) {
	conv := e.Conversation()
	if conv.ID == "" {
		return nil, errors.New("no active conversation")
	}

	rc, err := e.controller.begin(ctx, cfg, conv.ID)
	if err != nil {
		return nil, err
	}

	prior := e.transcript.Snapshot()
	pending := Turn{
		ID:             e.newID(),
		ConversationID: conv.ID,
		Role:           RoleUser,
		Content:        content,
		CreatedAt:      e.now(),
		Pending:        true,
	}
	e.transcript.Append(pending)

	// store calls use the caller's context; Cancel only aborts the request
	confirmed, err := e.store.CreateTurn(ctx, e.userID, conv.ID, RoleUser, content)
	if err != nil {
		e.controller.abandon(rc)
		e.transcript.Discard(pending.ID)
		return nil, errors.Wrap(err, "saving user message")
	}
	e.transcript.Reconcile(pending.ID, confirmed)

	if len(prior) == 0 {
		e.deriveTitle(ctx, conv.ID, content)
	}

	answer, err := e.controller.dispatch(rc, e.userID, conv.ID, content, prior)
	if err != nil {
		return nil, err
	}

	turn, err := e.recordAnswer(ctx, conv.ID, answer.Text)
	if err != nil {
		return nil, err
	}
	answer.Turn = turn

	if err := e.store.TouchConversation(ctx, e.userID, conv.ID); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("chat: failed to refresh conversation timestamp")
	} else {
		e.mu.Lock()
		e.conversation.UpdatedAt = e.now()
		e.mu.Unlock()
	}

	return answer, nil
}

func (e *Engine) recordAnswer(ctx context.Context, conversationID, text string) (Turn, error) {
	if !e.persistAnswers {
		turn := Turn{
			ID:             e.newID(),
			ConversationID: conversationID,
			Role:           RoleAssistant,
			Content:        text,
			CreatedAt:      e.now(),
		}
		e.transcript.Append(turn)
		return turn, nil
	}

	turn, err := e.store.CreateTurn(ctx, e.userID, conversationID, RoleAssistant, text)
	if err != nil {
		return Turn{}, errors.Wrap(err, "saving assistant message")
	}
	e.transcript.Append(turn)
	return turn, nil
}

// deriveTitle names the conversation after its first user message. It
// runs once per conversation, and again after Clear unless the title was
// set with Rename.
func (e *Engine) deriveTitle(ctx context.Context, conversationID, content string) {
	e.mu.Lock()
	if e.titled {
		e.mu.Unlock()
		return
	}
	e.titled = true
	e.mu.Unlock()

	title := DeriveTitle(content)
	if err := e.store.UpsertConversationTitle(ctx, e.userID, conversationID, title); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("chat: failed to save derived title")
		return
	}

	e.mu.Lock()
	if e.conversation.ID == conversationID {
		e.conversation.Title = title
	}
	e.mu.Unlock()
}

// Rename sets an explicit title on the active conversation.
func (e *Engine) Rename(ctx context.Context, title string) error {
	conv := e.Conversation()
	if err := e.store.UpsertConversationTitle(ctx, e.userID, conv.ID, title); err != nil {
		return errors.Wrapf(err, "renaming conversation %s", conv.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conversation.ID == conv.ID {
		e.conversation.Title = title
		e.titled = true
		e.renamed = true
	}
	return nil
}

// Clear deletes every turn of the active conversation. The next message
// titles it again unless it was renamed explicitly.
func (e *Engine) Clear(ctx context.Context) error {
	conv := e.Conversation()
	e.controller.Cancel()
	if err := e.store.DeleteAllTurns(ctx, e.userID, conv.ID); err != nil {
		return errors.Wrapf(err, "clearing conversation %s", conv.ID)
	}
	e.transcript.Clear()

	e.mu.Lock()
	if e.conversation.ID == conv.ID {
		e.titled = e.renamed
	}
	e.mu.Unlock()
	return nil
}
