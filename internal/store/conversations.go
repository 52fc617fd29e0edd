package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/longkey1/advchat/internal/chat"
	"github.com/pkg/errors"
)

const conversationColumns = `
	s.id, s.user_id, s.title, s.created_at, s.updated_at,
	(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id AND m.user_id = s.user_id)`

func scanConversation(row interface{ Scan(...any) error }) (chat.Conversation, error) {
	var (
		c                chat.Conversation
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &created, &updated, &c.MessageCount); err != nil {
		return chat.Conversation{}, err
	}
	c.CreatedAt = fromUnix(created)
	c.UpdatedAt = fromUnix(updated)
	return c, nil
}

// CreateConversation starts a new conversation for userID. An empty
// title falls back to chat.DefaultTitle.
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (chat.Conversation, error) {
	if title == "" {
		title = chat.DefaultTitle
	}
	now := s.now()
	c := chat.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, toUnix(now), toUnix(now))
	if err != nil {
		return chat.Conversation{}, errors.Wrap(err, "failed to create conversation")
	}
	return c, nil
}

// GetConversation loads one conversation of userID by its full ID.
func (s *Store) GetConversation(ctx context.Context, userID, id string) (chat.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM sessions s WHERE s.id = ? AND s.user_id = ?`,
		id, userID)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, errors.Wrapf(ErrConversationNotFound, "session %s", id)
	}
	if err != nil {
		return chat.Conversation{}, errors.Wrapf(err, "failed to load conversation %s", id)
	}
	return c, nil
}

// ListConversations returns all conversations of userID sorted by
// UpdatedAt (newest first).
func (s *Store) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM sessions s WHERE s.user_id = ?
		 ORDER BY s.updated_at DESC, s.created_at DESC`,
		userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	var conversations []chat.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read conversation")
		}
		conversations = append(conversations, c)
	}
	return conversations, errors.Wrap(rows.Err(), "failed to list conversations")
}

// FindConversation resolves ref to one conversation of userID. ref is a
// full ID, an ID prefix of at least 4 characters, or "latest" for the
// most recently updated conversation. Multiple prefix matches yield an
// *AmbiguousIDError.
func (s *Store) FindConversation(ctx context.Context, userID, ref string) (chat.Conversation, error) {
	if ref == "latest" {
		return s.LatestConversation(ctx, userID)
	}

	if len(ref) < 4 {
		return chat.Conversation{}, errors.Errorf("session ID prefix must be at least 4 characters (got %d)", len(ref))
	}

	if len(ref) == 36 && strings.Count(ref, "-") == 4 {
		return s.GetConversation(ctx, userID, ref)
	}

	conversations, err := s.ListConversations(ctx, userID)
	if err != nil {
		return chat.Conversation{}, err
	}

	var matches []chat.Conversation
	for _, c := range conversations {
		if strings.HasPrefix(c.ID, ref) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return chat.Conversation{}, errors.Wrapf(ErrConversationNotFound, "session %s", ref)
	case 1:
		return matches[0], nil
	default:
		return chat.Conversation{}, &AmbiguousIDError{Prefix: ref, Matches: matches}
	}
}

// LatestConversation returns the most recently updated conversation.
func (s *Store) LatestConversation(ctx context.Context, userID string) (chat.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM sessions s WHERE s.user_id = ?
		 ORDER BY s.updated_at DESC, s.created_at DESC LIMIT 1`,
		userID)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, errors.Wrap(ErrConversationNotFound, "no sessions found")
	}
	if err != nil {
		return chat.Conversation{}, errors.Wrap(err, "failed to load latest conversation")
	}
	return c, nil
}

// UpsertConversationTitle sets the title of a conversation, creating the
// conversation if it does not exist yet.
func (s *Store) UpsertConversationTitle(ctx context.Context, userID, conversationID, title string) error {
	now := toUnix(s.now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET title = excluded.title WHERE sessions.user_id = excluded.user_id`,
		conversationID, userID, title, now, now)
	if err != nil {
		return errors.Wrapf(err, "failed to save title of conversation %s", conversationID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrConversationNotFound, "session %s", conversationID)
	}
	return nil
}

// RenameConversation sets the title of an existing conversation.
func (s *Store) RenameConversation(ctx context.Context, userID, conversationID, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ? WHERE id = ? AND user_id = ?`,
		title, conversationID, userID)
	if err != nil {
		return errors.Wrapf(err, "failed to rename conversation %s", conversationID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrConversationNotFound, "session %s", conversationID)
	}
	return nil
}

// TouchConversation moves the conversation's UpdatedAt to now.
func (s *Store) TouchConversation(ctx context.Context, userID, conversationID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ? AND user_id = ?`,
		toUnix(s.now()), conversationID, userID)
	if err != nil {
		return errors.Wrapf(err, "failed to update conversation %s", conversationID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrConversationNotFound, "session %s", conversationID)
	}
	return nil
}

// DeleteConversation removes a conversation together with its turns and
// their bookmarks.
func (s *Store) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = ? AND user_id = ?`,
		conversationID, userID)
	if err != nil {
		return errors.Wrapf(err, "failed to delete conversation %s", conversationID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrConversationNotFound, "session %s", conversationID)
	}
	return nil
}

// DeleteConversationsBefore removes every conversation of userID last
// updated before cutoff and returns how many were removed.
func (s *Store) DeleteConversationsBefore(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = ? AND updated_at < ?`,
		userID, toUnix(cutoff))
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete old conversations")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted conversations")
	}
	return int(n), nil
}
