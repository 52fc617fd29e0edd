package store

import (
	"context"

	"github.com/longkey1/advchat/internal/chat"
	"github.com/pkg/errors"
)

// AddBookmark marks turnID for userID. Adding an existing bookmark
// returns chat.ErrDuplicateBookmark.
func (s *Store) AddBookmark(ctx context.Context, userID, turnID string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bookmarks (user_id, message_id, created_at)
		 SELECT ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM messages WHERE id = ? AND user_id = ?)`,
		userID, turnID, toUnix(s.now()), turnID, userID)
	if err != nil {
		if isConstraintViolation(err) {
			return chat.ErrDuplicateBookmark
		}
		return errors.Wrapf(err, "failed to bookmark message %s", turnID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "failed to bookmark message %s", turnID)
	}
	if n == 0 {
		return errors.Errorf("message %s does not exist", turnID)
	}
	return nil
}

// RemoveBookmark unmarks turnID. Removing a missing bookmark is not an
// error.
func (s *Store) RemoveBookmark(ctx context.Context, userID, turnID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE user_id = ? AND message_id = ?`,
		userID, turnID)
	return errors.Wrapf(err, "failed to remove bookmark of message %s", turnID)
}

// ListBookmarks returns the IDs of every turn userID has bookmarked.
func (s *Store) ListBookmarks(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id FROM bookmarks WHERE user_id = ? ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list bookmarks")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to read bookmark")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "failed to list bookmarks")
}

// ListBookmarkedTurns returns the bookmarked turns of userID, oldest
// bookmark first.
func (s *Store) ListBookmarkedTurns(ctx context.Context, userID string) ([]chat.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.session_id, m.content, m.type, m.created_at
		 FROM bookmarks b JOIN messages m ON m.id = b.message_id AND m.user_id = b.user_id
		 WHERE b.user_id = ?
		 ORDER BY b.created_at`,
		userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list bookmarked messages")
	}
	defer rows.Close()

	return scanTurns(rows)
}
