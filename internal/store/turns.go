package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/longkey1/advchat/internal/chat"
	"github.com/pkg/errors"
)

// CreateTurn stores a new turn and returns it with its store-assigned
// ID and timestamp.
func (s *Store) CreateTurn(ctx context.Context, userID, conversationID string, role chat.Role, content string) (chat.Turn, error) {
	turn := chat.Turn{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      s.now(),
	}

	// the conversation must belong to userID
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, user_id, content, type, created_at)
		 SELECT ?, ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM sessions WHERE id = ? AND user_id = ?)`,
		turn.ID, conversationID, userID, content, string(role), toUnix(turn.CreatedAt),
		conversationID, userID)
	if err != nil {
		if isConstraintViolation(err) {
			return chat.Turn{}, errors.Wrapf(ErrConversationNotFound, "session %s", conversationID)
		}
		return chat.Turn{}, errors.Wrap(err, "failed to save message")
	}
	if n, err := res.RowsAffected(); err != nil {
		return chat.Turn{}, errors.Wrap(err, "failed to save message")
	} else if n == 0 {
		return chat.Turn{}, errors.Wrapf(ErrConversationNotFound, "session %s", conversationID)
	}
	return turn, nil
}

// ListTurns returns the turns of a conversation in chronological order.
func (s *Store) ListTurns(ctx context.Context, userID, conversationID string) ([]chat.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, content, type, created_at FROM messages
		 WHERE session_id = ? AND user_id = ?
		 ORDER BY created_at, rowid`,
		conversationID, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list messages of conversation %s", conversationID)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// DeleteAllTurns removes every turn of a conversation, keeping the
// conversation itself.
func (s *Store) DeleteAllTurns(ctx context.Context, userID, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ? AND user_id = ?`,
		conversationID, userID)
	return errors.Wrapf(err, "failed to delete messages of conversation %s", conversationID)
}

type rowScanner interface {
	Next() bool
	Scan(...any) error
	Err() error
}

func scanTurns(rows rowScanner) ([]chat.Turn, error) {
	var turns []chat.Turn
	for rows.Next() {
		var (
			t       chat.Turn
			role    string
			created int64
		)
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Content, &role, &created); err != nil {
			return nil, errors.Wrap(err, "failed to read message")
		}
		t.Role = chat.Role(role)
		t.CreatedAt = fromUnix(created)
		turns = append(turns, t)
	}
	return turns, errors.Wrap(rows.Err(), "failed to read messages")
}
