// Package chat implements the conversation orchestration engine: the
// in-memory transcript, history windowing, the single in-flight request
// to the remote answering service, title derivation and bookmarks.
//
// The package holds no global state. Every send receives an explicit
// Config snapshot, so one process can drive several conversations with
// different settings.
package chat

import "time"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem only appears in outbound messages, never in a transcript.
	RoleSystem Role = "system"
)

// DefaultTitle is the placeholder title of a conversation that has not
// been named yet.
const DefaultTitle = "New Chat"

// Turn represents a single message in a conversation
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"session_id"`
	Role           Role      `json:"type"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	// Pending is true while the turn only exists locally and has not
	// been confirmed by the store.
	Pending bool `json:"-"`
}

// Conversation is a named, ordered container of turns.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// MessageCount is filled by listings; it is not kept in sync by the engine.
	MessageCount int `json:"message_count"`
}

// ShortID returns the shortened conversation ID (first 8 characters)
func (c Conversation) ShortID() string {
	if len(c.ID) >= 8 {
		return c.ID[:8]
	}
	return c.ID
}

// DisplayName returns the title, or the short ID when the title is empty.
func (c Conversation) DisplayName() string {
	if c.Title != "" {
		return c.Title
	}
	return c.ShortID()
}

// Answer is the validated result of one exchange with the answering service.
type Answer struct {
	Text               string
	SuggestedQuestions []string
	// Turn is the assistant turn appended to the transcript. It is only
	// set by Engine.Submit; Controller.Send leaves it zero.
	Turn Turn
}
