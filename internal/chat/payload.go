package chat

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Payload is the request body sent to the answering service.
type Payload struct {
	Query     string  `json:"query"`
	SessionID string  `json:"sessionId"`
	UserID    *string `json:"userId"`
	// LegacySessionID duplicates SessionID for services that still read
	// the snake_case key.
	LegacySessionID     string        `json:"session_id"`
	Messages            []Message     `json:"messages"`
	ConversationHistory []HistoryTurn `json:"conversation_history"`
}

// HistoryTurn is a windowed transcript turn as sent on the wire.
type HistoryTurn struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Type      Role      `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// BuildPayload assembles the outbound body for query. prior holds the
// transcript as it was before the new user turn was appended.
func BuildPayload(cfg Config, userID, conversationID, query string, prior []Turn) *Payload {
	cfg = cfg.normalized()

	recent := Recent(prior, cfg.HistoryWindow)
	history := make([]HistoryTurn, 0, len(recent))
	for _, turn := range recent {
		history = append(history, HistoryTurn{
			ID:        turn.ID,
			Content:   turn.Content,
			Type:      turn.Role,
			CreatedAt: turn.CreatedAt,
		})
	}

	var uid *string
	if userID != "" {
		uid = &userID
	}

	return &Payload{
		Query:               query,
		SessionID:           conversationID,
		UserID:              uid,
		LegacySessionID:     conversationID,
		Messages:            Window(prior, cfg.HistoryWindow, cfg.SystemInstruction, query),
		ConversationHistory: history,
	}
}

// answerSchema describes the accepted response: a non-empty array whose
// first element carries the answer in "html" and optional follow-up
// questions.
const answerSchema = `{
  "type": "array",
  "minItems": 1,
  "items": [
    {
      "type": "object",
      "required": ["html"],
      "properties": {
        "html": {"type": "string"},
        "suggestedQuestions": {
          "type": ["array", "null"],
          "items": {"type": "string"}
        }
      }
    }
  ]
}`

var compiledAnswerSchema *gojsonschema.Schema

func init() {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(answerSchema))
	if err != nil {
		panic("chat: invalid answer schema: " + err.Error())
	}
	compiledAnswerSchema = schema
}

type answerItem struct {
	HTML               string   `json:"html"`
	SuggestedQuestions []string `json:"suggestedQuestions"`
}

// ParseAnswer validates body against the answer schema and extracts the
// answer text and suggested questions.
func ParseAnswer(body []byte) (*Answer, error) {
	if !json.Valid(body) {
		return nil, &MalformedResponseError{Reason: "body is not valid JSON", Body: body}
	}

	result, err := compiledAnswerSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, &MalformedResponseError{Reason: err.Error(), Body: body}
	}
	if !result.Valid() {
		var reasons []string
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return nil, &MalformedResponseError{Reason: strings.Join(reasons, "; "), Body: body}
	}

	// only the first element matters; the rest may have any shape
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &MalformedResponseError{Reason: err.Error(), Body: body}
	}
	var first answerItem
	if err := json.Unmarshal(items[0], &first); err != nil {
		return nil, &MalformedResponseError{Reason: err.Error(), Body: body}
	}

	questions := first.SuggestedQuestions
	if questions == nil {
		questions = []string{}
	}
	return &Answer{Text: first.HTML, SuggestedQuestions: questions}, nil
}
