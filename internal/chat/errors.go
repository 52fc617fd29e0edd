package chat

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrDuplicateBookmark is returned by a Store when the (user, turn)
// bookmark already exists. The engine treats it as success.
var ErrDuplicateBookmark = errors.New("bookmark already exists")

// ConcurrentRequestError is returned when a send is attempted while
// another one is still in flight for the same conversation.
type ConcurrentRequestError struct {
	ConversationID string
}

func (e *ConcurrentRequestError) Error() string {
	return fmt.Sprintf("conversation %s: a request is already in flight", e.ConversationID)
}

// TimeoutError is returned when the answering service did not respond
// within the configured request timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", e.Timeout)
}

// CancelledError is returned when the caller cancelled the request.
type CancelledError struct{}

func (e *CancelledError) Error() string {
	return "request was cancelled"
}

// TransportError wraps network and HTTP failures. StatusCode is zero
// when no HTTP response was received.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: HTTP %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %v", e.Message, e.Err)
	}
	return "transport: " + e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is returned when the response body does not
// have the expected shape.
type MalformedResponseError struct {
	Reason string
	Body   []byte
}

func (e *MalformedResponseError) Error() string {
	return "malformed response: " + e.Reason
}

// BookmarkSyncError is returned when the store rejected a bookmark
// change. The local bookmark state has already been rolled back.
type BookmarkSyncError struct {
	TurnID string
	Added  bool
	Err    error
}

func (e *BookmarkSyncError) Error() string {
	op := "remove"
	if e.Added {
		op = "add"
	}
	return fmt.Sprintf("bookmark %s %s: %v", op, e.TurnID, e.Err)
}

func (e *BookmarkSyncError) Unwrap() error {
	return e.Err
}

// ConcurrentToggleError is returned when a toggle is issued for a turn
// whose previous toggle has not settled yet.
type ConcurrentToggleError struct {
	TurnID string
}

func (e *ConcurrentToggleError) Error() string {
	return fmt.Sprintf("bookmark %s: toggle already in progress", e.TurnID)
}

// IsRetryable reports whether resubmitting the same content may succeed.
// Timeouts and transport failures are retryable; malformed responses,
// caller errors and cancellations are not.
func IsRetryable(err error) bool {
	var te *TimeoutError
	var tr *TransportError
	return errors.As(err, &te) || errors.As(err, &tr)
}
