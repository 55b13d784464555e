package chat

import (
	"context"
	"errors"

	"designchat/internal/backend"
)

// Precondition and setup errors. Their text is what the user sees.
var (
	ErrNotSignedIn     = errors.New("you must be signed in to send messages")
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageTooLong  = errors.New("message too long (max 4000 characters)")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrNoToken         = errors.New("failed to get authentication token")
	ErrCancelled       = errors.New("request cancelled")
	ErrSessionNotFound = errors.New("session not found")
)

const (
	msgCancelled   = "request was cancelled"
	msgTimedOut    = "request timed out, please try again"
	msgSendFailed  = "failed to send message"
	msgServerError = "server error"
)

// SendError is returned when a send fails after preconditions passed. Message
// is the classified text recorded on the session.
type SendError struct {
	Message string
	Err     error
}

func (e *SendError) Error() string {
	return e.Message
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// ClassifyError maps a transport or setup failure onto a user-facing message.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return msgSendFailed
	case errors.Is(err, context.Canceled):
		return msgCancelled
	case backend.IsTimeout(err):
		return msgTimedOut
	case err.Error() != "":
		return err.Error()
	}
	return msgSendFailed
}
