package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInfo    EventType = "info"
	EventWarn    EventType = "warn"
	EventSuccess EventType = "success"
	EventError   EventType = "error"
)

const (
	ChatToast    = "chat:toast"
	ChatState    = "chat:state"
	AuthRequired = "auth:required"
)

// ToastEvent is a transient notification shown by the frontend.
type ToastEvent struct {
	ID             string            `json:"id"`
	Type           EventType         `json:"type"`
	Message        string            `json:"message"`
	Timestamp      time.Time         `json:"timestamp"`
	ConversationID string            `json:"conversationId,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type contextKey string

const conversationContextKey contextKey = "designchat/events/conversation"

// WithConversation returns a derived context annotated with the given
// conversation id so emitters can scope payloads automatically.
func WithConversation(ctx context.Context, conversationID string) context.Context {
	if strings.TrimSpace(conversationID) == "" {
		return ctx
	}
	return context.WithValue(ctx, conversationContextKey, conversationID)
}

// ConversationFromContext extracts the conversation id associated with ctx.
func ConversationFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(conversationContextKey).(string); ok {
		return v
	}
	return ""
}

func CreateToastEvent(eventType EventType, message string) ToastEvent {
	return ToastEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func NewWarn(message string) ToastEvent {
	return CreateToastEvent(EventWarn, message)
}
