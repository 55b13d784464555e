package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StateEvent carries a full session snapshot to the frontend.
type StateEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	State          any       `json:"state"`
	Timestamp      time.Time `json:"timestamp"`
}

// EmitState publishes a session snapshot. The conversation id falls back to
// the one carried by ctx.
func EmitState(ctx context.Context, conversationID string, state any) {
	if conversationID == "" {
		conversationID = ConversationFromContext(ctx)
	}
	Publish(ctx, ChatState, StateEvent{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		State:          state,
		Timestamp:      time.Now(),
	})
}

// EmitAuthRequired tells the frontend the stored token was rejected.
func EmitAuthRequired(ctx context.Context, message string) {
	evt := NewWarn(message)
	evt.ConversationID = ConversationFromContext(ctx)
	Publish(ctx, AuthRequired, evt)
	logRuntimeEvent(ctx, AuthRequired, evt)
}
