package services

import (
	"context"
	"sync"

	"designchat/internal/chat"
	"designchat/internal/events"
)

// EventEmitterService owns the Wails context that frontend events are sent
// on and hands out per-conversation notifiers.
type EventEmitterService struct {
	mu      sync.RWMutex
	context context.Context
}

func NewEventEmitterService() *EventEmitterService {
	return &EventEmitterService{}
}

// Startup switches event emission to the Wails runtime.
func (e *EventEmitterService) Startup(ctx context.Context) {
	e.mu.Lock()
	e.context = ctx
	e.mu.Unlock()
	events.EnableRuntimeEmitter()
}

// Context returns the context events are emitted on, scoped to conversationID.
func (e *EventEmitterService) Context(conversationID string) context.Context {
	e.mu.RLock()
	ctx := e.context
	e.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return events.WithConversation(ctx, conversationID)
}

// Notifier returns a chat.Notifier that raises toasts for conversationID.
func (e *EventEmitterService) Notifier(conversationID string) chat.Notifier {
	return chat.NotifierFunc(func(level chat.Level, text string) {
		events.Toast(e.Context(conversationID), events.EventType(level), text)
	})
}

// PublishState pushes a session snapshot for conversationID.
func (e *EventEmitterService) PublishState(conversationID string, state chat.State) {
	events.EmitState(e.Context(conversationID), conversationID, state)
}

func (e *EventEmitterService) AuthRequired(conversationID, message string) {
	events.EmitAuthRequired(e.Context(conversationID), message)
}
