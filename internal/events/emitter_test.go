package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	name    string
	payload any
}

func capture(t *testing.T) *[]captured {
	t.Helper()
	var got []captured
	SetCustomEmitter(func(ctx context.Context, name string, payload any) {
		got = append(got, captured{name: name, payload: payload})
	})
	t.Cleanup(func() { SetCustomEmitter(nil) })
	return &got
}

func TestToast_ScopesToConversation(t *testing.T) {
	got := capture(t)
	ctx := WithConversation(context.Background(), "chat-1")

	Toast(ctx, EventError, "boom")

	require.Len(t, *got, 1)
	assert.Equal(t, ChatToast, (*got)[0].name)
	evt, ok := (*got)[0].payload.(ToastEvent)
	require.True(t, ok)
	assert.Equal(t, EventError, evt.Type)
	assert.Equal(t, "boom", evt.Message)
	assert.Equal(t, "chat-1", evt.ConversationID)
	assert.NotEmpty(t, evt.ID)
	assert.False(t, evt.Timestamp.IsZero())
}

func TestEmitState_FallsBackToContextConversation(t *testing.T) {
	got := capture(t)
	ctx := WithConversation(context.Background(), "chat-ctx")

	EmitState(ctx, "", map[string]int{"messageCount": 2})
	EmitState(ctx, "chat-explicit", nil)

	require.Len(t, *got, 2)
	first := (*got)[0].payload.(StateEvent)
	assert.Equal(t, ChatState, (*got)[0].name)
	assert.Equal(t, "chat-ctx", first.ConversationID)
	assert.Equal(t, map[string]int{"messageCount": 2}, first.State)
	assert.Equal(t, "chat-explicit", (*got)[1].payload.(StateEvent).ConversationID)
}

func TestEmitAuthRequired(t *testing.T) {
	got := capture(t)
	EmitAuthRequired(context.Background(), "sign in again")

	require.Len(t, *got, 1)
	assert.Equal(t, AuthRequired, (*got)[0].name)
	evt := (*got)[0].payload.(ToastEvent)
	assert.Equal(t, EventWarn, evt.Type)
	assert.Equal(t, "sign in again", evt.Message)
}

func TestSetCustomEmitter_NilSilences(t *testing.T) {
	SetCustomEmitter(nil)
	assert.NotPanics(t, func() {
		Toast(context.Background(), EventInfo, "ignored")
		EmitState(context.Background(), "x", nil)
	})
}

func TestConversationFromContext(t *testing.T) {
	assert.Equal(t, "", ConversationFromContext(nil))
	assert.Equal(t, "", ConversationFromContext(context.Background()))
	ctx := WithConversation(context.Background(), "  ")
	assert.Equal(t, "", ConversationFromContext(ctx))
}
