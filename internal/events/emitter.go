package events

import (
	"context"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Emit sends a toast to the frontend. It is a no-op until
// EnableRuntimeEmitter or SetCustomEmitter is called.
var Emit = func(ctx context.Context, name string, evt ToastEvent) {}

// Publish sends an arbitrary payload to the frontend.
var Publish = func(ctx context.Context, name string, payload any) {}

// runtimeLogging is off for custom emitters; the wails runtime exits the
// process when handed a context it did not create.
var runtimeLogging bool

func EnableRuntimeEmitter() {
	runtimeLogging = true
	Emit = func(ctx context.Context, name string, evt ToastEvent) {
		scope(ctx, &evt)
		runtime.EventsEmit(ctx, name, evt)
		logRuntimeEvent(ctx, name, evt)
	}
	Publish = func(ctx context.Context, name string, payload any) {
		runtime.EventsEmit(ctx, name, payload)
	}
}

// SetCustomEmitter routes every event through f. Passing nil silences events.
func SetCustomEmitter(f func(ctx context.Context, name string, payload any)) {
	runtimeLogging = false
	if f == nil {
		Emit = func(context.Context, string, ToastEvent) {}
		Publish = func(context.Context, string, any) {}
		return
	}
	Emit = func(ctx context.Context, name string, evt ToastEvent) {
		scope(ctx, &evt)
		f(ctx, name, evt)
	}
	Publish = f
}

// Toast builds and emits a toast of the given type on ChatToast.
func Toast(ctx context.Context, eventType EventType, message string) {
	Emit(ctx, ChatToast, CreateToastEvent(eventType, message))
}

func scope(ctx context.Context, evt *ToastEvent) {
	if evt.ConversationID == "" {
		if id := ConversationFromContext(ctx); id != "" {
			evt.ConversationID = id
		}
	}
}
