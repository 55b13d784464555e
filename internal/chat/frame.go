package chat

import (
	"bytes"
	"encoding/json"
	"errors"

	"designchat/internal/models"
)

type Event string

const (
	EventDone      Event = "done"
	EventError     Event = "error"
	EventCancelled Event = "cancelled"
)

// FrameData holds the structured payloads of a frame. Each field is checked
// for its expected JSON shape when applied; a field of the wrong shape is
// ignored rather than failing the frame.
type FrameData struct {
	DesignPlan         json.RawMessage `json:"design_plan"`
	GenerationProgress json.RawMessage `json:"generation_progress"`
	GeneratedScreens   json.RawMessage `json:"generated_screens"`
	HumanFeedback      json.RawMessage `json:"human_feedback"`
}

// Frame is one decoded data payload of the chat stream. Known keys are read
// one at a time: a key of the wrong JSON type is dropped on its own and the
// rest of the frame still applies. Unknown keys are ignored.
type Frame struct {
	ThreadID         string
	Phase            *string
	Response         json.RawMessage
	Data             *FrameData
	RequiresApproval *bool
	Event            Event
	Message          string

	// The server's exception path sends {"type":"error","error":"..."}.
	Type  string
	Error string
}

// DecodeFrame fails only when raw is not a JSON object.
func DecodeFrame(raw []byte) (Frame, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Frame{}, err
	}
	if fields == nil {
		return Frame{}, errNotObject
	}

	var f Frame
	f.ThreadID, _ = stringField(fields, "thread_id")
	if v, ok := stringField(fields, "phase"); ok {
		f.Phase = &v
	}
	f.Response = fields["response"]
	if v, ok := boolField(fields, "requires_approval"); ok {
		f.RequiresApproval = &v
	}
	if raw, ok := fields["data"]; ok && isKind(raw, '{') {
		var d FrameData
		if err := json.Unmarshal(raw, &d); err == nil {
			f.Data = &d
		}
	}
	event, _ := stringField(fields, "event")
	f.Event = Event(event)
	f.Message, _ = stringField(fields, "message")
	f.Type, _ = stringField(fields, "type")
	f.Error, _ = stringField(fields, "error")
	return f, nil
}

var errNotObject = errors.New("frame is not a JSON object")

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok || !isKind(raw, '"') {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func boolField(fields map[string]json.RawMessage, key string) (bool, bool) {
	switch string(bytes.TrimSpace(fields[key])) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

func (f Frame) IsDone() bool {
	return f.Event == EventDone
}

// ErrorMessage reports whether the frame signals a server-side error and the
// text to show for it.
func (f Frame) ErrorMessage() (string, bool) {
	switch {
	case f.Event == EventError:
	case f.Event == "" && f.Type == "error":
	default:
		return "", false
	}
	if f.Message != "" {
		return f.Message, true
	}
	if f.Error != "" {
		return f.Error, true
	}
	return msgServerError, true
}

// ResponseText returns the response field when it is a JSON string.
func (f Frame) ResponseText() (string, bool) {
	raw := bytes.TrimSpace(f.Response)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Apply folds the frame into an assistant message. Content is replaced, not
// appended. Metadata keys present in the frame overwrite their previous value;
// keys absent from the frame are left alone.
func (f Frame) Apply(msg *models.ConversationMessage) {
	if text, ok := f.ResponseText(); ok {
		msg.Content = text
	}
	if msg.Metadata == nil {
		msg.Metadata = &models.AssistantMetadata{}
	}
	md := msg.Metadata

	if d := f.Data; d != nil {
		if isKind(d.DesignPlan, '{') {
			md.DesignPlan = bytes.Clone(bytes.TrimSpace(d.DesignPlan))
		}
		if isKind(d.GenerationProgress, '{') {
			md.GenerationProgress = bytes.Clone(bytes.TrimSpace(d.GenerationProgress))
		}
		if isKind(d.GeneratedScreens, '[') {
			var screens []json.RawMessage
			if err := json.Unmarshal(d.GeneratedScreens, &screens); err == nil {
				md.GeneratedScreens = screens
			}
		}
		if isSet(d.HumanFeedback) {
			md.HumanFeedback = bytes.Clone(bytes.TrimSpace(d.HumanFeedback))
		}
	}
	if f.RequiresApproval != nil {
		v := *f.RequiresApproval
		md.RequiresApproval = &v
	}
	if f.Phase != nil {
		md.Phase = *f.Phase
	}
}

func isKind(raw json.RawMessage, open byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == open
}

// isSet treats null and the JSON falsy scalars as absent.
func isSet(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}
