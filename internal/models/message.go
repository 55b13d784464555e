package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationMessage is a single entry of a chat transcript. Assistant
// messages carry Metadata; user messages never do.
type ConversationMessage struct {
	ID        string             `json:"id"`
	Role      Role               `json:"role"`
	Content   string             `json:"content"`
	Timestamp time.Time          `json:"timestamp"`
	Metadata  *AssistantMetadata `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers can hold on to a message while the
// owning session keeps mutating its own copy.
func (m ConversationMessage) Clone() ConversationMessage {
	out := m
	if m.Metadata != nil {
		md := m.Metadata.Clone()
		out.Metadata = &md
	}
	return out
}

func CloneMessages(in []ConversationMessage) []ConversationMessage {
	if in == nil {
		return nil
	}
	out := make([]ConversationMessage, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}
