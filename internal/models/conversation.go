package models

import "time"

// Conversation persists one chat transcript, keyed by the conversation id the
// backend sees as thread_id.
type Conversation struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID string `gorm:"size:64;not null;uniqueIndex"`
	Title          string `gorm:"size:255"`
	MessagesJSON   string `gorm:"type:text"`
	MessageCount   int    `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ConversationSummary is the list view of a stored transcript.
type ConversationSummary struct {
	ConversationID string    `json:"conversationId"`
	Title          string    `json:"title"`
	MessageCount   int       `json:"messageCount"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
