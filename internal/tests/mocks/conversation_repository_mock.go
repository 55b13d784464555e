package mocks

import (
	"context"

	"designchat/internal/models"
)

type ConversationRepositoryMock struct {
	ListFunc   func(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error)
	GetFunc    func(ctx context.Context, conversationID string) (*models.Conversation, error)
	UpsertFunc func(ctx context.Context, conversationID, title, messagesJSON string, messageCount int) (*models.Conversation, error)
	DeleteFunc func(ctx context.Context, conversationID string) error
}

func (m *ConversationRepositoryMock) List(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return nil, nil
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, conversationID)
	}
	return nil, nil
}

func (m *ConversationRepositoryMock) Upsert(ctx context.Context, conversationID, title, messagesJSON string, messageCount int) (*models.Conversation, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, conversationID, title, messagesJSON, messageCount)
	}
	return &models.Conversation{ConversationID: conversationID, Title: title, MessagesJSON: messagesJSON, MessageCount: messageCount}, nil
}

func (m *ConversationRepositoryMock) Delete(ctx context.Context, conversationID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, conversationID)
	}
	return nil
}
