package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"designchat/internal/models"
)

type ConversationRepository interface {
	List(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error)
	Get(ctx context.Context, conversationID string) (*models.Conversation, error)
	Upsert(ctx context.Context, conversationID, title, messagesJSON string, messageCount int) (*models.Conversation, error)
	Delete(ctx context.Context, conversationID string) error
}

type conversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// List returns stored conversations, most recently updated first.
func (r *conversationRepository) List(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error) {
	var out []models.ConversationSummary
	q := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Select("conversation_id", "title", "message_count", "updated_at").
		Order("updated_at desc").
		Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns nil, nil when the conversation has not been stored.
func (r *conversationRepository) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	res := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Take(&conv)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return &conv, nil
}

func (r *conversationRepository) Upsert(ctx context.Context, conversationID, title, messagesJSON string, messageCount int) (*models.Conversation, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("conversationID is required")
	}
	conv := models.Conversation{
		ConversationID: conversationID,
		Title:          title,
		MessagesJSON:   messagesJSON,
		MessageCount:   messageCount,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "messages_json", "message_count", "updated_at"}),
	}).Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) Delete(ctx context.Context, conversationID string) error {
	return r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Delete(&models.Conversation{}).Error
}
