package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"designchat/internal/models"
	"designchat/internal/repositories"
)

const (
	defaultListLimit = 50
	maxTitleRunes    = 60
	untitled         = "New conversation"
)

// ConversationService stores chat transcripts as JSON blobs.
type ConversationService interface {
	List(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error)
	// Load returns found=false when nothing is stored under conversationID.
	Load(ctx context.Context, conversationID string) (msgs []models.ConversationMessage, found bool, err error)
	Save(ctx context.Context, conversationID string, msgs []models.ConversationMessage) error
	Delete(ctx context.Context, conversationID string) error
}

type conversationService struct {
	repo repositories.ConversationRepository
}

func NewConversationService(repo repositories.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

func (s *conversationService) List(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

func (s *conversationService) Load(ctx context.Context, conversationID string) ([]models.ConversationMessage, bool, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, false, fmt.Errorf("conversationID is required")
	}
	conv, err := s.repo.Get(ctx, conversationID)
	if err != nil {
		return nil, false, err
	}
	if conv == nil {
		return nil, false, nil
	}
	var msgs []models.ConversationMessage
	if strings.TrimSpace(conv.MessagesJSON) != "" {
		if err := json.Unmarshal([]byte(conv.MessagesJSON), &msgs); err != nil {
			return nil, true, fmt.Errorf("decode conversation %s: %w", conversationID, err)
		}
	}
	return msgs, true, nil
}

func (s *conversationService) Save(ctx context.Context, conversationID string, msgs []models.ConversationMessage) error {
	if msgs == nil {
		msgs = []models.ConversationMessage{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", conversationID, err)
	}
	_, err = s.repo.Upsert(ctx, conversationID, titleFor(msgs), string(data), len(msgs))
	return err
}

func (s *conversationService) Delete(ctx context.Context, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return fmt.Errorf("conversationID is required")
	}
	return s.repo.Delete(ctx, conversationID)
}

// titleFor uses the first user message, cut to maxTitleRunes.
func titleFor(msgs []models.ConversationMessage) string {
	for _, m := range msgs {
		if m.Role != models.RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(m.Content), " ")
		if title == "" {
			continue
		}
		if utf8.RuneCountInString(title) > maxTitleRunes {
			r := []rune(title)
			title = strings.TrimSpace(string(r[:maxTitleRunes])) + "…"
		}
		return title
	}
	return untitled
}
