package services

import (
	"gorm.io/gorm"

	"designchat/internal/config"
	"designchat/internal/models"
	"designchat/internal/repositories"
)

// Services aggregates the services the app binds to the frontend.
type Services struct {
	AppSettings   AppSettingsService
	Conversations ConversationService
	Keyring       *KeyringService
	Auth          *AuthService
	Events        *EventEmitterService
	Chat          *ChatService
}

// NewServices constructs the service container using repositories backed by db.
func NewServices(db *gorm.DB, cfg config.Config, opts ...ChatServiceOption) (*Services, error) {
	defaults := models.AppSettings{
		APIBaseURL:     cfg.APIBaseURL,
		MaxMessages:    cfg.MaxMessages,
		PersistHistory: true,
	}
	appSettingsRepo := repositories.NewAppSettingsRepository(db, defaults)
	conversationRepo := repositories.NewConversationRepository(db)

	keyringService := NewKeyringService()
	authService := NewAuthService(keyringService)
	emitter := NewEventEmitterService()
	appSettings := NewAppSettingsService(appSettingsRepo)
	conversations := NewConversationService(conversationRepo)

	chatService, err := NewChatService(authService, emitter, appSettings, conversations, defaults, cfg.MaxSessions, opts...)
	if err != nil {
		return nil, err
	}

	return &Services{
		AppSettings:   appSettings,
		Conversations: conversations,
		Keyring:       keyringService,
		Auth:          authService,
		Events:        emitter,
		Chat:          chatService,
	}, nil
}
