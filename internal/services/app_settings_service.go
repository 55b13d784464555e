package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"designchat/internal/models"
	"designchat/internal/repositories"
)

const maxMessagesCeiling = 1000

type AppSettingsService interface {
	Get(ctx context.Context) (*models.AppSettings, error)
	Update(ctx context.Context, apiBaseURL string, maxMessages int, persistHistory bool) (*models.AppSettings, error)
	Startup(ctx context.Context)
}

type appSettingsService struct {
	appSettings repositories.AppSettingsRepository
	context     context.Context
}

func (s *appSettingsService) Startup(ctx context.Context) {
	s.context = ctx
}

func NewAppSettingsService(appSettings repositories.AppSettingsRepository) AppSettingsService {
	return &appSettingsService{appSettings: appSettings}
}

func (s *appSettingsService) Get(ctx context.Context) (*models.AppSettings, error) {
	return s.appSettings.Get(ctx)
}

func (s *appSettingsService) Update(ctx context.Context, apiBaseURL string, maxMessages int, persistHistory bool) (*models.AppSettings, error) {
	apiBaseURL = strings.TrimRight(strings.TrimSpace(apiBaseURL), "/")
	if apiBaseURL == "" {
		return nil, errors.New("api base url is required")
	}
	u, err := url.Parse(apiBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("api base url must be an absolute http(s) url, got %q", apiBaseURL)
	}
	if maxMessages <= 0 || maxMessages > maxMessagesCeiling {
		return nil, fmt.Errorf("max messages must be between 1 and %d", maxMessagesCeiling)
	}

	current, err := s.appSettings.Get(ctx)
	if err != nil {
		return nil, err
	}

	current.APIBaseURL = apiBaseURL
	current.MaxMessages = maxMessages
	current.PersistHistory = persistHistory
	current.UpdatedAt = time.Now()

	if err := s.appSettings.Update(ctx, current); err != nil {
		return nil, err
	}

	return current, nil
}
