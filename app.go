package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"designchat/internal/backend"
	"designchat/internal/models"
	"designchat/internal/services"
)

const healthTimeout = 5 * time.Second

// App struct
type App struct {
	ctx     context.Context
	svc     *services.Services
	dbClose func() error

	mu     sync.Mutex
	health *backend.Client
}

// NewApp creates a new App application struct
func NewApp(svc *services.Services, health *backend.Client) *App {
	return &App{svc: svc, health: health}
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.svc.Events.Startup(ctx)
	a.svc.AppSettings.Startup(ctx)

	go a.pingBackend()
}

// shutdown is called when the app is closing. Clean up resources here.
func (a *App) shutdown(ctx context.Context) {
	a.svc.Chat.Shutdown()

	// Close database connection pool
	if a.dbClose != nil {
		if err := a.dbClose(); err != nil {
			runtime.LogError(ctx, fmt.Sprintf("failed to close database: %v", err))
		} else {
			runtime.LogInfo(ctx, "database closed")
		}
		a.dbClose = nil
	}
}

func (a *App) healthClient() *backend.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.health
}

func (a *App) pingBackend() {
	ctx, cancel := context.WithTimeout(a.ctx, healthTimeout)
	defer cancel()

	client := a.healthClient()
	status, err := client.Health(ctx)
	if err != nil {
		runtime.LogWarning(a.ctx, fmt.Sprintf("backend %s unreachable: %v", client.BaseURL(), err))
		return
	}
	log.Printf("backend %s healthy: %v", client.BaseURL(), status)
}

// CheckHealth pings the chat backend on demand.
func (a *App) CheckHealth() (map[string]any, error) {
	ctx, cancel := context.WithTimeout(a.ctx, healthTimeout)
	defer cancel()
	return a.healthClient().Health(ctx)
}

// SignIn stores the API token in the OS keyring.
func (a *App) SignIn(token string) error {
	if err := a.svc.Auth.SignIn(token); err != nil {
		runtime.LogError(a.ctx, fmt.Sprintf("sign in failed: %v", err))
		return err
	}
	return nil
}

func (a *App) SignOut() error {
	return a.svc.Auth.SignOut()
}

func (a *App) IsSignedIn() bool {
	return a.svc.Auth.IsSignedIn()
}

// GetAppSettings returns the current application settings
func (a *App) GetAppSettings() (*models.AppSettings, error) {
	return a.svc.AppSettings.Get(a.ctx)
}

// UpdateAppSettings saves settings. They apply to conversations opened afterwards.
func (a *App) UpdateAppSettings(apiBaseURL string, maxMessages int, persistHistory bool) (*models.AppSettings, error) {
	settings, err := a.svc.AppSettings.Update(a.ctx, apiBaseURL, maxMessages, persistHistory)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.health = backend.NewClient(settings.APIBaseURL)
	a.mu.Unlock()
	return settings, nil
}
