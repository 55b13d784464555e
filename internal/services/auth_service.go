package services

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// TokenStore is where the bearer token lives between runs.
type TokenStore interface {
	StoreToken(token string) error
	GetToken() (string, error)
	DeleteToken() error
}

// AuthService is the chat sessions' view of the signed-in user. The token is
// cached in memory; a forced refresh re-reads the store.
type AuthService struct {
	store TokenStore

	mu     sync.RWMutex
	token  string
	loaded bool
}

func NewAuthService(store TokenStore) *AuthService {
	return &AuthService{store: store}
}

func (a *AuthService) SignIn(token string) error {
	if err := a.store.StoreToken(token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	stored, err := a.store.GetToken()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	a.mu.Lock()
	a.token = stored
	a.loaded = true
	a.mu.Unlock()
	return nil
}

func (a *AuthService) SignOut() error {
	a.mu.Lock()
	a.token = ""
	a.loaded = true
	a.mu.Unlock()
	if err := a.store.DeleteToken(); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (a *AuthService) IsSignedIn() bool {
	token, err := a.GetToken(context.Background(), false)
	return err == nil && token != ""
}

func (a *AuthService) GetToken(ctx context.Context, forceRefresh bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.RLock()
	token, loaded := a.token, a.loaded
	a.mu.RUnlock()
	if loaded && !forceRefresh {
		return token, nil
	}

	token, err := a.store.GetToken()
	if err != nil {
		log.Printf("auth: token lookup failed: %v", err)
		return "", err
	}
	a.mu.Lock()
	a.token = token
	a.loaded = true
	a.mu.Unlock()
	return token, nil
}

// Token matches backend.TokenFunc for the shared HTTP transport.
func (a *AuthService) Token(ctx context.Context) (string, error) {
	return a.GetToken(ctx, false)
}
