package services

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	serviceName  = "designchat"
	tokenAccount = "api-token"
)

var ErrTokenEmpty = errors.New("token is empty")

// KeyringService keeps the API bearer token in the OS credential store.
type KeyringService struct {
	account string
}

func NewKeyringService() *KeyringService {
	return &KeyringService{account: tokenAccount}
}

func (s *KeyringService) StoreToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenEmpty
	}
	return keyring.Set(serviceName, s.account, token)
}

// GetToken returns "" and no error when nothing is stored.
func (s *KeyringService) GetToken() (string, error) {
	token, err := keyring.Get(serviceName, s.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *KeyringService) DeleteToken() error {
	err := keyring.Delete(serviceName, s.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func (s *KeyringService) HasToken() bool {
	token, err := s.GetToken()
	return err == nil && token != ""
}
