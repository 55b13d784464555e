// Package config reads process configuration from the environment, after
// loading an optional .env file at the project root.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"designchat/internal/backend"
	"designchat/internal/chat"
	"designchat/internal/database"
	"designchat/internal/utils"
)

const (
	EnvAPIURL                = "DESIGNCHAT_API_URL"
	EnvDBPath                = "DESIGNCHAT_DB_PATH"
	EnvMaxMessages           = "DESIGNCHAT_MAX_MESSAGES"
	EnvResponseHeaderTimeout = "DESIGNCHAT_RESPONSE_HEADER_TIMEOUT"
	EnvMaxSessions           = "DESIGNCHAT_MAX_SESSIONS"

	DefaultMaxSessions = 16
)

type Config struct {
	APIBaseURL            string
	DBPath                string
	MaxMessages           int
	ResponseHeaderTimeout time.Duration
	MaxSessions           int
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		APIBaseURL:            backend.DefaultBaseURL,
		DBPath:                database.GetDefaultDBPath(),
		MaxMessages:           chat.DefaultMaxMessages,
		ResponseHeaderTimeout: backend.DefaultResponseHeaderTimeout,
		MaxSessions:           DefaultMaxSessions,
	}
}

// Load reads .env (a missing file is fine) and then the environment.
func Load() (Config, error) {
	if err := utils.LoadEnv(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, falling back to Default for unset keys.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if v, ok := nonEmpty(lookup, EnvAPIURL); ok {
		cfg.APIBaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := nonEmpty(lookup, EnvDBPath); ok {
		cfg.DBPath = v
	}
	if v, ok := nonEmpty(lookup, EnvMaxMessages); ok {
		n, err := positiveInt(EnvMaxMessages, v)
		if err != nil {
			return cfg, err
		}
		cfg.MaxMessages = n
	}
	if v, ok := nonEmpty(lookup, EnvResponseHeaderTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("%s: invalid duration %q", EnvResponseHeaderTimeout, v)
		}
		cfg.ResponseHeaderTimeout = d
	}
	if v, ok := nonEmpty(lookup, EnvMaxSessions); ok {
		n, err := positiveInt(EnvMaxSessions, v)
		if err != nil {
			return cfg, err
		}
		cfg.MaxSessions = n
	}
	return cfg, nil
}

func nonEmpty(lookup func(string) (string, bool), key string) (string, bool) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func positiveInt(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: must be a positive integer, got %q", key, v)
	}
	return n, nil
}
