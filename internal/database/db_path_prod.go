//go:build prod

package database

import (
	"log"
	"os"
	"path/filepath"
)

const dbFile = "designchat.db"

// GetDefaultDBPath keeps the database in the user's config directory so
// conversations survive app updates.
func GetDefaultDBPath() string {
	dir, err := appDataDir()
	if err != nil {
		log.Printf("database: no app data dir (%v), using %s in the working directory", err, dbFile)
		return dbFile
	}
	return filepath.Join(dir, dbFile)
}

func appDataDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(configDir, "designchat")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func IsDevelopment() bool {
	return false
}
