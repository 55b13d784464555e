package models

import "time"

type AppSettings struct {
	ID             uint      `gorm:"primaryKey" json:"id"` // single-row table (ID=1)
	Version        int       `gorm:"not null;default:1" json:"version"`
	APIBaseURL     string    `gorm:"size:512;not null" json:"apiBaseUrl"`
	MaxMessages    int       `gorm:"not null;default:100" json:"maxMessages"`
	PersistHistory bool      `gorm:"not null" json:"persistHistory"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
