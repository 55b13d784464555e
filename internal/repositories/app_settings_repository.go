package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"designchat/internal/models"
)

type AppSettingsRepository interface {
	Get(ctx context.Context) (*models.AppSettings, error)
	Update(ctx context.Context, settings *models.AppSettings) error
}

type appSettingsRepository struct {
	db       *gorm.DB
	defaults models.AppSettings
}

// NewAppSettingsRepository returns a repository that falls back to defaults
// until settings are saved for the first time.
func NewAppSettingsRepository(db *gorm.DB, defaults models.AppSettings) AppSettingsRepository {
	defaults.ID = 1
	if defaults.Version == 0 {
		defaults.Version = 1
	}
	return &appSettingsRepository{db: db, defaults: defaults}
}

func (r *appSettingsRepository) Get(ctx context.Context) (*models.AppSettings, error) {
	var settings models.AppSettings
	if err := r.db.WithContext(ctx).First(&settings, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			d := r.defaults
			return &d, nil
		}
		return nil, err
	}
	return &settings, nil
}

func (r *appSettingsRepository) Update(ctx context.Context, settings *models.AppSettings) error {
	// Ensure ID is set to 1 for single-row table
	settings.ID = 1
	return r.db.WithContext(ctx).Save(settings).Error
}
