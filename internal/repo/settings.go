package repo

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/storefront/internal/models"
)

func (r *GormRepo) AllSettings(ctx context.Context) ([]models.SiteSetting, error) {
	settings := make([]models.SiteSetting, 0)
	if err := r.DB.WithContext(ctx).Order("key ASC").Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

func (r *GormRepo) UpsertSetting(ctx context.Context, key, value string) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&models.SiteSetting{Key: key, Value: value}).Error
}
