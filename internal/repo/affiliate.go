package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/storefront/internal/models"
)

// ActiveApplication returns the user's pending or approved application.
func (r *GormRepo) ActiveApplication(ctx context.Context, userID uuid.UUID) (*models.AffiliateApplication, error) {
	var app models.AffiliateApplication
	if err := r.DB.WithContext(ctx).
		Where("user_id = ? AND status <> ?", userID, models.ApplicationRejected).
		First(&app).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *GormRepo) LatestApplication(ctx context.Context, userID uuid.UUID) (*models.AffiliateApplication, error) {
	var app models.AffiliateApplication
	if err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&app).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *GormRepo) GetApplication(ctx context.Context, id uuid.UUID) (*models.AffiliateApplication, error) {
	var app models.AffiliateApplication
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&app).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *GormRepo) CreateApplication(ctx context.Context, app *models.AffiliateApplication) error {
	return r.DB.WithContext(ctx).Create(app).Error
}

func (r *GormRepo) ListApplications(ctx context.Context, status models.ApplicationStatus) ([]models.AffiliateApplication, error) {
	q := r.DB.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	apps := make([]models.AffiliateApplication, 0)
	if err := q.Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *GormRepo) CountApplications(ctx context.Context, status models.ApplicationStatus) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.AffiliateApplication{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

// ReviewApplication decides a pending application. It reports false when
// the application was no longer pending.
func (r *GormRepo) ReviewApplication(ctx context.Context, id uuid.UUID, to models.ApplicationStatus, reason *string) (bool, error) {
	updates := map[string]any{"status": to}
	if reason != nil {
		updates["reason"] = *reason
	}
	res := r.DB.WithContext(ctx).
		Model(&models.AffiliateApplication{}).
		Where("id = ? AND status = ?", id, models.ApplicationPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) GrantRole(ctx context.Context, userID uuid.UUID, role string) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UserRole{UserID: userID, Role: role}).Error
}

// RolesFor lists roles granted in the database, on top of the token role.
func (r *GormRepo) RolesFor(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var roles []string
	if err := r.DB.WithContext(ctx).
		Model(&models.UserRole{}).
		Where("user_id = ?", userID).
		Order("role ASC").
		Pluck("role", &roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}
