package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// AffiliateApplication rows are unique per user among non-rejected
// applications; a rejected user may apply again.
type AffiliateApplication struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey"                                                 json:"id"`
	UserID    uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_affiliate_active,where:status <> 'rejected'" json:"user_id"`
	Status    ApplicationStatus `gorm:"type:varchar(16);not null;index"                                      json:"status"`
	Reason    *string           `                                                                            json:"reason,omitempty"`
	CreatedAt time.Time         `                                                                            json:"created_at"`
	UpdatedAt time.Time         `                                                                            json:"updated_at"`
}

func (a *AffiliateApplication) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (AffiliateApplication) TableName() string {
	return "affiliate_applications"
}

type UserRole struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"          json:"user_id"`
	Role      string    `gorm:"type:varchar(32);primaryKey"   json:"role"`
	CreatedAt time.Time `                                     json:"created_at"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

type SiteSetting struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)"   json:"key"`
	Value     string    `gorm:"type:text;not null"            json:"value"`
	UpdatedAt time.Time `                                     json:"updated_at"`
}

func (SiteSetting) TableName() string {
	return "site_settings"
}
