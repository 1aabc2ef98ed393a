package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/Skotchmaster/storefront/internal/models"
)

func (r *GormRepo) CreateMessage(ctx context.Context, m *models.OrderMessage) error {
	return r.DB.WithContext(ctx).Create(m).Error
}

func (r *GormRepo) ListMessages(ctx context.Context, orderID uuid.UUID) ([]models.OrderMessage, error) {
	msgs := make([]models.OrderMessage, 0)
	if err := r.DB.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}
