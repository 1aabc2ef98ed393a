package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/internal/models"
)

type OrderFilter struct {
	UserID *uuid.UUID
	Status models.OrderStatus
	Offset int
	Limit  int
}

func (r *GormRepo) CreateOrders(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Create(&orders).Error
}

func (r *GormRepo) OrdersByCheckoutKey(ctx context.Context, userID uuid.UUID, key string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.DB.WithContext(ctx).
		Where("user_id = ? AND checkout_key = ?", userID, key).
		Order("created_at ASC, id ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *GormRepo) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *GormRepo) ListOrders(ctx context.Context, f OrderFilter) (int64, []models.Order, error) {
	q := r.DB.WithContext(ctx).Model(&models.Order{})
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, err
	}

	q = q.Order("created_at DESC, id ASC")
	if f.Limit > 0 {
		q = q.Offset(f.Offset).Limit(f.Limit)
	}
	orders := make([]models.Order, 0)
	if err := q.Find(&orders).Error; err != nil {
		return 0, nil, err
	}
	return total, orders, nil
}

// TransitionOrder moves an order from one status to another and reports
// false when the row was no longer in the from status.
func (r *GormRepo) TransitionOrder(ctx context.Context, id uuid.UUID, from, to models.OrderStatus, ticket *string, deliveredAt *time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	if ticket != nil {
		updates["ticket_message"] = *ticket
	}
	if deliveredAt != nil {
		updates["delivered_at"] = *deliveredAt
	}

	res := r.DB.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type OrderStats struct {
	TotalOrders int64                        `json:"total_orders"`
	Revenue     decimal.Decimal              `json:"total_revenue"`
	Customers   int64                        `json:"total_customers"`
	ByStatus    map[models.OrderStatus]int64 `json:"by_status"`
}

func (r *GormRepo) OrderStats(ctx context.Context) (OrderStats, error) {
	stats := OrderStats{ByStatus: make(map[models.OrderStatus]int64)}
	db := r.DB.WithContext(ctx)

	if err := db.Model(&models.Order{}).Count(&stats.TotalOrders).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.Order{}).Select("COALESCE(SUM(total_price), 0)").Row().Scan(&stats.Revenue); err != nil {
		return stats, err
	}
	if err := db.Model(&models.Order{}).Distinct("user_id").Count(&stats.Customers).Error; err != nil {
		return stats, err
	}

	var rows []struct {
		Status models.OrderStatus
		N      int64
	}
	if err := db.Model(&models.Order{}).Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return stats, err
	}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.N
	}
	return stats, nil
}

func (r *GormRepo) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Product{}).Count(&n).Error
	return n, err
}
