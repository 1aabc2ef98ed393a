package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusDelivered, OrderStatusCancelled},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is one purchased cart line. Name and unit price are copied from the
// product at checkout and never follow later catalog edits.
type Order struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"                         json:"id"`
	UserID        uuid.UUID       `gorm:"type:uuid;index;not null"                     json:"user_id"`
	ProductID     uuid.UUID       `gorm:"type:uuid;not null"                           json:"product_id"`
	ProductName   string          `gorm:"not null"                                     json:"product_name"`
	ProductPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null"                  json:"product_price"`
	Quantity      int             `gorm:"not null;check:quantity>0"                    json:"quantity"`
	TotalPrice    decimal.Decimal `gorm:"type:numeric(12,2);not null"                  json:"total_price"`
	Status        OrderStatus     `gorm:"type:varchar(16);index;not null"              json:"status"`
	TicketMessage *string         `                                                    json:"ticket_message,omitempty"`
	CheckoutKey   string          `gorm:"index:idx_orders_checkout;type:varchar(64)"   json:"-"`
	CreatedAt     time.Time       `gorm:"index;not null"                               json:"created_at"`
	UpdatedAt     time.Time       `                                                    json:"updated_at"`
	DeliveredAt   *time.Time      `                                                    json:"delivered_at,omitempty"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (Order) TableName() string {
	return "orders"
}

type OrderMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"              json:"id"`
	OrderID   uuid.UUID `gorm:"type:uuid;index;not null"          json:"order_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null"                json:"user_id"`
	Message   string    `gorm:"type:text;not null"                json:"message"`
	IsAdmin   bool      `gorm:"not null;default:false"            json:"is_admin"`
	CreatedAt time.Time `gorm:"index;not null"                    json:"created_at"`
}

func (m *OrderMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (OrderMessage) TableName() string {
	return "order_messages"
}
