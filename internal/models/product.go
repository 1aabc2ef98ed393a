package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"          json:"id"`
	Name        string          `gorm:"not null"                      json:"name"`
	Description string          `gorm:"not null"                      json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null"   json:"price"`
	Image       string          `                                     json:"image,omitempty"`
	Category    string          `gorm:"index"                         json:"category"`
	Featured    bool            `gorm:"default:false"                 json:"featured"`
	InStock     bool            `gorm:"not null"                      json:"in_stock"`
	Rating      *float64        `                                     json:"rating,omitempty"`
	Reviews     int             `gorm:"default:0"                     json:"reviews"`
	Discount    *int            `                                     json:"discount,omitempty"`
	Tags        []string        `gorm:"serializer:json;type:text"     json:"tags,omitempty"`
	CreatedAt   time.Time       `                                     json:"created_at"`
	UpdatedAt   time.Time       `                                     json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (Product) TableName() string {
	return "products"
}

type Category struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"   json:"id"`
	Name      string    `gorm:"not null"               json:"name"`
	Slug      string    `gorm:"uniqueIndex;not null"   json:"slug"`
	Image     string    `                              json:"image,omitempty"`
	CreatedAt time.Time `                              json:"created_at"`
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (Category) TableName() string {
	return "categories"
}

// CategoryCount is a category together with the number of products filed
// under its slug.
type CategoryCount struct {
	Category
	Count int64 `json:"count"`
}
