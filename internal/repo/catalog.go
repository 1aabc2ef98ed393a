package repo

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/models"
)

type ProductSort string

const (
	SortFeatured  ProductSort = "featured"
	SortPriceAsc  ProductSort = "price-asc"
	SortPriceDesc ProductSort = "price-desc"
	SortName      ProductSort = "name"
	SortRating    ProductSort = "rating"
	// SortRelevance keeps the search index ranking; without an index it
	// falls back to the featured order.
	SortRelevance ProductSort = "relevance"
)

var productOrder = map[ProductSort]string{
	SortFeatured:  "featured DESC, created_at DESC",
	SortPriceAsc:  "price ASC, name ASC",
	SortPriceDesc: "price DESC, name ASC",
	SortName:      "name ASC",
	SortRating:    "rating IS NULL, rating DESC, reviews DESC",
	SortRelevance: "featured DESC, created_at DESC",
}

func (s ProductSort) Valid() bool {
	_, ok := productOrder[s]
	return ok
}

type ProductFilter struct {
	IDs          []uuid.UUID
	Categories   []string
	Query        string
	FeaturedOnly bool
	DealsOnly    bool
	InStockOnly  bool
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	Sort         ProductSort
	Offset       int
	Limit        int
}

func (f ProductFilter) apply(q *gorm.DB) *gorm.DB {
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if len(f.Categories) > 0 {
		q = q.Where("category IN ?", f.Categories)
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(tags) LIKE ?", like, like, like)
	}
	if f.FeaturedOnly {
		q = q.Where("featured = ?", true)
	}
	if f.DealsOnly {
		q = q.Where("discount > 0")
	}
	if f.InStockOnly {
		q = q.Where("in_stock = ?", true)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	return q
}

func (r *GormRepo) ListProducts(ctx context.Context, f ProductFilter) (int64, []models.Product, error) {
	var total int64
	if err := f.apply(r.DB.WithContext(ctx).Model(&models.Product{})).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	order, ok := productOrder[f.Sort]
	if !ok {
		order = productOrder[SortFeatured]
	}
	q := f.apply(r.DB.WithContext(ctx).Model(&models.Product{})).Order(order).Order("id ASC")
	if f.Limit > 0 {
		q = q.Offset(f.Offset).Limit(f.Limit)
	}

	items := make([]models.Product, 0)
	if err := q.Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// ProductsByID returns the products that still exist, keyed by id.
func (r *GormRepo) ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []models.Product
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, p := range items {
		out[p.ID] = p
	}
	return out, nil
}

func (r *GormRepo) CreateProduct(ctx context.Context, prod *models.Product) (*models.Product, error) {
	if err := r.DB.WithContext(ctx).Create(prod).Error; err != nil {
		return nil, err
	}
	return prod, nil
}

func (r *GormRepo) SaveProduct(ctx context.Context, prod *models.Product) error {
	return r.DB.WithContext(ctx).Save(prod).Error
}

func (r *GormRepo) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	res := r.DB.WithContext(ctx).Delete(&models.Product{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormRepo) ListCategories(ctx context.Context) ([]models.CategoryCount, error) {
	var cats []models.Category
	if err := r.DB.WithContext(ctx).Order("name ASC").Find(&cats).Error; err != nil {
		return nil, err
	}

	var counts []struct {
		Category string
		N        int64
	}
	if err := r.DB.WithContext(ctx).Model(&models.Product{}).
		Select("category, COUNT(*) AS n").
		Group("category").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	bySlug := make(map[string]int64, len(counts))
	for _, c := range counts {
		bySlug[c.Category] = c.N
	}

	out := make([]models.CategoryCount, 0, len(cats))
	for _, c := range cats {
		out = append(out, models.CategoryCount{Category: c, Count: bySlug[c.Slug]})
	}
	return out, nil
}

func (r *GormRepo) GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var c models.Category
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormRepo) CreateCategory(ctx context.Context, c *models.Category) error {
	return r.DB.WithContext(ctx).Create(c).Error
}

func (r *GormRepo) SaveCategory(ctx context.Context, c *models.Category) error {
	return r.DB.WithContext(ctx).Save(c).Error
}

func (r *GormRepo) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	res := r.DB.WithContext(ctx).Delete(&models.Category{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
