package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/realtime"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/util"
)

// maxSearchHits bounds how many ids a full-text query may hand to the
// database filter. Hits past it are not listed.
const maxSearchHits = 500

type SearchIndex interface {
	Put(ctx context.Context, p models.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, query string, from, size int) (int64, []uuid.UUID, error)
}

type CatalogService struct {
	Repo   *repo.GormRepo
	Search SearchIndex
	Events realtime.Publisher
}

type ListProductsRequest struct {
	Categories []string
	Query      string
	Featured   bool
	Deals      bool
	InStock    bool
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Sort       string
	Page       int
	Size       int
}

type ProductPage struct {
	Data []models.Product `json:"data"`
	Meta util.PageMeta    `json:"meta"`
}

func (s *CatalogService) ListProducts(ctx context.Context, req ListProductsRequest) (*ProductPage, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.list_products")

	sort := repo.ProductSort(req.Sort)
	if req.Sort == "" {
		sort = repo.SortFeatured
		if strings.TrimSpace(req.Query) != "" {
			sort = repo.SortRelevance
		}
	}
	if !sort.Valid() {
		return nil, fmt.Errorf("%w: unknown sort %q", ErrValidation, req.Sort)
	}
	if req.MinPrice != nil && req.MaxPrice != nil && req.MinPrice.GreaterThan(*req.MaxPrice) {
		return nil, fmt.Errorf("%w: min price above max price", ErrValidation)
	}

	offset, limit := util.Calculate(req.Page, req.Size)
	filter := repo.ProductFilter{
		Categories:   req.Categories,
		Query:        strings.TrimSpace(req.Query),
		FeaturedOnly: req.Featured,
		DealsOnly:    req.Deals,
		InStockOnly:  req.InStock,
		MinPrice:     req.MinPrice,
		MaxPrice:     req.MaxPrice,
		Sort:         sort,
		Offset:       offset,
		Limit:        limit,
	}

	if filter.Query != "" && s.Search != nil {
		hits, ids, err := s.Search.Search(ctx, filter.Query, 0, maxSearchHits)
		if err != nil {
			l.Warn("search_index_error", "error", err, "fallback", "like")
		} else {
			if hits > int64(len(ids)) {
				l.Info("search_hits_capped", "hits", hits, "kept", len(ids))
			}
			if len(ids) == 0 {
				return &ProductPage{Data: []models.Product{}, Meta: util.Meta(req.Page, offset, limit, 0)}, nil
			}
			filter.IDs = ids
			filter.Query = ""
			if sort == repo.SortRelevance {
				return s.rankedPage(ctx, filter, ids, req.Page, offset, limit)
			}
		}
	}

	total, items, err := s.Repo.ListProducts(ctx, filter)
	if err != nil {
		l.Error("list_products_error", "status", 500, "error", err)
		return nil, err
	}
	return &ProductPage{Data: items, Meta: util.Meta(req.Page, offset, limit, total)}, nil
}

// rankedPage lists the filtered hits in index order, which an id filter in
// SQL cannot express. The hit list is bounded by maxSearchHits, so the page
// is cut in memory.
func (s *CatalogService) rankedPage(ctx context.Context, filter repo.ProductFilter, ids []uuid.UUID, page, offset, limit int) (*ProductPage, error) {
	filter.Offset, filter.Limit = 0, 0
	_, items, err := s.Repo.ListProducts(ctx, filter)
	if err != nil {
		logging.FromContext(ctx).Error("list_products_error", "status", 500, "error", err)
		return nil, err
	}

	rank := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		rank[id] = i
	}
	slices.SortStableFunc(items, func(a, b models.Product) int {
		return rank[a.ID] - rank[b.ID]
	})

	start := min(offset, len(items))
	end := min(start+limit, len(items))
	return &ProductPage{Data: items[start:end], Meta: util.Meta(page, offset, limit, int64(len(items)))}, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		return nil, notFound(err, "product")
	}
	return p, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.CategoryCount, error) {
	return s.Repo.ListCategories(ctx)
}

type ProductInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Image       *string          `json:"image"`
	Category    *string          `json:"category"`
	Featured    *bool            `json:"featured"`
	InStock     *bool            `json:"in_stock"`
	Rating      *float64         `json:"rating"`
	Reviews     *int             `json:"reviews"`
	Discount    *int             `json:"discount"`
	Tags        []string         `json:"tags"`
}

func (in ProductInput) applyTo(p *models.Product) error {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Image != nil {
		p.Image = *in.Image
	}
	if in.Category != nil {
		p.Category = strings.TrimSpace(*in.Category)
	}
	if in.Featured != nil {
		p.Featured = *in.Featured
	}
	if in.InStock != nil {
		p.InStock = *in.InStock
	}
	if in.Rating != nil {
		p.Rating = in.Rating
	}
	if in.Reviews != nil {
		p.Reviews = *in.Reviews
	}
	if in.Discount != nil {
		p.Discount = in.Discount
	}
	if in.Tags != nil {
		p.Tags = in.Tags
	}

	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrValidation)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price cannot be negative", ErrValidation)
	case p.Discount != nil && (*p.Discount < 0 || *p.Discount > 100):
		return fmt.Errorf("%w: discount must be between 0 and 100", ErrValidation)
	case p.Rating != nil && (*p.Rating < 0 || *p.Rating > 5):
		return fmt.Errorf("%w: rating must be between 0 and 5", ErrValidation)
	case p.Reviews < 0:
		return fmt.Errorf("%w: reviews cannot be negative", ErrValidation)
	}
	return nil
}

func requireCatalog(p auth.Principal) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	if !p.Can(auth.CapManageCatalog) {
		return ErrForbidden
	}
	return nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, p auth.Principal, in ProductInput) (*models.Product, error) {
	if err := requireCatalog(p); err != nil {
		return nil, err
	}
	if in.Price == nil {
		return nil, fmt.Errorf("%w: price is required", ErrValidation)
	}
	prod := models.Product{InStock: true}
	if err := in.applyTo(&prod); err != nil {
		return nil, err
	}
	created, err := s.Repo.CreateProduct(ctx, &prod)
	if err != nil {
		return nil, err
	}
	s.productChanged(ctx, realtime.KindInsert, *created)
	return created, nil
}

func (s *CatalogService) PatchProduct(ctx context.Context, p auth.Principal, id uuid.UUID, in ProductInput) (*models.Product, error) {
	if err := requireCatalog(p); err != nil {
		return nil, err
	}
	prod, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		return nil, notFound(err, "product")
	}
	if err := in.applyTo(prod); err != nil {
		return nil, err
	}
	if err := s.Repo.SaveProduct(ctx, prod); err != nil {
		return nil, err
	}
	s.productChanged(ctx, realtime.KindUpdate, *prod)
	return prod, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := requireCatalog(p); err != nil {
		return err
	}
	if err := s.Repo.DeleteProduct(ctx, id); err != nil {
		return notFound(err, "product")
	}
	s.productChanged(ctx, realtime.KindDelete, models.Product{ID: id})
	return nil
}

// productChanged mirrors a committed change into the search index and the
// change feed. Failures are logged; the database row is already final.
func (s *CatalogService) productChanged(ctx context.Context, kind realtime.Kind, prod models.Product) {
	l := logging.FromContext(ctx).With("svc", "catalog.product_changed", "product_id", prod.ID)

	if s.Search != nil {
		var err error
		if kind == realtime.KindDelete {
			err = s.Search.Delete(ctx, prod.ID)
		} else {
			err = s.Search.Put(ctx, prod)
		}
		if err != nil {
			l.Warn("search_index_error", "error", err)
		}
	}

	if s.Events == nil {
		return
	}
	ev, err := realtime.NewEvent(realtime.TopicProducts, kind, prod.ID.String(), prod)
	if err == nil {
		err = s.Events.Publish(ctx, ev)
	}
	if err != nil {
		l.Warn("product_publish_error", "error", err)
	}
}

// Reindex pushes every product into the search index.
func (s *CatalogService) Reindex(ctx context.Context) (int, error) {
	if s.Search == nil {
		return 0, fmt.Errorf("search index not configured")
	}
	_, items, err := s.Repo.ListProducts(ctx, repo.ProductFilter{Sort: repo.SortName})
	if err != nil {
		return 0, err
	}
	for i, p := range items {
		if err := s.Search.Put(ctx, p); err != nil {
			return i, err
		}
	}
	return len(items), nil
}

type CategoryInput struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Image string `json:"image"`
}

func (in CategoryInput) validate() error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Slug) == "" {
		return fmt.Errorf("%w: name and slug are required", ErrValidation)
	}
	if strings.ContainsAny(in.Slug, " /?#") {
		return fmt.Errorf("%w: slug must not contain spaces or url delimiters", ErrValidation)
	}
	return nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, p auth.Principal, in CategoryInput) (*models.Category, error) {
	if err := requireCatalog(p); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	c := models.Category{Name: strings.TrimSpace(in.Name), Slug: strings.TrimSpace(in.Slug), Image: in.Image}
	if err := s.Repo.CreateCategory(ctx, &c); err != nil {
		return nil, duplicate(err, "category slug")
	}
	return &c, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, p auth.Principal, id uuid.UUID, in CategoryInput) (*models.Category, error) {
	if err := requireCatalog(p); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	c, err := s.Repo.GetCategory(ctx, id)
	if err != nil {
		return nil, notFound(err, "category")
	}
	c.Name, c.Slug, c.Image = strings.TrimSpace(in.Name), strings.TrimSpace(in.Slug), in.Image
	if err := s.Repo.SaveCategory(ctx, c); err != nil {
		return nil, duplicate(err, "category slug")
	}
	return c, nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := requireCatalog(p); err != nil {
		return err
	}
	if err := s.Repo.DeleteCategory(ctx, id); err != nil {
		return notFound(err, "category")
	}
	return nil
}
