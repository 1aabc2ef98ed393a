package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/util"
)

type CatalogHTTP struct {
	Svc *service.CatalogService
}

func (h *CatalogHTTP) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_products")

	req := service.ListProductsRequest{
		Query: c.QueryParam("q"),
		Sort:  c.QueryParam("sort"),
		Page:  util.ParseIntDefault(c.QueryParam("page"), 1),
		Size:  util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize),
	}
	for _, v := range c.QueryParams()["category"] {
		for _, slug := range strings.Split(v, ",") {
			if slug = strings.TrimSpace(slug); slug != "" {
				req.Categories = append(req.Categories, slug)
			}
		}
	}
	req.Featured, _ = strconv.ParseBool(c.QueryParam("featured"))
	req.Deals, _ = strconv.ParseBool(c.QueryParam("deals"))
	req.InStock, _ = strconv.ParseBool(c.QueryParam("in_stock"))

	for param, dst := range map[string]**decimal.Decimal{"min_price": &req.MinPrice, "max_price": &req.MaxPrice} {
		raw := c.QueryParam(param)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return badRequest(l, "get_products", "invalid "+param, err)
		}
		*dst = &d
	}

	page, err := h.Svc.ListProducts(ctx, req)
	if err != nil {
		return fail(l, "get_products", err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *CatalogHTTP) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_product")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "get_product", "invalid product id", err)
	}
	p, err := h.Svc.GetProduct(ctx, id)
	if err != nil {
		return fail(l, "get_product", err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *CatalogHTTP) GetCategories(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_categories")

	cats, err := h.Svc.ListCategories(ctx)
	if err != nil {
		return fail(l, "get_categories", err)
	}
	return c.JSON(http.StatusOK, cats)
}

func (h *CatalogHTTP) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.create_product")

	var in service.ProductInput
	if err := c.Bind(&in); err != nil {
		return badRequest(l, "create_product", "invalid body", err)
	}
	p, err := h.Svc.CreateProduct(ctx, auth.PrincipalFrom(c), in)
	if err != nil {
		return fail(l, "create_product", err)
	}
	l.Info("create_product_success", "product_id", p.ID)
	return c.JSON(http.StatusCreated, p)
}

func (h *CatalogHTTP) PatchProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.patch_product")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "patch_product", "invalid product id", err)
	}
	var in service.ProductInput
	if err := c.Bind(&in); err != nil {
		return badRequest(l, "patch_product", "invalid body", err)
	}
	p, err := h.Svc.PatchProduct(ctx, auth.PrincipalFrom(c), id, in)
	if err != nil {
		return fail(l, "patch_product", err)
	}
	l.Info("patch_product_success", "product_id", p.ID)
	return c.JSON(http.StatusOK, p)
}

func (h *CatalogHTTP) DeleteProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.delete_product")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "delete_product", "invalid product id", err)
	}
	if err := h.Svc.DeleteProduct(ctx, auth.PrincipalFrom(c), id); err != nil {
		return fail(l, "delete_product", err)
	}
	l.Info("delete_product_success", "product_id", id)
	return c.NoContent(http.StatusNoContent)
}

func (h *CatalogHTTP) CreateCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.create_category")

	var in service.CategoryInput
	if err := c.Bind(&in); err != nil {
		return badRequest(l, "create_category", "invalid body", err)
	}
	cat, err := h.Svc.CreateCategory(ctx, auth.PrincipalFrom(c), in)
	if err != nil {
		return fail(l, "create_category", err)
	}
	return c.JSON(http.StatusCreated, cat)
}

func (h *CatalogHTTP) UpdateCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.update_category")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "update_category", "invalid category id", err)
	}
	var in service.CategoryInput
	if err := c.Bind(&in); err != nil {
		return badRequest(l, "update_category", "invalid body", err)
	}
	cat, err := h.Svc.UpdateCategory(ctx, auth.PrincipalFrom(c), id, in)
	if err != nil {
		return fail(l, "update_category", err)
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *CatalogHTTP) DeleteCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.delete_category")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "delete_category", "invalid category id", err)
	}
	if err := h.Svc.DeleteCategory(ctx, auth.PrincipalFrom(c), id); err != nil {
		return fail(l, "delete_category", err)
	}
	return c.NoContent(http.StatusNoContent)
}
