package handler

import (
	"net/http"
	"strconv"

	"crm-service/internal/service"
	"crm-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductRequest defines the structure for product creation/update requests
type ProductRequest struct {
	CategoryID  uint             `json:"category_id" validate:"required"`
	Name        string           `json:"name" validate:"required,max=200"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	IsActive    *bool            `json:"is_active"`
}

func (r ProductRequest) toInput() service.ProductInput {
	return service.ProductInput{
		CategoryID:  r.CategoryID,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		IsActive:    r.IsActive,
	}
}

// ListCategories handles retrieving all categories with product counts
func (h *Handler) ListCategories(c echo.Context) error {
	categories, err := h.Catalog.ListCategories(c.Request().Context())
	if err != nil {
		return fail(c, err, "Category not found")
	}
	return c.JSON(http.StatusOK, categories)
}

// ListProducts handles retrieving all products with optional filtering
func (h *Handler) ListProducts(c echo.Context) error {
	log := logger.FromEcho(c)
	var filter service.ProductFilter

	// Filter by active status if specified
	if isActive := c.QueryParam("is_active"); isActive != "" {
		active, err := strconv.ParseBool(isActive)
		if err == nil {
			filter.Active = &active
		} else {
			log.Warn("Invalid is_active parameter", zap.String("value", isActive), zap.Error(err))
		}
	}

	// Filter by category if specified
	if categoryID := c.QueryParam("category_id"); categoryID != "" {
		id, err := strconv.ParseUint(categoryID, 10, 64)
		if err != nil {
			log.Warn("Invalid category_id parameter", zap.String("value", categoryID), zap.Error(err))
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid category_id"})
		}
		cid := uint(id)
		filter.CategoryID = &cid
	}

	products, err := h.Catalog.ListProducts(c.Request().Context(), filter)
	if err != nil {
		return fail(c, err, "Product not found")
	}
	log.Info("Products retrieved successfully", zap.Int("count", len(products)))
	return c.JSON(http.StatusOK, products)
}

// GetProduct handles retrieving a single product by ID
func (h *Handler) GetProduct(c echo.Context) error {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Product not found"})
	}
	product, err := h.Catalog.GetProduct(c.Request().Context(), id)
	if err != nil {
		return fail(c, err, "Product not found")
	}
	return c.JSON(http.StatusOK, product)
}

// CreateProduct handles creating a new product
func (h *Handler) CreateProduct(c echo.Context) error {
	log := logger.FromEcho(c)

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	product, err := h.Catalog.CreateProduct(c.Request().Context(), req.toInput())
	if err != nil {
		return fail(c, err, "Product not found")
	}
	return c.JSON(http.StatusCreated, product)
}

// UpdateProduct handles updating an existing product
func (h *Handler) UpdateProduct(c echo.Context) error {
	log := logger.FromEcho(c)
	id, ok := parseUintParam(c, "id")
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Product not found"})
	}

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Invalid request data", zap.Uint("product_id", id), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	product, err := h.Catalog.UpdateProduct(c.Request().Context(), id, req.toInput())
	if err != nil {
		return fail(c, err, "Product not found")
	}
	return c.JSON(http.StatusOK, product)
}

// DeleteProduct handles removing a product
func (h *Handler) DeleteProduct(c echo.Context) error {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Product not found"})
	}
	if err := h.Catalog.DeleteProduct(c.Request().Context(), id); err != nil {
		return fail(c, err, "Product not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Product deleted successfully"})
}
