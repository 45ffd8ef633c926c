package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm-service/internal/model"
	"crm-service/pkg/clock"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CategorySummary is a category with the number of products in it
type CategorySummary struct {
	model.CategoryView
	ProductCount       int64 `json:"product_count"`
	ActiveProductCount int64 `json:"active_product_count"`
}

// ProductInput is a catalog product submission. IsActive defaults to true.
type ProductInput struct {
	CategoryID  uint
	Name        string
	Description string
	Price       *decimal.Decimal
	IsActive    *bool
}

// ProductFilter narrows the product list
type ProductFilter struct {
	CategoryID *uint
	Active     *bool
}

// CatalogService manages categories and products
type CatalogService struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewCatalogService creates a catalog service
func NewCatalogService(db *gorm.DB, clk clock.Clock) *CatalogService {
	return &CatalogService{db: db, clock: clk}
}

// ListCategories returns every category with product counts
func (s *CatalogService) ListCategories(ctx context.Context) ([]CategorySummary, error) {
	defer prometheus.TrackDBOperation("category_list")(time.Now())
	db := s.db.WithContext(ctx)

	var categories []model.Category
	if err := db.Order("id").Find(&categories).Error; err != nil {
		return nil, err
	}

	type countRow struct {
		CategoryID uint
		Total      int64
		Active     int64
	}
	var rows []countRow
	if err := db.Model(&model.Product{}).
		Select("category_id, COUNT(*) AS total, SUM(CASE WHEN is_active THEN 1 ELSE 0 END) AS active").
		Group("category_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	counts := make(map[uint]countRow, len(rows))
	for _, r := range rows {
		counts[r.CategoryID] = r
	}

	summaries := make([]CategorySummary, 0, len(categories))
	for _, c := range categories {
		summaries = append(summaries, CategorySummary{
			CategoryView:       model.NewCategoryView(c),
			ProductCount:       counts[c.ID].Total,
			ActiveProductCount: counts[c.ID].Active,
		})
	}
	return summaries, nil
}

// ListProducts returns catalog products ordered by category and name
func (s *CatalogService) ListProducts(ctx context.Context, f ProductFilter) ([]model.Product, error) {
	log := logger.FromContext(ctx)
	defer prometheus.TrackDBOperation("product_list")(time.Now())

	query := s.db.WithContext(ctx).Preload("Category")
	if f.CategoryID != nil {
		query = query.Where("category_id = ?", *f.CategoryID)
	}
	if f.Active != nil {
		query = query.Where("is_active = ?", *f.Active)
	}

	var products []model.Product
	if err := query.Order("category_id").Order("name").Find(&products).Error; err != nil {
		log.Error("Failed to list products", zap.Error(err))
		return nil, err
	}
	return products, nil
}

// GetProduct returns a single product with its category
func (s *CatalogService) GetProduct(ctx context.Context, id uint) (*model.Product, error) {
	var product model.Product
	err := s.db.WithContext(ctx).Preload("Category").First(&product, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateProduct adds a product to a category
func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	log := logger.FromContext(ctx)
	defer prometheus.TrackDBOperation("product_create")(time.Now())

	product := model.Product{CreatedAt: s.clock.Now()}
	if err := s.applyProduct(ctx, &product, in); err != nil {
		log.Warn("Rejected product creation", zap.String("name", in.Name), zap.Error(err))
		return nil, err
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&product).Error; err != nil {
		log.Error("Failed to create product", zap.String("name", product.Name), zap.Error(err))
		return nil, err
	}

	prometheus.RecordCatalogOperation("create")
	log.Info("Product created successfully",
		zap.Uint("product_id", product.ID),
		zap.Uint("category_id", product.CategoryID),
		zap.String("name", product.Name))
	return s.GetProduct(ctx, product.ID)
}

// UpdateProduct replaces the fields of a product
func (s *CatalogService) UpdateProduct(ctx context.Context, id uint, in ProductInput) (*model.Product, error) {
	log := logger.FromContext(ctx).With(zap.Uint("product_id", id))
	defer prometheus.TrackDBOperation("product_update")(time.Now())

	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyProduct(ctx, product, in); err != nil {
		log.Warn("Rejected product update", zap.Error(err))
		return nil, err
	}
	product.Category = nil
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(product).Error; err != nil {
		log.Error("Failed to update product", zap.Error(err))
		return nil, err
	}

	prometheus.RecordCatalogOperation("update")
	log.Info("Product updated successfully", zap.String("name", product.Name))
	return s.GetProduct(ctx, id)
}

// DeleteProduct removes a product and the lead interest recorded against it.
// The lead payloads keep their copy of the product name.
func (s *CatalogService) DeleteProduct(ctx context.Context, id uint) error {
	log := logger.FromContext(ctx).With(zap.Uint("product_id", id))
	defer prometheus.TrackDBOperation("product_delete")(time.Now())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product model.Product
		if err := tx.First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&model.LeadProduct{}).Error; err != nil {
			return fmt.Errorf("delete lead products: %w", err)
		}
		return tx.Delete(&product).Error
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error("Failed to delete product", zap.Error(err))
		}
		return err
	}

	prometheus.RecordCatalogOperation("delete")
	log.Info("Product deleted successfully")
	return nil
}

func (s *CatalogService) applyProduct(ctx context.Context, product *model.Product, in ProductInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return validationf("Product name is required.")
	}
	if in.Price != nil && in.Price.IsNegative() {
		return validationf("Price cannot be negative.")
	}

	db := s.db.WithContext(ctx)
	var category model.Category
	if err := db.First(&category, in.CategoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return validationf("Unknown category %d.", in.CategoryID)
		}
		return err
	}

	var count int64
	if err := db.Model(&model.Product{}).
		Where("category_id = ? AND name = ? AND id <> ?", category.ID, name, product.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("product %q in %s: %w", name, category.DisplayName(), ErrConflict)
	}

	product.CategoryID = category.ID
	product.Name = name
	product.Description = strings.TrimSpace(in.Description)
	product.Price = decimal.NullDecimal{}
	if in.Price != nil {
		product.Price = decimal.NewNullDecimal(in.Price.Round(2))
	}
	product.IsActive = true
	if in.IsActive != nil {
		product.IsActive = *in.IsActive
	}
	return nil
}
