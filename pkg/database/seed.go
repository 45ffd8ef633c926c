package database

import (
	"errors"
	"fmt"
	"io"
	"os"

	"crm-service/internal/model"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// CatalogFile is the YAML layout of a product seed file:
//
//	categories:
//	  sofa:
//	    - name: Chesterfield
//	      price: "45000"
type CatalogFile struct {
	Categories map[string][]CatalogProduct `yaml:"categories"`
}

// CatalogProduct is one product entry of the seed file
type CatalogProduct struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Inactive    bool   `yaml:"inactive"`
}

// SeedCatalogFile loads products from a YAML file on disk
func SeedCatalogFile(conn *gorm.DB, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open catalog file: %w", err)
	}
	defer f.Close()
	return SeedCatalog(conn, f)
}

// SeedCatalog creates the products listed in r that do not exist yet and
// returns how many were created. Existing products are left untouched.
func SeedCatalog(conn *gorm.DB, r io.Reader) (int, error) {
	var file CatalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decode catalog: %w", err)
	}

	created := 0
	err := conn.Transaction(func(tx *gorm.DB) error {
		for categoryName, products := range file.Categories {
			name := model.CategoryName(categoryName)
			if !name.Valid() {
				return fmt.Errorf("unknown category %q in catalog", categoryName)
			}
			var category model.Category
			if err := tx.Where("name = ?", name).First(&category).Error; err != nil {
				return fmt.Errorf("look up category %s: %w", name, err)
			}

			for _, p := range products {
				if p.Name == "" {
					return fmt.Errorf("product without name in category %s", name)
				}
				product := model.Product{
					CategoryID:  category.ID,
					Name:        p.Name,
					Description: p.Description,
					IsActive:    !p.Inactive,
				}
				if p.Price != "" {
					price, err := decimal.NewFromString(p.Price)
					if err != nil || price.IsNegative() {
						return fmt.Errorf("invalid price %q for %s", p.Price, p.Name)
					}
					product.Price = decimal.NewNullDecimal(price)
				}

				var count int64
				if err := tx.Model(&model.Product{}).
					Where("category_id = ? AND name = ?", category.ID, p.Name).
					Count(&count).Error; err != nil {
					return fmt.Errorf("look up product %s: %w", p.Name, err)
				}
				if count > 0 {
					continue
				}
				if err := tx.Create(&product).Error; err != nil {
					return fmt.Errorf("seed product %s: %w", p.Name, err)
				}
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}
