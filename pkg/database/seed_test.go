package database

import (
	"strings"
	"testing"

	"crm-service/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
categories:
  sofa:
    - name: Chesterfield
      description: Tufted three seater
      price: "45000.50"
    - name: L-Shape
  bed:
    - name: Storage Bed
      inactive: true
`

func TestMigrateSeedsCategories(t *testing.T) {
	conn, err := OpenInMemory()
	require.NoError(t, err)

	var categories []model.Category
	require.NoError(t, conn.Order("id").Find(&categories).Error)
	require.Len(t, categories, len(model.CategoryNames))
	for i, name := range model.CategoryNames {
		assert.Equal(t, name, categories[i].Name)
	}

	// Seeding again does not duplicate
	require.NoError(t, SeedCategories(conn))
	var count int64
	require.NoError(t, conn.Model(&model.Category{}).Count(&count).Error)
	assert.Equal(t, int64(len(model.CategoryNames)), count)
}

func TestSeedCatalog(t *testing.T) {
	conn, err := OpenInMemory()
	require.NoError(t, err)

	created, err := SeedCatalog(conn, strings.NewReader(catalogYAML))
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	var chesterfield model.Product
	require.NoError(t, conn.Preload("Category").Where("name = ?", "Chesterfield").First(&chesterfield).Error)
	assert.Equal(t, model.CategorySofa, chesterfield.Category.Name)
	assert.Equal(t, "Tufted three seater", chesterfield.Description)
	require.True(t, chesterfield.Price.Valid)
	assert.True(t, chesterfield.Price.Decimal.Equal(decimal.RequireFromString("45000.50")))
	assert.True(t, chesterfield.IsActive)

	var storageBed model.Product
	require.NoError(t, conn.Where("name = ?", "Storage Bed").First(&storageBed).Error)
	assert.False(t, storageBed.IsActive)
	assert.False(t, storageBed.Price.Valid)

	// Idempotent
	created, err = SeedCatalog(conn, strings.NewReader(catalogYAML))
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestSeedCatalogRejectsBadInput(t *testing.T) {
	conn, err := OpenInMemory()
	require.NoError(t, err)

	_, err = SeedCatalog(conn, strings.NewReader("categories:\n  table:\n    - name: Dining\n"))
	assert.ErrorContains(t, err, "unknown category")

	_, err = SeedCatalog(conn, strings.NewReader("categories:\n  sofa:\n    - name: Cheap\n      price: \"-1\"\n"))
	assert.ErrorContains(t, err, "invalid price")

	var count int64
	require.NoError(t, conn.Model(&model.Product{}).Count(&count).Error)
	assert.Zero(t, count)

	created, err := SeedCatalog(conn, strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, created)
}
