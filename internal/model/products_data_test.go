package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductsDataSummary(t *testing.T) {
	raw := `{
		"2": {"category_name": "Bed", "products": ["Storage Bed"]},
		"1": {"category_name": "Sofa", "products": [
			{"name": "Chesterfield", "price": "45000", "notes": "grey"},
			{"name": "L-Shape"}
		]},
		"3": {"category_name": "Recliner", "products": []}
	}`

	var data ProductsData
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	assert.Equal(t, "3 products: Sofa (2), Bed (1)", data.Summary())

	sofa := data["1"].Products
	require.Len(t, sofa, 2)
	assert.Equal(t, "Chesterfield", sofa[0].Name)
	require.NotNil(t, sofa[0].Price)
	assert.True(t, sofa[0].Price.Equal(decimal.NewFromInt(45000)))
	assert.Equal(t, "grey", sofa[0].Notes)
	assert.Nil(t, sofa[1].Price)
	assert.Equal(t, "Storage Bed", data["2"].Products[0].Name)
}

func TestProductsDataSummaryOrdersByCategoryID(t *testing.T) {
	data := ProductsData{
		"10": {CategoryName: "Ten", Products: []ProductEntry{{Name: "a"}}},
		"2":  {CategoryName: "Two", Products: []ProductEntry{{Name: "b"}, {Name: "c"}}},
	}
	assert.Equal(t, "3 products: Two (2), Ten (1)", data.Summary())
}

func TestProductsDataEmpty(t *testing.T) {
	assert.Equal(t, "No products", ProductsData(nil).Summary())
	assert.Equal(t, "No products", ProductsData{"1": {CategoryName: "Sofa"}}.Summary())
}

func TestProductsDataByCategory(t *testing.T) {
	data := ProductsData{
		"1": {CategoryName: "Sofa", Products: []ProductEntry{{Name: "Chesterfield"}}},
		"4": {Products: []ProductEntry{{Name: "Mystery"}}},
	}
	byCategory := data.ByCategory()
	assert.Equal(t, []ProductEntry{{Name: "Chesterfield"}}, byCategory["Sofa"])
	assert.Equal(t, []ProductEntry{{Name: "Mystery"}}, byCategory["Unknown"])
	assert.Equal(t, "1 products: Unknown (1)", ProductsData{"4": data["4"]}.Summary())
}
