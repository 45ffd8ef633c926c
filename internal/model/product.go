package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog item within a category
type Product struct {
	ID          uint                `json:"id" gorm:"primaryKey"`
	CategoryID  uint                `json:"category_id" gorm:"not null;uniqueIndex:idx_products_category_name,priority:1"`
	Category    *Category           `json:"category,omitempty" gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE"`
	Name        string              `json:"name" gorm:"type:varchar(200);not null;uniqueIndex:idx_products_category_name,priority:2"`
	Description string              `json:"description" gorm:"type:text"`
	Price       decimal.NullDecimal `json:"price" gorm:"type:decimal(10,2)"`
	IsActive    bool                `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time           `json:"created_date"`
}

// Label is "<Category> - <Product>" when the category is loaded
func (p Product) Label() string {
	if p.Category == nil {
		return p.Name
	}
	return p.Category.DisplayName() + " - " + p.Name
}
