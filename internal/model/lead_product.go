package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LeadProduct records a lead's interest in a catalog product
type LeadProduct struct {
	ID          uint                `json:"id" gorm:"primaryKey"`
	LeadID      uuid.UUID           `json:"lead_id" gorm:"type:uuid;not null;uniqueIndex:idx_lead_products_lead_product,priority:1"`
	Lead        *Lead               `json:"-" gorm:"foreignKey:LeadID;constraint:OnDelete:CASCADE"`
	ProductID   uint                `json:"product_id" gorm:"not null;uniqueIndex:idx_lead_products_lead_product,priority:2"`
	Product     *Product            `json:"product,omitempty" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Quantity    uint                `json:"quantity" gorm:"not null;default:1;check:chk_lead_products_quantity,quantity > 0"`
	Notes       string              `json:"notes" gorm:"type:text"`
	PriceQuoted decimal.NullDecimal `json:"price_quoted" gorm:"type:decimal(10,2)"`
	CreatedAt   time.Time           `json:"created_date"`
}
