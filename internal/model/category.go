package model

import (
	"time"
)

// CategoryName is one of the fixed furniture categories a lead can be interested in
type CategoryName string

const (
	CategorySofa       CategoryName = "sofa"
	CategoryBed        CategoryName = "bed"
	CategoryRecliner   CategoryName = "recliner"
	CategorySofaCumBed CategoryName = "sofa_cum_bed"
)

// CategoryNames lists every category in display order
var CategoryNames = []CategoryName{CategorySofa, CategoryBed, CategoryRecliner, CategorySofaCumBed}

var categoryDisplay = map[CategoryName]string{
	CategorySofa:       "Sofa",
	CategoryBed:        "Bed",
	CategoryRecliner:   "Recliner",
	CategorySofaCumBed: "Sofa Cum Bed",
}

// Valid reports whether n is part of the enumeration
func (n CategoryName) Valid() bool {
	_, ok := categoryDisplay[n]
	return ok
}

// Display returns the human readable label
func (n CategoryName) Display() string {
	if label, ok := categoryDisplay[n]; ok {
		return label
	}
	return string(n)
}

// Category groups products. The set of categories is fixed and seeded on migration.
type Category struct {
	ID        uint         `json:"id" gorm:"primaryKey"`
	Name      CategoryName `json:"name" gorm:"type:varchar(50);uniqueIndex;not null"`
	CreatedAt time.Time    `json:"created_date"`
}

// DisplayName returns the label of the category
func (c Category) DisplayName() string {
	return c.Name.Display()
}
