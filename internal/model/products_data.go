package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductEntry is one product listed under a category in the lead's payload.
// Older payloads store a bare product name instead of an object.
type ProductEntry struct {
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price,omitempty"`
	Notes string           `json:"notes,omitempty"`
}

// UnmarshalJSON accepts both "name" and {"name": ...}
func (e *ProductEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Name)
	}
	type plain ProductEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = ProductEntry(p)
	return nil
}

// CategoryProducts groups the entries of one category
type CategoryProducts struct {
	CategoryName string         `json:"category_name"`
	Products     []ProductEntry `json:"products"`
}

// ProductsData is the denormalized product-interest payload, keyed by category id
type ProductsData map[string]CategoryProducts

// keys returns category ids ordered numerically, non-numeric ids last
func (d ProductsData) keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

func (c CategoryProducts) name() string {
	if c.CategoryName == "" {
		return "Unknown"
	}
	return c.CategoryName
}

// Summary renders "<total> products: Sofa (2), Bed (1)" or "No products"
func (d ProductsData) Summary() string {
	total := 0
	var parts []string
	for _, key := range d.keys() {
		group := d[key]
		if n := len(group.Products); n > 0 {
			parts = append(parts, fmt.Sprintf("%s (%d)", group.name(), n))
			total += n
		}
	}
	if total == 0 {
		return "No products"
	}
	return fmt.Sprintf("%d products: %s", total, strings.Join(parts, ", "))
}

// ByCategory maps category names to their product entries
func (d ProductsData) ByCategory() map[string][]ProductEntry {
	result := make(map[string][]ProductEntry, len(d))
	for _, group := range d {
		result[group.name()] = group.Products
	}
	return result
}
