package service

import (
	"strconv"

	"gorm.io/gorm"
)

// PageSize is the number of rows on every list screen
const PageSize = 25

// Page is one page of a list
type Page[T any] struct {
	Items       []T   `json:"items"`
	Number      int   `json:"page"`
	NumPages    int   `json:"num_pages"`
	Total       int64 `json:"total"`
	PageSize    int   `json:"page_size"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

// ParsePage reads a page number; anything that is not a positive integer is page 1
func ParsePage(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func newPage[T any](total int64, page int) Page[T] {
	numPages := int((total + PageSize - 1) / PageSize)
	if numPages < 1 {
		numPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > numPages {
		page = numPages
	}
	return Page[T]{
		Items:       []T{},
		Number:      page,
		NumPages:    numPages,
		Total:       total,
		PageSize:    PageSize,
		HasNext:     page < numPages,
		HasPrevious: page > 1,
	}
}

func (p Page[T]) offset() int {
	return (p.Number - 1) * PageSize
}

// paginate counts query, clamps page into range and loads that page ordered
// by order. Scopes such as preloads only apply to the page load.
func paginate[M any](query *gorm.DB, order string, page int, scopes ...func(*gorm.DB) *gorm.DB) (Page[M], error) {
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page[M]{}, err
	}

	p := newPage[M](total, page)
	if total == 0 {
		return p, nil
	}

	var rows []M
	if err := query.Session(&gorm.Session{}).
		Scopes(scopes...).
		Order(order).
		Offset(p.offset()).
		Limit(PageSize).
		Find(&rows).Error; err != nil {
		return Page[M]{}, err
	}
	p.Items = rows
	return p, nil
}

// paginateSlice pages through rows already in memory
func paginateSlice[M any](rows []M, page int) Page[M] {
	p := newPage[M](int64(len(rows)), page)
	start := p.offset()
	if start >= len(rows) {
		return p
	}
	end := start + PageSize
	if end > len(rows) {
		end = len(rows)
	}
	p.Items = rows[start:end]
	return p
}

// mapPage converts the items of a page
func mapPage[M, V any](p Page[M], fn func(M) V) Page[V] {
	out := Page[V]{
		Items:       make([]V, 0, len(p.Items)),
		Number:      p.Number,
		NumPages:    p.NumPages,
		Total:       p.Total,
		PageSize:    p.PageSize,
		HasNext:     p.HasNext,
		HasPrevious: p.HasPrevious,
	}
	for _, item := range p.Items {
		out.Items = append(out.Items, fn(item))
	}
	return out
}
