package domain

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Predefined errors for catalog operations.
var (
	ErrProductNotFound   = errors.New("catalog: product not found")
	ErrInvalidPriceRange = errors.New("catalog: invalid price range")
	ErrInvalidSortKey    = errors.New("catalog: invalid sort key")
	ErrInvalidProduct    = errors.New("catalog: invalid product")

	ErrPreferenceNotFound = errors.New("catalog: preference not found")
)

// Category is one of the fixed storefront categories.
type Category string

const (
	CategoryCourses  Category = "courses"
	CategoryEbooks   Category = "ebooks"
	CategoryAITools  Category = "ai-tools"
	CategoryServices Category = "services"
)

// Categories lists the closed category set in display order.
var Categories = []Category{CategoryCourses, CategoryEbooks, CategoryAITools, CategoryServices}

var categoryLabels = map[Category]string{
	CategoryCourses:  "Courses",
	CategoryEbooks:   "E-books",
	CategoryAITools:  "AI Tools",
	CategoryServices: "Services",
}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the display label, or the raw value for unknown categories.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// ParseCategory maps user-facing spellings ("E-books", "AI Tools") onto the canonical id.
// Unknown values are returned lower-cased and unchanged so that they match nothing.
func ParseCategory(s string) Category {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "e-books", "e-book", "ebook":
		return CategoryEbooks
	case "ai tools", "ai-tool", "ai_tools":
		return CategoryAITools
	}
	return Category(v)
}

// Product is the canonical catalog unit after normalization.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"` // base unit is USD
	Category    Category  `json:"category"`
	Image       string    `json:"image,omitempty"` // remote URL or data: URI
	Featured    bool      `json:"featured"`
	Popular     bool      `json:"popular"`
	CreatedAt   time.Time `json:"created"`
}

// CategoryCount is the number of canonical products in one category.
type CategoryCount struct {
	Category Category `json:"category"`
	Label    string   `json:"label"`
	Count    int      `json:"count"`
}

// Record is a raw inbound product record exactly as a snapshot source produced it.
type Record map[string]any

// SortKey selects the ordering of the filtered view.
type SortKey string

const (
	SortNewest    SortKey = "newest"
	SortPopular   SortKey = "popular"
	SortPriceLow  SortKey = "price-low"
	SortPriceHigh SortKey = "price-high"
)

// Valid reports whether k is a known sort key.
func (k SortKey) Valid() bool {
	switch k {
	case SortNewest, SortPopular, SortPriceLow, SortPriceHigh:
		return true
	}
	return false
}

// DefaultMaxPrice is the upper bound of the unrestricted price range.
const DefaultMaxPrice = math.MaxFloat64

// FilterConfig is the live category/price/search/sort restriction.
type FilterConfig struct {
	Category Category `json:"category"`
	MinPrice float64  `json:"min_price"`
	MaxPrice float64  `json:"max_price"`
	Search   string   `json:"search"`
	SortBy   SortKey  `json:"sort_by"`
}

// DefaultFilterConfig returns the configuration a fresh session starts with.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinPrice: 0,
		MaxPrice: DefaultMaxPrice,
		SortBy:   SortNewest,
	}
}

// FilterPatch carries a partial FilterConfig; nil fields keep their current value.
type FilterPatch struct {
	Category *Category
	MinPrice *float64
	MaxPrice *float64
	Search   *string
	SortBy   *SortKey
}

// Merge returns cfg with every non-nil patch field applied.
func (p FilterPatch) Merge(cfg FilterConfig) FilterConfig {
	if p.Category != nil {
		cfg.Category = *p.Category
	}
	if p.MinPrice != nil {
		cfg.MinPrice = *p.MinPrice
	}
	if p.MaxPrice != nil {
		cfg.MaxPrice = *p.MaxPrice
	}
	if p.Search != nil {
		cfg.Search = *p.Search
	}
	if p.SortBy != nil {
		cfg.SortBy = *p.SortBy
	}
	return cfg
}

// Empty reports whether the patch changes nothing.
func (p FilterPatch) Empty() bool {
	return p.Category == nil && p.MinPrice == nil && p.MaxPrice == nil && p.Search == nil && p.SortBy == nil
}
