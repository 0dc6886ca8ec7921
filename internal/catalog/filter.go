package catalog

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"storefront-catalog-service/internal/domain"
)

// ValidateFilters rejects configurations that are programmer errors.
// Out-of-order price bounds are rejected rather than clamped.
func ValidateFilters(cfg domain.FilterConfig) error {
	if math.IsNaN(cfg.MinPrice) || math.IsNaN(cfg.MaxPrice) {
		return fmt.Errorf("%w: bounds must be numbers", domain.ErrInvalidPriceRange)
	}
	if cfg.MinPrice < 0 {
		return fmt.Errorf("%w: min %.2f is negative", domain.ErrInvalidPriceRange, cfg.MinPrice)
	}
	if cfg.MinPrice > cfg.MaxPrice {
		return fmt.Errorf("%w: min %.2f exceeds max %.2f", domain.ErrInvalidPriceRange, cfg.MinPrice, cfg.MaxPrice)
	}
	if !cfg.SortBy.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidSortKey, cfg.SortBy)
	}
	return nil
}

// Apply derives the ordered filtered view of products under cfg.
// The input slice is not modified.
func Apply(products []domain.Product, cfg domain.FilterConfig) []domain.Product {
	needle := strings.ToLower(strings.TrimSpace(cfg.Search))
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if matches(p, cfg, needle) {
			out = append(out, p)
		}
	}
	SortProducts(out, cfg.SortBy)
	return out
}

// Matches reports whether p satisfies every active predicate of cfg.
func Matches(p domain.Product, cfg domain.FilterConfig) bool {
	return matches(p, cfg, strings.ToLower(strings.TrimSpace(cfg.Search)))
}

func matches(p domain.Product, cfg domain.FilterConfig, needle string) bool {
	if cfg.Category != "" && p.Category != cfg.Category {
		return false
	}
	if p.Price < cfg.MinPrice || p.Price > cfg.MaxPrice {
		return false
	}
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strings.ToLower(p.Description), needle)
}

// SortProducts orders products in place by key. The sort is stable, so equal keys keep
// their canonical relative order. Unknown keys leave the order untouched.
func SortProducts(products []domain.Product, key domain.SortKey) {
	var less func(a, b domain.Product) bool
	switch key {
	case domain.SortNewest:
		less = func(a, b domain.Product) bool { return a.CreatedAt.After(b.CreatedAt) }
	case domain.SortPopular:
		less = func(a, b domain.Product) bool { return a.Popular && !b.Popular }
	case domain.SortPriceLow:
		less = func(a, b domain.Product) bool { return a.Price < b.Price }
	case domain.SortPriceHigh:
		less = func(a, b domain.Product) bool { return a.Price > b.Price }
	default:
		return
	}
	sort.SliceStable(products, func(i, j int) bool { return less(products[i], products[j]) })
}

// countByCategory tallies the canonical list per category, in display order.
func countByCategory(products []domain.Product) []domain.CategoryCount {
	tally := make(map[domain.Category]int, len(domain.Categories))
	for _, p := range products {
		tally[p.Category]++
	}
	counts := make([]domain.CategoryCount, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		counts = append(counts, domain.CategoryCount{Category: c, Label: c.Label(), Count: tally[c]})
	}
	return counts
}

func featured(products []domain.Product) []domain.Product {
	out := make([]domain.Product, 0)
	for _, p := range products {
		if p.Featured {
			out = append(out, p)
		}
	}
	return out
}
