package catalog

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-catalog-service/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ids(products []domain.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func PtrTo[T any](v T) *T {
	return &v
}

func sampleProducts() []domain.Product {
	return []domain.Product{
		{ID: "1", Name: "Django Course", Description: "Build web apps", Price: 55, Category: domain.CategoryCourses, CreatedAt: t0},
		{ID: "2", Name: "WhatsApp Bot", Description: "AI replies", Price: 155, Category: domain.CategoryServices, Popular: true, CreatedAt: t0.Add(time.Hour)},
		{ID: "3", Name: "Prompt Handbook", Description: "Ebook for django devs", Price: 50, Category: domain.CategoryEbooks, CreatedAt: t0.Add(2 * time.Hour)},
		{ID: "4", Name: "Image Generator", Description: "", Price: 50, Category: domain.CategoryAITools, Featured: true, CreatedAt: t0.Add(3 * time.Hour)},
	}
}

func TestApply_DefaultFiltersNewestFirst(t *testing.T) {
	got := Apply(sampleProducts(), domain.DefaultFilterConfig())
	assert.Equal(t, []string{"4", "3", "2", "1"}, ids(got))
}

func TestApply_FilterConjunction(t *testing.T) {
	products := sampleProducts()
	configs := []domain.FilterConfig{
		{Category: domain.CategoryCourses, MinPrice: 0, MaxPrice: 100, SortBy: domain.SortNewest},
		{MinPrice: 50, MaxPrice: 60, Search: "DJANGO", SortBy: domain.SortNewest},
		{Category: domain.CategoryEbooks, MinPrice: 0, MaxPrice: 10, SortBy: domain.SortNewest},
		{MinPrice: 0, MaxPrice: domain.DefaultMaxPrice, Search: "  bot ", SortBy: domain.SortPriceLow},
	}

	for i, cfg := range configs {
		t.Run(fmt.Sprintf("config_%d", i), func(t *testing.T) {
			got := Apply(products, cfg)
			inView := map[string]bool{}
			for _, p := range got {
				inView[p.ID] = true
			}
			for _, p := range products {
				catOK := cfg.Category == "" || p.Category == cfg.Category
				priceOK := p.Price >= cfg.MinPrice && p.Price <= cfg.MaxPrice
				searchOK := Matches(p, domain.FilterConfig{MinPrice: 0, MaxPrice: domain.DefaultMaxPrice, Search: cfg.Search})
				assert.Equal(t, catOK && priceOK && searchOK, inView[p.ID], "product %s", p.ID)
			}
		})
	}
}

func TestApply_SearchMatchesNameOrDescription(t *testing.T) {
	cfg := domain.DefaultFilterConfig()
	cfg.Search = "django"
	got := Apply(sampleProducts(), cfg)
	// "3" matches on description only
	assert.Equal(t, []string{"3", "1"}, ids(got))
}

func TestApply_PopularSortIsStable(t *testing.T) {
	products := []domain.Product{
		{ID: "a", Popular: false, CreatedAt: t0},
		{ID: "b", Popular: true, CreatedAt: t0},
		{ID: "c", Popular: false, CreatedAt: t0},
		{ID: "d", Popular: true, CreatedAt: t0},
	}
	cfg := domain.DefaultFilterConfig()
	cfg.SortBy = domain.SortPopular

	got := Apply(products, cfg)
	if diff := cmp.Diff([]string{"b", "d", "a", "c"}, ids(got)); diff != "" {
		t.Errorf("popular ordering mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_PriceSortKeepsTiesInCanonicalOrder(t *testing.T) {
	cfg := domain.DefaultFilterConfig()
	cfg.SortBy = domain.SortPriceLow
	assert.Equal(t, []string{"3", "4", "1", "2"}, ids(Apply(sampleProducts(), cfg)))

	cfg.SortBy = domain.SortPriceHigh
	assert.Equal(t, []string{"2", "1", "3", "4"}, ids(Apply(sampleProducts(), cfg)))
}

func TestApply_SinglePointPriceRange(t *testing.T) {
	cfg := domain.DefaultFilterConfig()
	cfg.MinPrice, cfg.MaxPrice = 50, 50
	got := Apply(sampleProducts(), cfg)
	require.Len(t, got, 2)
	for _, p := range got {
		assert.Equal(t, 50.0, p.Price)
	}
}

func TestApply_UnknownCategoryYieldsEmptyView(t *testing.T) {
	cfg := domain.DefaultFilterConfig()
	cfg.Category = "hardware"
	got := Apply(sampleProducts(), cfg)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestApply_EmptyInput(t *testing.T) {
	got := Apply(nil, domain.DefaultFilterConfig())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	products := sampleProducts()
	cfg := domain.DefaultFilterConfig()
	cfg.SortBy = domain.SortPriceHigh
	Apply(products, cfg)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(products))
}

func TestValidateFilters(t *testing.T) {
	valid := domain.DefaultFilterConfig()
	require.NoError(t, ValidateFilters(valid))

	inverted := valid
	inverted.MinPrice, inverted.MaxPrice = 100, 50
	assert.ErrorIs(t, ValidateFilters(inverted), domain.ErrInvalidPriceRange)

	negative := valid
	negative.MinPrice = -1
	assert.ErrorIs(t, ValidateFilters(negative), domain.ErrInvalidPriceRange)

	badSort := valid
	badSort.SortBy = "alphabetical"
	assert.ErrorIs(t, ValidateFilters(badSort), domain.ErrInvalidSortKey)
}

func TestCountByCategory(t *testing.T) {
	counts := countByCategory(sampleProducts())
	require.Len(t, counts, 4)
	assert.Equal(t, domain.CategoryCount{Category: domain.CategoryCourses, Label: "Courses", Count: 1}, counts[0])
	assert.Equal(t, "E-books", counts[1].Label)
	assert.Equal(t, 1, counts[3].Count)
}
