package api

import (
	"context"
	"errors"
	"net/http"

	"storefront-catalog-service/internal/catalog"
	"storefront-catalog-service/internal/currency"
	"storefront-catalog-service/internal/domain"
	"storefront-catalog-service/internal/favorites"
	"storefront-catalog-service/internal/feed"
	"storefront-catalog-service/internal/search"
	"storefront-catalog-service/internal/store"
	"storefront-catalog-service/internal/view"
)

// Reloader refreshes the catalog from its snapshot source. *feed.Loader satisfies it.
type Reloader interface {
	Load(ctx context.Context) (feed.Report, error)
}

// Services bundles the storefront components the transports expose.
// Products and Reloader may be nil, in which case admin writes are disabled.
type Services struct {
	Catalog   *catalog.Store
	Search    *search.Overlay
	Favorites *favorites.Set
	Currency  *currency.Formatter
	Views     *view.MemoryRenderer
	Products  store.ProductStorer
	Reloader  Reloader
}

// ProductResponse is a catalog product with its presentation overlay applied.
type ProductResponse struct {
	domain.Product
	CategoryLabel string  `json:"category_label"`
	DisplayPrice  string  `json:"display_price"`
	DisplayAmount float64 `json:"display_amount"`
	Favorite      bool    `json:"favorite"`
}

func (s Services) present(products []domain.Product) []ProductResponse {
	out := make([]ProductResponse, len(products))
	for i, p := range products {
		out[i] = s.presentOne(p)
	}
	return out
}

func (s Services) presentOne(p domain.Product) ProductResponse {
	r := ProductResponse{Product: p, CategoryLabel: p.Category.Label()}
	if s.Currency != nil {
		r.DisplayPrice = s.Currency.Format(p.Price)
		r.DisplayAmount = s.Currency.Convert(p.Price)
	}
	if s.Favorites != nil {
		r.Favorite = s.Favorites.IsFavorite(p.ID)
	}
	return r
}

// httpStatusFor maps component errors onto HTTP status codes.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPriceRange),
		errors.Is(err, domain.ErrInvalidSortKey),
		errors.Is(err, domain.ErrInvalidProduct),
		errors.Is(err, currency.ErrUnsupportedCurrency):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
