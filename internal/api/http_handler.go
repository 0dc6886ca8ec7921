package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"storefront-catalog-service/internal/currency"
	"storefront-catalog-service/internal/domain"
	"storefront-catalog-service/internal/search"
)

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	svc      Services
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(svc Services, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		svc:      svc,
		validate: validator.New(),
		logger:   logger,
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, ErrorResponse{Error: message})
}

func (h *HTTPHandler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// respondWithStoreError logs err and answers with the mapped status.
func (h *HTTPHandler) respondWithStoreError(w http.ResponseWriter, op string, err error) {
	code := httpStatusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("operation failed", zap.String("op", op), zap.Error(err))
		h.respondWithError(w, code, "Failed to "+op)
		return
	}
	h.logger.Debug("operation rejected", zap.String("op", op), zap.Error(err))
	h.respondWithError(w, code, err.Error())
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return false
	}
	return true
}

// --- Catalog Handlers ---

// ProductListResponse is the filtered view together with the state that produced it.
type ProductListResponse struct {
	Data    []ProductResponse   `json:"data"`
	Filters domain.FilterConfig `json:"filters"`
	Version uint64              `json:"version"`
	Total   int                 `json:"total"`
}

func (h *HTTPHandler) listResponse(products []domain.Product) ProductListResponse {
	return ProductListResponse{
		Data:    h.svc.present(products),
		Filters: h.svc.Catalog.Filters(),
		Version: h.svc.Catalog.Version(),
		Total:   len(products),
	}
}

func (h *HTTPHandler) GetFilteredView(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.listResponse(h.svc.Catalog.FilteredView()))
}

func (h *HTTPHandler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productId")
	p, err := h.svc.Catalog.ProductByID(id)
	if err != nil {
		h.respondWithStoreError(w, "retrieve product", err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, h.svc.presentOne(p))
}

func (h *HTTPHandler) GetFeatured(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]any{"data": h.svc.present(h.svc.Catalog.Featured())})
}

func (h *HTTPHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]any{"data": h.svc.Catalog.CategoryCounts()})
}

func (h *HTTPHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.svc.Catalog.Filters())
}

// FilterPatchInput defines the expected input for changing filters. Absent fields keep their value.
type FilterPatchInput struct {
	Category *string  `json:"category" validate:"omitempty,max=64"`
	MinPrice *float64 `json:"min_price" validate:"omitempty,gte=0"`
	MaxPrice *float64 `json:"max_price" validate:"omitempty,gte=0"`
	Search   *string  `json:"search" validate:"omitempty,max=256"`
	SortBy   *string  `json:"sort_by" validate:"omitempty,oneof=newest popular price-low price-high"`
}

func (in FilterPatchInput) patch() domain.FilterPatch {
	var p domain.FilterPatch
	if in.Category != nil {
		c := domain.ParseCategory(*in.Category)
		if strings.TrimSpace(*in.Category) == "" {
			c = ""
		}
		p.Category = &c
	}
	p.MinPrice = in.MinPrice
	p.MaxPrice = in.MaxPrice
	p.Search = in.Search
	if in.SortBy != nil {
		k := domain.SortKey(*in.SortBy)
		p.SortBy = &k
	}
	return p
}

func (h *HTTPHandler) PatchFilters(w http.ResponseWriter, r *http.Request) {
	var input FilterPatchInput
	if !h.decode(w, r, &input) {
		return
	}
	if err := h.svc.Catalog.SetFilters(input.patch()); err != nil {
		h.respondWithStoreError(w, "apply filters", err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, h.listResponse(h.svc.Catalog.FilteredView()))
}

func (h *HTTPHandler) ResetFilters(w http.ResponseWriter, r *http.Request) {
	h.svc.Catalog.ResetFilters()
	h.respondWithJSON(w, http.StatusOK, h.listResponse(h.svc.Catalog.FilteredView()))
}

// SnapshotInput carries a raw snapshot pushed by an upstream feed.
type SnapshotInput struct {
	Products []domain.Record `json:"products" validate:"required"`
}

func (h *HTTPHandler) IngestSnapshot(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var input SnapshotInput
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}
	res := h.svc.Catalog.Ingest(input.Products)
	h.respondWithJSON(w, http.StatusOK, res)
}

// --- Search Handlers ---

// SearchInput defines the expected input for a debounced search.
type SearchInput struct {
	Query string `json:"query" validate:"max=256"`
}

// SearchAccepted acknowledges a query that will run once input has settled.
type SearchAccepted struct {
	Query   string `json:"query"`
	Pending bool   `json:"pending"`
	DelayMS int64  `json:"delay_ms"`
}

func (h *HTTPHandler) SubmitSearch(w http.ResponseWriter, r *http.Request) {
	var input SearchInput
	if !h.decode(w, r, &input) {
		return
	}
	h.svc.Search.Query(input.Query)
	h.respondWithJSON(w, http.StatusAccepted, SearchAccepted{
		Query:   input.Query,
		Pending: h.svc.Search.Pending(),
		DelayMS: h.svc.Search.Delay().Milliseconds(),
	})
}

// SearchResponse is a search result with the presentation overlay applied.
type SearchResponse struct {
	State   search.State      `json:"state"`
	Query   string            `json:"query,omitempty"`
	Message string            `json:"message,omitempty"`
	Data    []ProductResponse `json:"data"`
}

func (h *HTTPHandler) searchResponse(res search.Result) SearchResponse {
	return SearchResponse{State: res.State, Query: res.Query, Message: res.Message, Data: h.svc.present(res.Products)}
}

// GetSearch returns the overlay's current result, or runs an immediate search when q is given.
func (h *HTTPHandler) GetSearch(w http.ResponseWriter, r *http.Request) {
	if q, ok := r.URL.Query()["q"]; ok && len(q) > 0 {
		h.respondWithJSON(w, http.StatusOK, h.searchResponse(h.svc.Search.Search(q[0])))
		return
	}
	h.respondWithJSON(w, http.StatusOK, h.searchResponse(h.svc.Search.Current()))
}

func (h *HTTPHandler) ClearSearch(w http.ResponseWriter, r *http.Request) {
	h.svc.Search.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// --- Favorites Handlers ---

func (h *HTTPHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]any{"data": h.svc.Favorites.IDs()})
}

// FavoriteResponse reports the membership after a toggle.
type FavoriteResponse struct {
	ID       string `json:"id"`
	Favorite bool   `json:"favorite"`
}

func (h *HTTPHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productId")
	if _, err := h.svc.Catalog.ProductByID(id); err != nil {
		h.respondWithStoreError(w, "toggle favorite", err)
		return
	}
	on, err := h.svc.Favorites.Toggle(r.Context(), id)
	if err != nil {
		h.respondWithStoreError(w, "toggle favorite", err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, FavoriteResponse{ID: id, Favorite: on})
}

// --- Settings Handlers ---

// CurrencyResponse lists the selected and selectable display currencies.
type CurrencyResponse struct {
	Current   string   `json:"current"`
	Supported []string `json:"supported"`
}

// CurrencyInput defines the expected input for switching currency.
type CurrencyInput struct {
	Code string `json:"code" validate:"required,len=3,alpha"`
}

func (h *HTTPHandler) GetCurrency(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, CurrencyResponse{Current: h.svc.Currency.Current(), Supported: currency.Supported()})
}

func (h *HTTPHandler) SetCurrency(w http.ResponseWriter, r *http.Request) {
	var input CurrencyInput
	if !h.decode(w, r, &input) {
		return
	}
	if err := h.svc.Currency.SetCurrency(r.Context(), input.Code); err != nil {
		h.respondWithStoreError(w, "set currency", err)
		return
	}
	h.GetCurrency(w, r)
}

// --- View Handlers ---

func (h *HTTPHandler) GetView(w http.ResponseWriter, r *http.Request) {
	container := chi.URLParam(r, "container")
	if h.svc.Views == nil {
		h.respondWithError(w, http.StatusNotFound, "views are not rendered by this instance")
		return
	}
	if container == "categories" {
		h.respondWithJSON(w, http.StatusOK, map[string]any{"data": h.svc.Views.Categories()})
		return
	}
	rendered, ok := h.svc.Views.View(container)
	if !ok {
		h.respondWithError(w, http.StatusNotFound, "unknown container: "+container)
		return
	}
	h.respondWithJSON(w, http.StatusOK, rendered)
}

// --- Admin Product Handlers ---

// ProductInput defines the expected input for creating or replacing a product.
type ProductInput struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description string  `json:"description" validate:"max=4000"`
	Price       float64 `json:"price" validate:"gte=0"`
	Category    string  `json:"category" validate:"required"`
	Image       string  `json:"image" validate:"omitempty,max=2048"`
	Featured    bool    `json:"featured"`
	Popular     bool    `json:"popular"`
}

func (in ProductInput) product(id string) (*domain.Product, error) {
	c := domain.ParseCategory(in.Category)
	if !c.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidProduct, in.Category)
	}
	return &domain.Product{
		ID:          id,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Category:    c,
		Image:       in.Image,
		Featured:    in.Featured,
		Popular:     in.Popular,
	}, nil
}

func (h *HTTPHandler) adminEnabled(w http.ResponseWriter) bool {
	if h.svc.Products == nil {
		h.respondWithError(w, http.StatusNotImplemented, "product writes are not available for this catalog source")
		return false
	}
	return true
}

// reload refreshes the catalog after a write. The write itself already succeeded,
// so a failed reload is logged and the next refresh picks the change up.
func (h *HTTPHandler) reload(r *http.Request) {
	if h.svc.Reloader == nil {
		return
	}
	if _, err := h.svc.Reloader.Load(r.Context()); err != nil {
		h.logger.Warn("catalog reload after write failed", zap.Error(err))
	}
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.adminEnabled(w) {
		return
	}
	var input ProductInput
	if !h.decode(w, r, &input) {
		return
	}
	product, err := input.product("")
	if err != nil {
		h.respondWithStoreError(w, "create product", err)
		return
	}
	created, err := h.svc.Products.CreateProduct(r.Context(), product)
	if err != nil {
		h.respondWithStoreError(w, "create product", err)
		return
	}
	h.reload(r)
	h.respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.adminEnabled(w) {
		return
	}
	var input ProductInput
	if !h.decode(w, r, &input) {
		return
	}
	product, err := input.product(chi.URLParam(r, "productId"))
	if err != nil {
		h.respondWithStoreError(w, "update product", err)
		return
	}
	updated, err := h.svc.Products.UpdateProduct(r.Context(), product)
	if err != nil {
		h.respondWithStoreError(w, "update product", err)
		return
	}
	h.reload(r)
	h.respondWithJSON(w, http.StatusOK, updated)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if !h.adminEnabled(w) {
		return
	}
	if err := h.svc.Products.DeleteProduct(r.Context(), chi.URLParam(r, "productId")); err != nil {
		h.respondWithStoreError(w, "delete product", err)
		return
	}
	h.reload(r)
	w.WriteHeader(http.StatusNoContent)
}

// --- Health ---

// Pinger reports the health of a backing dependency. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports catalog readiness and, when db is non-nil, database reachability.
func (h *HTTPHandler) HealthHandler(serviceName string, db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbStatus := "not_configured"
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			dbStatus = "healthy"
			if err := db.PingContext(ctx); err != nil {
				dbStatus = "unhealthy"
				h.logger.Warn("health check database ping failed", zap.Error(err))
			}
		}
		catalogStatus := "loading"
		code := http.StatusServiceUnavailable
		if h.svc.Catalog.IsReady() {
			catalogStatus = "ready"
			code = http.StatusOK
		}
		h.respondWithJSON(w, code, map[string]any{
			"status":      catalogStatus,
			"serviceName": serviceName,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"database":    dbStatus,
			"version":     h.svc.Catalog.Version(),
		})
	}
}

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/catalog", func(r chi.Router) {
		r.Get("/products", h.GetFilteredView)
		r.Get("/products/{productId}", h.GetProductByID)
		r.Get("/featured", h.GetFeatured)
		r.Get("/categories", h.GetCategories)
		r.Get("/filters", h.GetFilters)
		r.Patch("/filters", h.PatchFilters)
		r.Post("/filters/reset", h.ResetFilters)
		r.Post("/snapshot", h.IngestSnapshot)
	})

	r.Route("/api/v1/search", func(r chi.Router) {
		r.Post("/", h.SubmitSearch)
		r.Get("/", h.GetSearch)
		r.Delete("/", h.ClearSearch)
	})

	r.Route("/api/v1/favorites", func(r chi.Router) {
		r.Get("/", h.ListFavorites)
		r.Post("/{productId}/toggle", h.ToggleFavorite)
	})

	r.Route("/api/v1/settings/currency", func(r chi.Router) {
		r.Get("/", h.GetCurrency)
		r.Put("/", h.SetCurrency)
	})

	r.Get("/api/v1/views/{container}", h.GetView)

	r.Route("/api/v1/admin/products", func(r chi.Router) {
		r.Post("/", h.CreateProduct)
		r.Route("/{productId}", func(r chi.Router) {
			r.Put("/", h.UpdateProduct)
			r.Delete("/", h.DeleteProduct)
		})
	})
}
