package view

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"storefront-catalog-service/internal/catalog"
	"storefront-catalog-service/internal/domain"
	"storefront-catalog-service/internal/search"
)

// Rendering targets.
const (
	ContainerGrid     = "productsGrid"
	ContainerCarousel = "featuredCarousel"
	ContainerSearch   = "searchResults"
)

// Containers lists every container the synchronizer renders into.
var Containers = []string{ContainerGrid, ContainerCarousel, ContainerSearch}

// DisplayUnit is one product as handed to the rendering collaborator.
type DisplayUnit struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Category      domain.Category `json:"category"`
	CategoryLabel string          `json:"category_label"`
	Image         string          `json:"image,omitempty"`
	Price         float64         `json:"price"`
	DisplayPrice  string          `json:"display_price"`
	Featured      bool            `json:"featured"`
	Favorite      bool            `json:"favorite"`
	Highlighted   bool            `json:"highlighted"`
}

// Renderer owns the markup for a container. Each call replaces the container's contents.
type Renderer interface {
	Render(container string, units []DisplayUnit) error
	RenderCategories(counts []domain.CategoryCount) error
}

// Revealer registers scroll-reveal animations for freshly rendered units.
// Registration must be safe to repeat.
type Revealer interface {
	Reveal(container string, ids []string)
}

// PriceFormatter renders a base-unit price for display.
type PriceFormatter interface {
	Format(price float64) string
}

// FavoriteChecker reports favorite membership.
type FavoriteChecker interface {
	IsFavorite(id string) bool
}

// Synchronizer keeps rendered containers consistent with the catalog and the search overlay.
type Synchronizer struct {
	store     *catalog.Store
	overlay   *search.Overlay
	favorites FavoriteChecker
	prices    PriceFormatter
	renderer  Renderer
	revealer  Revealer
	logger    *zap.Logger

	mu     sync.Mutex
	active search.Result
}

// NewSynchronizer wires the collaborators together. revealer may be nil.
func NewSynchronizer(
	store *catalog.Store,
	overlay *search.Overlay,
	favorites FavoriteChecker,
	prices PriceFormatter,
	renderer Renderer,
	revealer Revealer,
	logger *zap.Logger,
) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		store:     store,
		overlay:   overlay,
		favorites: favorites,
		prices:    prices,
		renderer:  renderer,
		revealer:  revealer,
		logger:    logger,
		active:    overlay.Current(),
	}
}

// Start subscribes to catalog and search changes, renders once, and returns a stop function.
func (s *Synchronizer) Start() func() {
	stopCatalog := s.store.Subscribe(s.onCatalogEvent)
	// a new snapshot re-runs the active query so highlights never point at vanished products
	stopRerun := s.store.Subscribe(func(ev catalog.Event) {
		if ev.Kind == catalog.EventIngested {
			s.overlay.Rerun()
		}
	})
	stopSearch := s.overlay.Subscribe(s.onSearchResult)
	if err := s.Refresh(); err != nil {
		s.logger.Error("initial render failed", zap.Error(err))
	}
	return func() {
		stopCatalog()
		stopRerun()
		stopSearch()
	}
}

func (s *Synchronizer) onCatalogEvent(ev catalog.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := errors.Join(
		s.renderLocked(ContainerGrid, ev.View),
		s.renderLocked(ContainerCarousel, ev.Featured),
		s.renderer.RenderCategories(ev.Counts),
	)
	if err != nil {
		s.logger.Error("render after catalog change failed", zap.String("event", string(ev.Kind)), zap.Uint64("version", ev.Version), zap.Error(err))
	}
}

func (s *Synchronizer) onSearchResult(res search.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = res
	// clearing the overlay restores exactly the store's current filtered view
	err := errors.Join(
		s.renderLocked(ContainerGrid, s.store.FilteredView()),
		s.renderLocked(ContainerSearch, res.Products),
	)
	if err != nil {
		s.logger.Error("render after search change failed", zap.String("state", string(res.State)), zap.Error(err))
	}
}

// Refresh re-renders every container from current state. Used after presentation-only
// changes such as a favorite toggle or a currency switch.
func (s *Synchronizer) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return errors.Join(
		s.renderLocked(ContainerGrid, s.store.FilteredView()),
		s.renderLocked(ContainerCarousel, s.store.Featured()),
		s.renderLocked(ContainerSearch, s.active.Products),
		s.renderer.RenderCategories(s.store.CategoryCounts()),
	)
}

// RenderInto renders products into container, replacing its previous contents.
func (s *Synchronizer) RenderInto(container string, products []domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderLocked(container, products)
}

func (s *Synchronizer) renderLocked(container string, products []domain.Product) error {
	var highlights map[string]struct{}
	if container == ContainerGrid && s.active.Active() {
		highlights = s.active.IDs()
	}

	units := make([]DisplayUnit, len(products))
	ids := make([]string, len(products))
	for i, p := range products {
		_, hl := highlights[p.ID]
		units[i] = DisplayUnit{
			ID:            p.ID,
			Name:          p.Name,
			Description:   p.Description,
			Category:      p.Category,
			CategoryLabel: p.Category.Label(),
			Image:         p.Image,
			Price:         p.Price,
			DisplayPrice:  s.prices.Format(p.Price),
			Featured:      p.Featured,
			Favorite:      s.favorites.IsFavorite(p.ID),
			Highlighted:   hl,
		}
		ids[i] = p.ID
	}

	if err := s.renderer.Render(container, units); err != nil {
		return err
	}
	if s.revealer != nil {
		s.revealer.Reveal(container, ids)
	}
	return nil
}
