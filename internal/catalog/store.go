package catalog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefront-catalog-service/internal/domain"
)

// EventKind names the mutation that produced an Event.
type EventKind string

const (
	EventIngested       EventKind = "ingested"
	EventFiltersChanged EventKind = "filters_changed"
	EventFiltersReset   EventKind = "filters_reset"
)

// Event is published after every mutation, once the derived state is complete.
type Event struct {
	Kind     EventKind
	Version  uint64
	View     []domain.Product
	Featured []domain.Product
	Counts   []domain.CategoryCount
	Filters  domain.FilterConfig
}

// Listener receives store events. Listeners run synchronously on the mutating goroutine
// and must not call mutating Store methods.
type Listener func(Event)

// IngestResult summarises one snapshot ingestion.
type IngestResult struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
}

// Store owns the canonical product list and the live filter configuration.
type Store struct {
	logger *zap.Logger
	now    func() time.Time

	// writeMu serializes mutation and notification so listeners see versions in order.
	writeMu sync.Mutex

	mu       sync.RWMutex
	products []domain.Product
	index    map[string]int
	filters  domain.FilterConfig
	view     []domain.Product
	counts   []domain.CategoryCount
	featured []domain.Product
	version  uint64

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int

	ready     chan struct{}
	readyOnce sync.Once
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for records without a creation timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty store with default filters.
func NewStore(logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		logger:    logger,
		now:       time.Now,
		index:     map[string]int{},
		filters:   domain.DefaultFilterConfig(),
		view:      []domain.Product{},
		counts:    countByCategory(nil),
		featured:  []domain.Product{},
		listeners: map[int]Listener{},
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Ingest replaces the canonical list wholesale with the normalized snapshot.
func (s *Store) Ingest(records []domain.Record) IngestResult {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now()
	products := make([]domain.Product, 0, len(records))
	index := make(map[string]int, len(records))
	var result IngestResult
	for i, rec := range records {
		p := Normalize(i, rec, now)
		if _, dup := index[p.ID]; dup {
			result.Duplicates++
			s.logger.Warn("duplicate product id in snapshot, keeping first", zap.String("product_id", p.ID), zap.Int("position", i))
			continue
		}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	result.Accepted = len(products)

	s.mu.Lock()
	s.products = products
	s.index = index
	s.counts = countByCategory(products)
	s.featured = featured(products)
	ev := s.deriveLocked(EventIngested)
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("catalog snapshot ingested", zap.Int("accepted", result.Accepted), zap.Int("duplicates", result.Duplicates))
	s.publish(ev)
	return result
}

// SetFilters merges patch into the live configuration and re-derives the view.
// An invalid result is rejected and leaves the store unchanged.
func (s *Store) SetFilters(patch domain.FilterPatch) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	next := patch.Merge(s.filters)
	if err := ValidateFilters(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.filters = next
	ev := s.deriveLocked(EventFiltersChanged)
	s.mu.Unlock()

	s.publish(ev)
	return nil
}

// ResetFilters restores the default configuration and re-derives the view.
func (s *Store) ResetFilters() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.filters = domain.DefaultFilterConfig()
	ev := s.deriveLocked(EventFiltersReset)
	s.mu.Unlock()

	s.publish(ev)
}

// deriveLocked recomputes the filtered view in full. Callers hold s.mu.
func (s *Store) deriveLocked(kind EventKind) Event {
	s.view = Apply(s.products, s.filters)
	s.version++
	return Event{
		Kind:     kind,
		Version:  s.version,
		View:     cloneProducts(s.view),
		Featured: cloneProducts(s.featured),
		Counts:   append([]domain.CategoryCount(nil), s.counts...),
		Filters:  s.filters,
	}
}

func (s *Store) publish(ev Event) {
	s.listenersMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	// registration order keeps rendering deterministic
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// Subscribe registers l for future events and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// FilteredView returns a copy of the current derived view.
func (s *Store) FilteredView() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProducts(s.view)
}

// Products returns a copy of the canonical list in snapshot order.
func (s *Store) Products() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProducts(s.products)
}

// ProductByID looks a product up in the canonical list.
func (s *Store) ProductByID(id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return s.products[i], nil
}

// Featured returns the featured products in canonical order.
func (s *Store) Featured() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProducts(s.featured)
}

// CategoryCounts returns per-category totals over the canonical list.
func (s *Store) CategoryCounts() []domain.CategoryCount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CategoryCount(nil), s.counts...)
}

// Filters returns the live filter configuration.
func (s *Store) Filters() domain.FilterConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// Version returns the number of derivations performed so far.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Ready is closed once the first snapshot has been ingested.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// IsReady reports whether the first snapshot has been ingested.
func (s *Store) IsReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the first snapshot arrives or ctx is done.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cloneProducts(in []domain.Product) []domain.Product {
	out := make([]domain.Product, len(in))
	copy(out, in)
	return out
}
