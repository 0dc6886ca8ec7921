package search

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"storefront-catalog-service/internal/domain"
)

// MaxDelay is the longest idle period the overlay waits before searching.
const MaxDelay = 300 * time.Millisecond

// State is the terminal display state of the overlay.
type State string

const (
	StateInactive  State = "inactive"
	StateResults   State = "results"
	StateNoResults State = "no_results"
)

// Result is the outcome of the most recent search computation.
type Result struct {
	State    State            `json:"state"`
	Query    string           `json:"query,omitempty"`
	Products []domain.Product `json:"products"`
	Message  string           `json:"message,omitempty"`
}

// Active reports whether the result supersedes the filtered view.
func (r Result) Active() bool {
	return r.State != StateInactive
}

// IDs returns the identifiers of the matched products.
func (r Result) IDs() map[string]struct{} {
	out := make(map[string]struct{}, len(r.Products))
	for _, p := range r.Products {
		out[p.ID] = struct{}{}
	}
	return out
}

// Source provides the canonical product list. *catalog.Store satisfies it.
type Source interface {
	Products() []domain.Product
}

// Listener receives every state change of the overlay, in the order the changes happen.
// Listeners run synchronously and must not call Clear or Rerun.
type Listener func(Result)

// Overlay is the debounced search path over the full canonical list.
// It keeps its own query and results and never writes to the catalog.
type Overlay struct {
	source Source
	logger *zap.Logger
	delay  time.Duration
	policy *bluemonday.Policy

	// notifyMu serializes state changes with their notification so listeners
	// never see an older result after a newer one.
	notifyMu sync.Mutex

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	current    Result
	closed     bool

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// Option customises an Overlay.
type Option func(*Overlay)

// WithDelay sets the debounce interval, capped at MaxDelay.
func WithDelay(d time.Duration) Option {
	return func(o *Overlay) {
		if d > 0 {
			o.delay = min(d, MaxDelay)
		}
	}
}

// New creates an inactive overlay over source.
func New(source Source, logger *zap.Logger, opts ...Option) *Overlay {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Overlay{
		source:    source,
		logger:    logger,
		delay:     MaxDelay,
		policy:    bluemonday.StrictPolicy(),
		current:   inactive(),
		listeners: map[int]Listener{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Delay returns the effective debounce interval.
func (o *Overlay) Delay() time.Duration {
	return o.delay
}

// Query schedules a search for text once input has been idle for the debounce interval.
// Any pending search is discarded. Blank text clears the overlay immediately.
func (o *Overlay) Query(text string) {
	if strings.TrimSpace(text) == "" {
		o.Clear()
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.generation++
	gen := o.generation
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(o.delay, func() { o.fire(gen, text) })
}

func (o *Overlay) fire(gen uint64, text string) {
	o.mu.Lock()
	if gen != o.generation || o.closed {
		// superseded by a later keystroke or a clear
		o.mu.Unlock()
		return
	}
	o.timer = nil
	o.mu.Unlock()

	res := o.Search(text)

	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	o.mu.Lock()
	if gen != o.generation || o.closed {
		o.mu.Unlock()
		return
	}
	o.current = res
	o.mu.Unlock()

	o.logger.Debug("search computed", zap.String("query", res.Query), zap.String("state", string(res.State)), zap.Int("results", len(res.Products)))
	o.publish(res)
}

// Search computes the result for query synchronously without touching overlay state.
func (o *Overlay) Search(query string) Result {
	q := strings.TrimSpace(query)
	if q == "" {
		return inactive()
	}
	matches := Match(o.source.Products(), q)
	if len(matches) == 0 {
		return Result{
			State:    StateNoResults,
			Query:    q,
			Products: []domain.Product{},
			Message:  fmt.Sprintf("No products found for %q", o.policy.Sanitize(q)),
		}
	}
	return Result{State: StateResults, Query: q, Products: matches}
}

// Clear cancels any pending search and deactivates the overlay.
func (o *Overlay) Clear() {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	o.generation++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	wasActive := o.current.Active()
	o.current = inactive()
	closed := o.closed
	o.mu.Unlock()

	if wasActive && !closed {
		o.publish(inactive())
	}
}

// Rerun recomputes an active result against the current catalog, keeping its query.
// It does nothing while the overlay is inactive, closed, or waiting on a newer query.
func (o *Overlay) Rerun() {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	if o.closed || !o.current.Active() || o.timer != nil {
		o.mu.Unlock()
		return
	}
	gen := o.generation
	query := o.current.Query
	o.mu.Unlock()

	res := o.Search(query)

	o.mu.Lock()
	if gen != o.generation || o.closed {
		o.mu.Unlock()
		return
	}
	o.current = res
	o.mu.Unlock()

	o.logger.Debug("search recomputed", zap.String("query", res.Query), zap.String("state", string(res.State)), zap.Int("results", len(res.Products)))
	o.publish(res)
}

// Current returns the last computed result.
func (o *Overlay) Current() Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Pending reports whether a debounced search is waiting to run.
func (o *Overlay) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.timer != nil
}

// Subscribe registers l and returns a function that removes it.
func (o *Overlay) Subscribe(l Listener) func() {
	o.listenersMu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = l
	o.listenersMu.Unlock()

	return func() {
		o.listenersMu.Lock()
		delete(o.listeners, id)
		o.listenersMu.Unlock()
	}
}

func (o *Overlay) publish(res Result) {
	o.listenersMu.Lock()
	listeners := make([]Listener, 0, len(o.listeners))
	for id := 0; id < o.nextID; id++ {
		if l, ok := o.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	o.listenersMu.Unlock()

	for _, l := range listeners {
		l(res)
	}
}

// Close stops the pending timer. Later queries are ignored.
func (o *Overlay) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.generation++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

// Match returns the products whose name, description or category contains query,
// ignoring case, in canonical order.
func Match(products []domain.Product, query string) []domain.Product {
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Product, 0)
	if needle == "" {
		return out
	}
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.Description), needle) ||
			strings.Contains(string(p.Category), needle) ||
			strings.Contains(strings.ToLower(p.Category.Label()), needle) {
			out = append(out, p)
		}
	}
	return out
}

func inactive() Result {
	return Result{State: StateInactive, Products: []domain.Product{}}
}
