package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"storefront-catalog-service/internal/domain"
)

// StorageKey is the preference key the favorites set is persisted under.
const StorageKey = "favorites"

// ErrNotFound is returned by a Persister when no value is stored under a key.
var ErrNotFound = domain.ErrPreferenceNotFound

// Persister stores opaque preference values by key.
type Persister interface {
	GetPreference(ctx context.Context, key string) ([]byte, error)
	PutPreference(ctx context.Context, key string, value []byte) error
}

// Set is the persisted set of favorite product identifiers.
// It is a presentation overlay and has no influence on filtering or search.
type Set struct {
	persister Persister
	logger    *zap.Logger

	mu  sync.RWMutex
	ids []string

	listenersMu sync.Mutex
	listeners   []func()
}

// Load reads the stored set. A missing or unreadable value yields an empty set.
func Load(ctx context.Context, p Persister, logger *zap.Logger) (*Set, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Set{persister: p, logger: logger, ids: []string{}}

	raw, err := p.GetPreference(ctx, StorageKey)
	if errors.Is(err, ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("favorites: load: %w", err)
	}

	var stored []json.RawMessage
	if err := json.Unmarshal(raw, &stored); err != nil {
		logger.Warn("stored favorites are not a JSON array, starting empty", zap.Error(err))
		return s, nil
	}
	seen := make(map[string]struct{}, len(stored))
	for _, item := range stored {
		id := decodeID(item)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
	return s, nil
}

// decodeID accepts both string and numeric identifiers from older sessions.
func decodeID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Toggle flips membership of id, persists the set and reports the new membership.
// On a persistence failure the in-memory set is left unchanged.
func (s *Set) Toggle(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	next := make([]string, 0, len(s.ids)+1)
	removed := false
	for _, existing := range s.ids {
		if existing == id {
			removed = true
			continue
		}
		next = append(next, existing)
	}
	if !removed {
		next = append(next, id)
	}

	payload, err := json.Marshal(next)
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("favorites: encode: %w", err)
	}
	if err := s.persister.PutPreference(ctx, StorageKey, payload); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("favorites: persist: %w", err)
	}
	s.ids = next
	s.mu.Unlock()

	s.notify()
	return !removed, nil
}

// IsFavorite reports whether id is in the set.
func (s *Set) IsFavorite(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, existing := range s.ids {
		if existing == id {
			return true
		}
	}
	return false
}

// IDs returns the identifiers in insertion order.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.ids...)
}

// Subscribe registers fn to run after every successful toggle.
func (s *Set) Subscribe(fn func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Set) notify() {
	s.listenersMu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
