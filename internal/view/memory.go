package view

import (
	"sync"
	"time"

	"storefront-catalog-service/internal/domain"
)

// Rendered is the last output written to one container.
type Rendered struct {
	Container  string        `json:"container"`
	Units      []DisplayUnit `json:"units"`
	Renders    int           `json:"renders"`
	Reveals    int           `json:"reveals"`
	RenderedAt time.Time     `json:"rendered_at"`
}

// MemoryRenderer keeps the latest render of every container in memory.
type MemoryRenderer struct {
	mu         sync.RWMutex
	containers map[string]*Rendered
	categories []domain.CategoryCount
}

// NewMemoryRenderer returns a renderer with every synchronized container present and empty.
func NewMemoryRenderer() *MemoryRenderer {
	m := &MemoryRenderer{containers: map[string]*Rendered{}}
	for _, c := range Containers {
		m.entry(c)
	}
	return m
}

func (m *MemoryRenderer) Render(container string, units []DisplayUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.entry(container)
	r.Units = append([]DisplayUnit{}, units...)
	r.Renders++
	r.RenderedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRenderer) RenderCategories(counts []domain.CategoryCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = append([]domain.CategoryCount{}, counts...)
	return nil
}

func (m *MemoryRenderer) Reveal(container string, _ []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(container).Reveals++
}

func (m *MemoryRenderer) entry(container string) *Rendered {
	r, ok := m.containers[container]
	if !ok {
		r = &Rendered{Container: container, Units: []DisplayUnit{}}
		m.containers[container] = r
	}
	return r
}

// View returns a copy of the last render of container.
func (m *MemoryRenderer) View(container string) (Rendered, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.containers[container]
	if !ok {
		return Rendered{}, false
	}
	out := *r
	out.Units = append([]DisplayUnit{}, r.Units...)
	return out, true
}

// Categories returns the last rendered category counters.
func (m *MemoryRenderer) Categories() []domain.CategoryCount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.CategoryCount{}, m.categories...)
}
