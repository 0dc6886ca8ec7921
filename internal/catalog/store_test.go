package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-catalog-service/internal/domain"
)

func scenarioSnapshot() []domain.Record {
	return []domain.Record{
		{"id": 1, "name": "Django Course", "price": 55.0, "category": "courses", "popular": false, "created": t0},
		{"id": 2, "name": "WhatsApp Bot", "price": 155.0, "category": "services", "popular": true, "created": t0.Add(time.Hour)},
	}
}

func TestStore_Scenario(t *testing.T) {
	s := NewStore(nil)
	s.Ingest(scenarioSnapshot())

	require.NoError(t, s.SetFilters(domain.FilterPatch{SortBy: PtrTo(domain.SortPriceLow)}))
	assert.Equal(t, []string{"1", "2"}, ids(s.FilteredView()))

	require.NoError(t, s.SetFilters(domain.FilterPatch{Category: PtrTo(domain.CategoryServices)}))
	assert.Equal(t, []string{"2"}, ids(s.FilteredView()))
	// sort key survives the partial update
	assert.Equal(t, domain.SortPriceLow, s.Filters().SortBy)
}

func TestStore_RoundTripNewestFirst(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 1; n <= 50; n++ {
		records := make([]domain.Record, n)
		for i := range records {
			records[i] = domain.Record{
				"id":      fmt.Sprintf("p%d", i),
				"name":    fmt.Sprintf("Product %d", i),
				"price":   float64(rng.Intn(5000)),
				"created": t0.Add(time.Duration(rng.Intn(1000)*1000+i) * time.Second),
			}
		}
		s := NewStore(nil)
		res := s.Ingest(records)
		require.Equal(t, n, res.Accepted)

		view := s.FilteredView()
		require.Len(t, view, n)
		assert.True(t, sort.SliceIsSorted(view, func(i, j int) bool {
			return view[i].CreatedAt.After(view[j].CreatedAt)
		}), "snapshot of %d not newest-first", n)
	}
}

func TestStore_ResetFiltersIsIdempotent(t *testing.T) {
	s := NewStore(nil)
	s.Ingest(scenarioSnapshot())
	require.NoError(t, s.SetFilters(domain.FilterPatch{Category: PtrTo(domain.CategoryCourses), Search: PtrTo("django")}))

	s.ResetFilters()
	once := s.FilteredView()
	s.ResetFilters()
	twice := s.FilteredView()

	assert.Equal(t, once, twice)
	assert.Equal(t, domain.DefaultFilterConfig(), s.Filters())
}

func TestStore_SetFilters_RejectsInvertedRange(t *testing.T) {
	s := NewStore(nil)
	s.Ingest(scenarioSnapshot())
	before := s.FilteredView()
	version := s.Version()

	err := s.SetFilters(domain.FilterPatch{MinPrice: PtrTo(100.0), MaxPrice: PtrTo(50.0)})
	require.ErrorIs(t, err, domain.ErrInvalidPriceRange)
	assert.Equal(t, before, s.FilteredView())
	assert.Equal(t, version, s.Version())
	assert.Equal(t, domain.DefaultFilterConfig(), s.Filters())
}

func TestStore_SetFilters_MergesOnlyGivenFields(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.SetFilters(domain.FilterPatch{MinPrice: PtrTo(10.0), MaxPrice: PtrTo(60.0)}))
	require.NoError(t, s.SetFilters(domain.FilterPatch{Search: PtrTo("bot")}))

	got := s.Filters()
	assert.Equal(t, 10.0, got.MinPrice)
	assert.Equal(t, 60.0, got.MaxPrice)
	assert.Equal(t, "bot", got.Search)
	assert.Equal(t, domain.SortNewest, got.SortBy)
}

func TestStore_IngestReplacesWholesale(t *testing.T) {
	s := NewStore(nil)
	s.Ingest(scenarioSnapshot())
	s.Ingest([]domain.Record{{"id": "9", "name": "Only One", "category": "ebooks", "featured": true}})

	assert.Equal(t, []string{"9"}, ids(s.Products()))
	_, err := s.ProductByID("1")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	counts := s.CategoryCounts()
	assert.Equal(t, 0, counts[0].Count)
	assert.Equal(t, 1, counts[1].Count)
	assert.Equal(t, []string{"9"}, ids(s.Featured()))
}

func TestStore_IngestEmptySnapshot(t *testing.T) {
	s := NewStore(nil)
	s.Ingest(nil)
	assert.Empty(t, s.FilteredView())
	assert.True(t, s.IsReady())
}

func TestStore_IngestSkipsDuplicateIDs(t *testing.T) {
	s := NewStore(nil)
	res := s.Ingest([]domain.Record{
		{"id": 1, "name": "First"},
		{"id": "1", "name": "Second"},
	})
	assert.Equal(t, IngestResult{Accepted: 1, Duplicates: 1}, res)
	p, err := s.ProductByID("1")
	require.NoError(t, err)
	assert.Equal(t, "First", p.Name)
}

func TestStore_SubscribersSeeCompleteDerivedState(t *testing.T) {
	s := NewStore(nil)
	var events []Event
	unsubscribe := s.Subscribe(func(ev Event) {
		// the store must already serve the state carried by the event
		assert.Equal(t, ev.View, s.FilteredView())
		events = append(events, ev)
	})

	s.Ingest(scenarioSnapshot())
	require.NoError(t, s.SetFilters(domain.FilterPatch{Category: PtrTo(domain.CategoryCourses)}))
	s.ResetFilters()
	unsubscribe()
	s.ResetFilters()

	require.Len(t, events, 3)
	assert.Equal(t, EventIngested, events[0].Kind)
	assert.Equal(t, EventFiltersChanged, events[1].Kind)
	assert.Equal(t, []string{"1"}, ids(events[1].View))
	assert.Equal(t, EventFiltersReset, events[2].Kind)
	assert.Less(t, events[0].Version, events[1].Version)
	assert.Less(t, events[1].Version, events[2].Version)
}

func TestStore_WaitReady(t *testing.T) {
	s := NewStore(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.WaitReady(ctx), context.DeadlineExceeded)

	go s.Ingest(scenarioSnapshot())
	require.NoError(t, s.WaitReady(context.Background()))
}

func TestStore_ClockDefaultsMissingTimestamps(t *testing.T) {
	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(nil, WithClock(func() time.Time { return fixed }))
	s.Ingest([]domain.Record{{"id": "a"}})
	p, err := s.ProductByID("a")
	require.NoError(t, err)
	assert.Equal(t, fixed, p.CreatedAt)
}
