package search

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storefront-catalog-service/internal/catalog"
	"storefront-catalog-service/internal/domain"
)

const testDelay = 40 * time.Millisecond

func newScenarioStore(t *testing.T) *catalog.Store {
	t.Helper()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := catalog.NewStore(nil)
	s.Ingest([]domain.Record{
		{"id": 1, "name": "Django Course", "price": 55.0, "category": "courses", "created": t0},
		{"id": 2, "name": "WhatsApp Bot", "price": 155.0, "category": "services", "popular": true, "created": t0.Add(time.Hour)},
		{"id": 3, "name": "Prompt Pack", "description": "Django prompts", "price": 9.0, "category": "ebooks", "created": t0.Add(2 * time.Hour)},
	})
	return s
}

type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) listen(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) snapshot() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

func resultIDs(res Result) []string {
	out := make([]string, len(res.Products))
	for i, p := range res.Products {
		out[i] = p.ID
	}
	return out
}

func TestOverlay_DebounceCollapsesBurst(t *testing.T) {
	defer goleak.VerifyNone(t)

	o := New(newScenarioStore(t), nil, WithDelay(testDelay))
	defer o.Close()
	rec := &recorder{}
	o.Subscribe(rec.listen)

	o.Query("dj")
	o.Query("djan")
	o.Query("whatsapp")
	assert.True(t, o.Pending())

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * testDelay)

	got := rec.snapshot()
	require.Len(t, got, 1, "exactly one computation per idle period")
	assert.Equal(t, "whatsapp", got[0].Query)
	assert.Equal(t, []string{"2"}, resultIDs(got[0]))
	assert.False(t, o.Pending())
}

func TestOverlay_IgnoresCatalogFilters(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newScenarioStore(t)
	category := domain.CategoryCourses
	require.NoError(t, store.SetFilters(domain.FilterPatch{Category: &category}))

	o := New(store, nil, WithDelay(testDelay))
	defer o.Close()

	res := o.Search("whatsapp")
	assert.Equal(t, StateResults, res.State)
	assert.Equal(t, []string{"2"}, resultIDs(res))
	// the catalog's own view still excludes it
	for _, p := range store.FilteredView() {
		assert.NotEqual(t, "2", p.ID)
	}
	assert.Equal(t, domain.CategoryCourses, store.Filters().Category)
}

func TestOverlay_ScenarioQuery(t *testing.T) {
	store := newScenarioStore(t)
	services := domain.CategoryServices
	require.NoError(t, store.SetFilters(domain.FilterPatch{Category: &services}))

	o := New(store, nil)
	res := o.Search("django")
	assert.Equal(t, []string{"1", "3"}, resultIDs(res))
}

func TestOverlay_MatchesCategoryLabel(t *testing.T) {
	o := New(newScenarioStore(t), nil)
	assert.Equal(t, []string{"3"}, resultIDs(o.Search("E-BOOKS")))
	assert.Equal(t, []string{"2"}, resultIDs(o.Search("services")))
}

func TestOverlay_NoResultsState(t *testing.T) {
	o := New(newScenarioStore(t), nil)
	res := o.Search("<b>rust</b>")
	assert.Equal(t, StateNoResults, res.State)
	assert.Empty(t, res.Products)
	assert.Equal(t, `No products found for "rust"`, res.Message)
}

func TestOverlay_BlankQueryClearsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	o := New(newScenarioStore(t), nil, WithDelay(testDelay))
	defer o.Close()
	rec := &recorder{}
	o.Subscribe(rec.listen)

	o.Query("django")
	require.Eventually(t, func() bool { return o.Current().Active() }, time.Second, 5*time.Millisecond)

	o.Query("django bot")
	o.Query("   ")
	// no timer involved: the clear is visible right away and the pending search is dropped
	assert.Equal(t, StateInactive, o.Current().State)
	assert.False(t, o.Pending())

	time.Sleep(3 * testDelay)
	got := rec.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, StateResults, got[0].State)
	assert.Equal(t, StateInactive, got[1].State)
}

func TestOverlay_ClearWhenInactiveDoesNotNotify(t *testing.T) {
	o := New(newScenarioStore(t), nil)
	rec := &recorder{}
	o.Subscribe(rec.listen)
	o.Clear()
	assert.Empty(t, rec.snapshot())
}

func TestOverlay_CloseDropsPendingSearch(t *testing.T) {
	defer goleak.VerifyNone(t)

	o := New(newScenarioStore(t), nil, WithDelay(testDelay))
	rec := &recorder{}
	o.Subscribe(rec.listen)
	o.Query("django")
	o.Close()
	o.Query("bot")

	time.Sleep(3 * testDelay)
	assert.Empty(t, rec.snapshot())
}

func TestWithDelay_CapsAtMaximum(t *testing.T) {
	assert.Equal(t, MaxDelay, New(nil, nil, WithDelay(2*time.Second)).Delay())
	assert.Equal(t, 10*time.Millisecond, New(nil, nil, WithDelay(10*time.Millisecond)).Delay())
	assert.Equal(t, MaxDelay, New(nil, nil).Delay())
}

func TestOverlay_ClearDuringNotificationIsDeliveredLast(t *testing.T) {
	defer goleak.VerifyNone(t)

	o := New(newScenarioStore(t), nil, WithDelay(testDelay))
	defer o.Close()

	var once sync.Once
	cleared := make(chan struct{})
	o.Subscribe(func(res Result) {
		if !res.Active() {
			return
		}
		once.Do(func() {
			// a concurrent clear must wait for this notification round to finish
			go func() {
				o.Clear()
				close(cleared)
			}()
			select {
			case <-cleared:
			case <-time.After(50 * time.Millisecond):
			}
		})
	})
	rec := &recorder{}
	o.Subscribe(rec.listen)

	o.Query("django")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	<-cleared

	got := rec.snapshot()
	assert.Equal(t, StateResults, got[0].State)
	assert.Equal(t, StateInactive, got[1].State)
	assert.Equal(t, StateInactive, o.Current().State)
}

func TestOverlay_RerunFollowsCatalog(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newScenarioStore(t)
	o := New(s, nil, WithDelay(testDelay))
	defer o.Close()
	rec := &recorder{}
	o.Subscribe(rec.listen)

	o.Rerun()
	assert.Empty(t, rec.snapshot(), "an inactive overlay has nothing to recompute")

	o.Query("django")
	require.Eventually(t, func() bool { return o.Current().Active() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1", "3"}, resultIDs(o.Current()))

	s.Ingest([]domain.Record{{"id": 1, "name": "Django Course", "category": "courses"}})
	o.Rerun()

	assert.Equal(t, "django", o.Current().Query)
	assert.Equal(t, []string{"1"}, resultIDs(o.Current()))
	got := rec.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, []string{"1"}, resultIDs(got[1]))
}
