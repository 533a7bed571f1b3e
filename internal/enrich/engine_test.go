package enrich

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundtrail/soundtrail/internal/catalog"
	"github.com/soundtrail/soundtrail/internal/event"
)

var testTime = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

// mockResolver serves canned tracks keyed by normalized title/artist and
// counts every external lookup it is asked for.
type mockResolver struct {
	mu           sync.Mutex
	tracks       map[string]catalog.Track
	history      []catalog.PlayRecord
	searchCalls  int
	batchCalls   int
	batchQueries int
}

func newMockResolver() *mockResolver {
	return &mockResolver{tracks: make(map[string]catalog.Track)}
}

func (m *mockResolver) serve(title, artist string, track catalog.Track) {
	m.tracks[CacheKey(title, artist)] = track
}

func (m *mockResolver) Resolve(ctx context.Context, title, artist string) *catalog.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	if track, ok := m.tracks[CacheKey(title, artist)]; ok {
		return &track
	}
	return nil
}

func (m *mockResolver) ResolveBatch(ctx context.Context, queries []catalog.Query) map[string]*catalog.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	m.batchQueries += len(queries)

	results := make(map[string]*catalog.Track)
	for _, q := range queries {
		if track, ok := m.tracks[CacheKey(q.Title, q.Artist)]; ok {
			results[q.ID] = &track
		}
	}
	return results
}

func (m *mockResolver) RecentHistory(ctx context.Context, from, to time.Time) []catalog.PlayRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history
}

func (m *mockResolver) externalLookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchCalls + m.batchQueries
}

func testEngine(resolver Resolver, opts ...Option) *Engine {
	return New(resolver, NewMemoryCache(), zerolog.Nop(), opts...)
}

func receiveOne(t *testing.T, ch <-chan event.Enriched) event.Enriched {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal event")
		return event.Enriched{}
	}
}

func TestEnrichCacheHitSkipsNetwork(t *testing.T) {
	resolver := newMockResolver()
	cache := NewMemoryCache()
	engine := New(resolver, cache, zerolog.Nop())

	cache.Put("Human", "The Killers", catalog.Track{
		ID: "sp1", Name: "Human", Artist: "The Killers", Album: "Day & Age",
	})

	// No Start: a cache hit must complete without the worker running.
	got := receiveOne(t, engine.Enrich(event.Partial{
		ID: "e1", Timestamp: testTime, TrackName: "Human", ArtistName: "The Killers",
	}, event.ModeForeground))

	if got.TrackID != "sp1" || got.Fallback {
		t.Errorf("cache hit produced %+v, want enriched sp1", got)
	}
	if got.SessionMode != event.ModeForeground {
		t.Errorf("session mode = %q, want %q", got.SessionMode, event.ModeForeground)
	}
	if n := resolver.externalLookups(); n != 0 {
		t.Errorf("cache hit issued %d external lookups, want 0", n)
	}
}

func TestEnrichSizeTriggeredFlush(t *testing.T) {
	resolver := newMockResolver()
	resolver.serve("Song A", "Artist A", catalog.Track{ID: "a", Name: "Song A", Artist: "Artist A"})
	resolver.serve("Song B", "Artist B", catalog.Track{ID: "b", Name: "Song B", Artist: "Artist B"})
	resolver.serve("Song C", "Artist C", catalog.Track{ID: "c", Name: "Song C", Artist: "Artist C"})

	// Timer effectively disabled: only the size trigger can flush.
	engine := testEngine(resolver, WithBatchSize(3), WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	ch1 := engine.Enrich(event.Partial{ID: "e1", TrackName: "Song A", ArtistName: "Artist A"}, event.ModeForeground)
	ch2 := engine.Enrich(event.Partial{ID: "e2", TrackName: "Song B", ArtistName: "Artist B"}, event.ModeForeground)

	select {
	case <-ch1:
		t.Fatal("flush fired below the batch size")
	case <-time.After(150 * time.Millisecond):
	}

	ch3 := engine.Enrich(event.Partial{ID: "e3", TrackName: "Song C", ArtistName: "Artist C"}, event.ModeForeground)

	for _, ch := range []<-chan event.Enriched{ch1, ch2, ch3} {
		if got := receiveOne(t, ch); got.Fallback {
			t.Errorf("size-triggered flush produced fallback for %s", got.EventID)
		}
	}
}

func TestEnrichTimerFlushAndCacheIdempotence(t *testing.T) {
	resolver := newMockResolver()
	resolver.serve("Same Song", "Same Artist", catalog.Track{
		ID: "sp9", Name: "Same Song", Artist: "Same Artist",
	})

	engine := testEngine(resolver, WithBatchSize(10), WithFlushInterval(30*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	first := receiveOne(t, engine.Enrich(event.Partial{
		ID: "e1", Timestamp: testTime, TrackName: "Same Song", ArtistName: "Same Artist",
	}, event.ModeBackground))
	if first.TrackID != "sp9" {
		t.Fatalf("first enrich = %+v, want sp9", first)
	}

	// Same pair, different timestamp: must hit the warmed cache.
	second := receiveOne(t, engine.Enrich(event.Partial{
		ID: "e2", Timestamp: testTime.Add(time.Minute), TrackName: "Same Song", ArtistName: "Same Artist",
	}, event.ModeBackground))
	if second.TrackID != "sp9" {
		t.Fatalf("second enrich = %+v, want sp9", second)
	}

	if n := resolver.externalLookups(); n != 1 {
		t.Errorf("resolving the same pair twice issued %d external lookups, want 1", n)
	}
}

func TestEnrichBatchMissDeliversFallback(t *testing.T) {
	resolver := newMockResolver() // knows no tracks
	engine := testEngine(resolver, WithBatchSize(10), WithFlushInterval(30*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	got := receiveOne(t, engine.Enrich(event.Partial{
		ID: "e1", Timestamp: testTime, TrackName: "Obscure B-Side", ArtistName: "Unknown Act",
	}, event.ModeForeground))

	if !got.Fallback {
		t.Fatalf("expected fallback, got %+v", got)
	}
	if got.TrackID != "local:e1" {
		t.Errorf("fallback track id = %q, want %q", got.TrackID, "local:e1")
	}
	if got.TrackName != "Obscure B-Side" || got.ArtistName != "Unknown Act" {
		t.Errorf("fallback did not preserve raw fields: %+v", got)
	}
}

func TestEngineShutdownDegradesPending(t *testing.T) {
	resolver := newMockResolver()
	engine := testEngine(resolver, WithBatchSize(10), WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	engine.Start(ctx)

	ch := engine.Enrich(event.Partial{ID: "e1", TrackName: "Human", ArtistName: "The Killers"}, event.ModeForeground)
	cancel()

	got := receiveOne(t, ch)
	if !got.Fallback || got.TrackID != "local:e1" {
		t.Errorf("shutdown delivered %+v, want fallback local:e1", got)
	}
}

func TestReconcileHistoryMatch(t *testing.T) {
	resolver := newMockResolver()
	resolver.history = []catalog.PlayRecord{
		{
			Track:    catalog.Track{ID: "sp2", Name: "Neon Skylines", Artist: "The Killers"},
			PlayedAt: testTime.Add(10 * time.Second),
		},
	}
	cache := NewMemoryCache()
	engine := New(resolver, cache, zerolog.Nop())

	out := engine.Reconcile(context.Background(), testTime.Add(-time.Hour), testTime.Add(time.Hour),
		[]event.Partial{
			{ID: "e1", Timestamp: testTime, TrackName: "Neon Skyline", ArtistName: "The Killers"},
		}, event.ModeForeground)

	if len(out) != 1 {
		t.Fatalf("got %d events, want 1", len(out))
	}
	if out[0].Fallback || out[0].TrackName != "Neon Skylines" {
		t.Errorf("history match produced %+v, want canonical Neon Skylines", out[0])
	}
	if resolver.searchCalls != 0 {
		t.Errorf("history match still issued %d searches", resolver.searchCalls)
	}
	if _, ok := cache.Get("Neon Skyline", "The Killers"); !ok {
		t.Error("matched track was not written back to the cache")
	}
}

func TestReconcileSearchFallback(t *testing.T) {
	resolver := newMockResolver() // empty history
	resolver.serve("Deep Cut", "Small Band", catalog.Track{ID: "sp3", Name: "Deep Cut", Artist: "Small Band"})
	engine := testEngine(resolver)

	out := engine.Reconcile(context.Background(), testTime, testTime.Add(time.Hour),
		[]event.Partial{
			{ID: "e1", Timestamp: testTime, TrackName: "Deep Cut", ArtistName: "Small Band"},
		}, event.ModeBackground)

	if out[0].Fallback || out[0].TrackID != "sp3" {
		t.Errorf("search fallback produced %+v, want enriched sp3", out[0])
	}
	if resolver.searchCalls != 1 {
		t.Errorf("search fallback issued %d searches, want 1", resolver.searchCalls)
	}
}

func TestReconcileSyntheticFallback(t *testing.T) {
	resolver := newMockResolver() // no history, no search results
	engine := testEngine(resolver)

	out := engine.Reconcile(context.Background(), testTime, testTime.Add(time.Hour),
		[]event.Partial{
			{ID: "e7", Timestamp: testTime, TrackName: "Basement Tape", ArtistName: "Nobody"},
		}, event.ModeForeground)

	got := out[0]
	if !got.Fallback {
		t.Fatalf("expected fallback, got %+v", got)
	}
	if got.TrackID != "local:e7" {
		t.Errorf("fallback id = %q, want local:e7", got.TrackID)
	}
	if got.TrackName != "Basement Tape" {
		t.Errorf("fallback track name = %q, want raw name verbatim", got.TrackName)
	}
}

func TestReconcileCacheShortCircuitsRepeatPairs(t *testing.T) {
	resolver := newMockResolver()
	resolver.serve("Same Song", "Same Artist", catalog.Track{ID: "sp4", Name: "Same Song", Artist: "Same Artist"})
	engine := testEngine(resolver)

	out := engine.Reconcile(context.Background(), testTime, testTime.Add(time.Hour),
		[]event.Partial{
			{ID: "e1", Timestamp: testTime, TrackName: "Same Song", ArtistName: "Same Artist"},
			{ID: "e2", Timestamp: testTime.Add(5 * time.Minute), TrackName: "Same Song", ArtistName: "Same Artist"},
		}, event.ModeForeground)

	if out[0].TrackID != "sp4" || out[1].TrackID != "sp4" {
		t.Fatalf("expected both events enriched with sp4: %+v", out)
	}
	if resolver.searchCalls != 1 {
		t.Errorf("two identical pairs issued %d searches, want 1 (second should hit the cache)", resolver.searchCalls)
	}
}

func TestReconcileTotality(t *testing.T) {
	resolver := newMockResolver()
	resolver.history = []catalog.PlayRecord{
		{Track: catalog.Track{ID: "h1", Name: "Matched Song", Artist: "Artist X"}, PlayedAt: testTime.Add(20 * time.Second)},
	}
	resolver.serve("Searchable", "Artist Y", catalog.Track{ID: "s1", Name: "Searchable", Artist: "Artist Y"})
	engine := testEngine(resolver)

	partials := []event.Partial{
		{ID: "e1", Timestamp: testTime, TrackName: "Matched Song", ArtistName: "Artist X"},
		{ID: "e2", Timestamp: testTime.Add(time.Minute), TrackName: "Searchable", ArtistName: "Artist Y"},
		{ID: "e3", Timestamp: testTime.Add(2 * time.Minute), TrackName: "Lost Forever", ArtistName: "Nobody"},
	}

	out := engine.Reconcile(context.Background(), testTime, testTime.Add(time.Hour), partials, event.ModeForeground)

	if len(out) != len(partials) {
		t.Fatalf("got %d terminal events for %d inputs", len(out), len(partials))
	}
	for i, p := range partials {
		if out[i].EventID != p.ID {
			t.Errorf("out[%d].EventID = %s, want %s (input order preserved)", i, out[i].EventID, p.ID)
		}
	}

	byOutcome := map[string]bool{}
	for _, e := range out {
		byOutcome[e.EventID] = e.Fallback
	}
	if byOutcome["e1"] || byOutcome["e2"] {
		t.Error("resolvable events came back as fallback")
	}
	if !byOutcome["e3"] {
		t.Error("unresolvable event did not come back as fallback")
	}
	if !strings.HasPrefix(out[2].TrackID, event.FallbackIDPrefix) {
		t.Errorf("fallback id = %q, want %q prefix", out[2].TrackID, event.FallbackIDPrefix)
	}
}
