package enrich

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundtrail/soundtrail/internal/catalog"
	"github.com/soundtrail/soundtrail/internal/event"
	"github.com/soundtrail/soundtrail/internal/match"
)

// Defaults for the engine's tunables.
const (
	// DefaultBatchSize is the flush threshold and per-batch cap,
	// matched to how many serial provider searches fit comfortably
	// inside one flush interval.
	DefaultBatchSize = 10

	// DefaultFlushInterval bounds how long a queued event waits before
	// a timer-triggered flush picks it up.
	DefaultFlushInterval = 5 * time.Second

	// DefaultMatchWindow is how far a history record's play time may
	// sit from a partial's capture time and still be considered.
	DefaultMatchWindow = 180 * time.Second

	// DefaultReconcileTimeout caps a whole reconcile pass. The cascade
	// degrades anything unresolved at the deadline to a fallback event
	// rather than blocking the caller on a slow provider.
	DefaultReconcileTimeout = 90 * time.Second
)

// Resolver is the catalog lookup surface the engine depends on. All
// methods report failure as absence; none return errors.
type Resolver interface {
	Resolve(ctx context.Context, title, artist string) *catalog.Track
	ResolveBatch(ctx context.Context, queries []catalog.Query) map[string]*catalog.Track
	RecentHistory(ctx context.Context, from, to time.Time) []catalog.PlayRecord
}

// Engine ties the cache, pending queue, catalog client, and matching
// together. Every partial event handed to it yields exactly one terminal
// event, enriched or fallback; no external failure ever reaches the
// caller.
type Engine struct {
	resolver Resolver
	cache    Cache
	queue    *queue
	log      zerolog.Logger

	flushInterval    time.Duration
	matchWindow      time.Duration
	reconcileTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize sets the flush threshold and per-batch cap.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		e.queue = newQueue(n)
	}
}

// WithFlushInterval sets the periodic flush interval.
func WithFlushInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.flushInterval = d
	}
}

// WithMatchWindow sets the history-matching time window.
func WithMatchWindow(d time.Duration) Option {
	return func(e *Engine) {
		e.matchWindow = d
	}
}

// WithReconcileTimeout sets the deadline applied to each Reconcile call.
func WithReconcileTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.reconcileTimeout = d
	}
}

// New creates an engine over the given resolver and cache.
func New(resolver Resolver, cache Cache, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		resolver:         resolver,
		cache:            cache,
		queue:            newQueue(DefaultBatchSize),
		log:              logger.With().Str("component", "enrich").Logger(),
		flushInterval:    DefaultFlushInterval,
		matchWindow:      DefaultMatchWindow,
		reconcileTimeout: DefaultReconcileTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the background worker that services timer- and
// size-triggered flushes. The worker runs until ctx is cancelled; on
// shutdown it degrades anything still pending to fallback events so no
// caller is left waiting.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

// Enrich resolves a single partial event in real time. On a cache hit
// the result channel carries the enriched event immediately, with no
// network touched. On a miss the event is queued for the next batch
// flush; the channel eventually carries either the enriched event or,
// when resolution fails for good, a fallback built from the raw fields.
// The returned channel is buffered and closed after the single send.
func (e *Engine) Enrich(partial event.Partial, mode event.SessionMode) <-chan event.Enriched {
	out := make(chan event.Enriched, 1)

	if track, ok := e.cache.Get(partial.TrackName, partial.ArtistName); ok {
		out <- enrichedFrom(partial, track, mode)
		close(out)
		return out
	}

	e.queue.add(pending{
		partial:    partial,
		mode:       mode,
		waiters:    []chan event.Enriched{out},
		enqueuedAt: time.Now(),
	})
	return out
}

// Reconcile resolves a whole session's partial events against the
// provider's authoritative play history, falling back per event to a
// text search and finally to a synthetic fallback. The result holds
// exactly one terminal event per input, in input order.
func (e *Engine) Reconcile(ctx context.Context, start, end time.Time, partials []event.Partial, mode event.SessionMode) []event.Enriched {
	ctx, cancel := context.WithTimeout(ctx, e.reconcileTimeout)
	defer cancel()

	history := e.resolver.RecentHistory(ctx, start, end)
	e.log.Info().
		Int("partials", len(partials)).
		Int("history", len(history)).
		Msg("reconciling session")

	out := make([]event.Enriched, len(partials))
	for i, p := range partials {
		out[i] = e.reconcileOne(ctx, p, history, mode)
	}
	return out
}

// reconcileOne walks one partial through the cascade: history match,
// then cache, then per-event search, then synthetic fallback.
func (e *Engine) reconcileOne(ctx context.Context, p event.Partial, history []catalog.PlayRecord, mode event.SessionMode) event.Enriched {
	if rec, ok := match.Match(p, history, e.matchWindow); ok {
		e.cache.Put(p.TrackName, p.ArtistName, rec.Track)
		return enrichedFrom(p, rec.Track, mode)
	}

	if track, ok := e.cache.Get(p.TrackName, p.ArtistName); ok {
		return enrichedFrom(p, track, mode)
	}

	// Per-event search catches plays outside the history window. Slower,
	// so it only runs for the leftovers.
	if track := e.resolver.Resolve(ctx, p.TrackName, p.ArtistName); track != nil {
		e.cache.Put(p.TrackName, p.ArtistName, *track)
		return enrichedFrom(p, *track, mode)
	}

	return fallbackFrom(p, mode)
}

func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case <-ticker.C:
			e.flushPending(ctx)
		case <-e.queue.kick:
			e.flushPending(ctx)
		}
	}
}

// flushPending drains up to one batch and resolves it. If a backlog
// beyond the batch cap remains, it re-kicks itself so sustained overload
// keeps flushing without waiting out the timer.
func (e *Engine) flushPending(ctx context.Context) {
	batch := e.queue.drain()
	if len(batch) == 0 {
		return
	}

	e.resolveBatch(ctx, batch)

	if e.queue.size() >= e.queue.batchSize {
		select {
		case e.queue.kick <- struct{}{}:
		default:
		}
	}
}

// resolveBatch issues one deduplicated catalog query per distinct
// title/artist pair in the batch, writes results back to the cache, and
// delivers a terminal event to every waiter.
func (e *Engine) resolveBatch(ctx context.Context, batch []pending) {
	var queries []catalog.Query
	seen := make(map[string]bool)
	for _, p := range batch {
		key := CacheKey(p.partial.TrackName, p.partial.ArtistName)
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, ok := e.cache.Get(p.partial.TrackName, p.partial.ArtistName); ok {
			continue
		}
		queries = append(queries, catalog.Query{
			ID:     key,
			Title:  p.partial.TrackName,
			Artist: p.partial.ArtistName,
		})
	}

	results := e.resolver.ResolveBatch(ctx, queries)
	for _, q := range queries {
		if track := results[q.ID]; track != nil {
			e.cache.Put(q.Title, q.Artist, *track)
		}
	}

	for _, p := range batch {
		if track, ok := e.cache.Get(p.partial.TrackName, p.partial.ArtistName); ok {
			p.deliver(enrichedFrom(p.partial, track, p.mode))
		} else {
			p.deliver(fallbackFrom(p.partial, p.mode))
		}
	}
}

// shutdown delivers fallbacks for everything still pending so the
// totality guarantee holds across engine teardown.
func (e *Engine) shutdown() {
	remaining := e.queue.drainAll()
	if len(remaining) == 0 {
		return
	}
	e.log.Info().Int("pending", len(remaining)).Msg("engine stopping, degrading pending events to fallback")
	for _, p := range remaining {
		p.deliver(fallbackFrom(p.partial, p.mode))
	}
}

// enrichedFrom merges a partial's temporal and location fields with
// canonical track metadata.
func enrichedFrom(p event.Partial, track catalog.Track, mode event.SessionMode) event.Enriched {
	return event.Enriched{
		EventID:       p.ID,
		TrackID:       track.ID,
		TrackName:     track.Name,
		ArtistName:    track.Artist,
		AlbumName:     track.Album,
		Genre:         track.Genre,
		Timestamp:     p.Timestamp,
		Latitude:      p.Latitude,
		Longitude:     p.Longitude,
		LocationLabel: p.LocationLabel,
		SessionMode:   mode,
	}
}

// fallbackFrom builds the terminal event for a partial that never
// resolved: raw fields verbatim under a locally synthesized id.
func fallbackFrom(p event.Partial, mode event.SessionMode) event.Enriched {
	return event.Enriched{
		EventID:       p.ID,
		TrackID:       event.FallbackIDPrefix + p.ID,
		TrackName:     p.TrackName,
		ArtistName:    p.ArtistName,
		AlbumName:     p.AlbumName,
		Timestamp:     p.Timestamp,
		Latitude:      p.Latitude,
		Longitude:     p.Longitude,
		LocationLabel: p.LocationLabel,
		SessionMode:   mode,
		Fallback:      true,
	}
}
