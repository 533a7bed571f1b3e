package enrich

import (
	"sync"
	"time"

	"github.com/soundtrail/soundtrail/internal/event"
)

// pending wraps a partial event awaiting batch resolution. It lives only
// inside the queue; once drained into a batch it is gone from the map.
// Re-submitting an id while it is still pending adds another waiter to
// the same entry, so every caller still receives a terminal event.
type pending struct {
	partial    event.Partial
	mode       event.SessionMode
	waiters    []chan event.Enriched
	enqueuedAt time.Time
}

// deliver sends the terminal event to every waiter and closes their
// channels.
func (p pending) deliver(e event.Enriched) {
	for _, w := range p.waiters {
		w <- e
		close(w)
	}
}

// queue accumulates not-yet-resolved partial events keyed by event id.
// A single mutex covers insert and drain so the two can never race, and
// an entry belongs to at most one in-flight batch. The kick channel
// signals the worker to flush immediately when the pending count reaches
// the batch size; the worker's ticker covers the rest, bounding any
// entry's wait to the flush interval.
type queue struct {
	mu        sync.Mutex
	entries   map[string]pending
	order     []string
	batchSize int

	kick chan struct{}
}

func newQueue(batchSize int) *queue {
	return &queue{
		entries:   make(map[string]pending),
		batchSize: batchSize,
		kick:      make(chan struct{}, 1),
	}
}

// add inserts the entry and kicks the worker if the pending count has
// reached the batch size. Re-enqueueing an id already pending merges the
// new waiters into the existing entry without duplicating its position.
func (q *queue) add(p pending) {
	q.mu.Lock()
	if prev, exists := q.entries[p.partial.ID]; exists {
		p.waiters = append(prev.waiters, p.waiters...)
		p.enqueuedAt = prev.enqueuedAt
	} else {
		q.order = append(q.order, p.partial.ID)
	}
	q.entries[p.partial.ID] = p
	full := len(q.entries) >= q.batchSize
	q.mu.Unlock()

	if full {
		select {
		case q.kick <- struct{}{}:
		default:
		}
	}
}

// drain atomically removes and returns up to batchSize entries in
// enqueue order. Entries beyond the cap stay pending for the next
// trigger.
func (q *queue) drain() []pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.order)
	if n > q.batchSize {
		n = q.batchSize
	}
	if n == 0 {
		return nil
	}

	batch := make([]pending, 0, n)
	for _, id := range q.order[:n] {
		batch = append(batch, q.entries[id])
		delete(q.entries, id)
	}
	q.order = q.order[n:]
	return batch
}

// drainAll removes and returns every pending entry, for shutdown.
func (q *queue) drainAll() []pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := make([]pending, 0, len(q.order))
	for _, id := range q.order {
		batch = append(batch, q.entries[id])
	}
	q.entries = make(map[string]pending)
	q.order = nil
	return batch
}

// size returns the current pending count.
func (q *queue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
