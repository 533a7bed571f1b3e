package enrich

import (
	"fmt"
	"testing"
	"time"

	"github.com/soundtrail/soundtrail/internal/event"
)

func pendingWithID(id string) pending {
	return pending{
		partial:    event.Partial{ID: id, TrackName: "t-" + id, ArtistName: "a-" + id},
		mode:       event.ModeForeground,
		waiters:    []chan event.Enriched{make(chan event.Enriched, 1)},
		enqueuedAt: time.Now(),
	}
}

func kicked(q *queue) bool {
	select {
	case <-q.kick:
		return true
	default:
		return false
	}
}

func TestQueueKicksAtBatchSize(t *testing.T) {
	q := newQueue(3)

	q.add(pendingWithID("e1"))
	q.add(pendingWithID("e2"))
	if kicked(q) {
		t.Fatal("queue kicked below batch size")
	}

	q.add(pendingWithID("e3"))
	if !kicked(q) {
		t.Fatal("queue did not kick at batch size")
	}
}

func TestQueueDrainCapsAtBatchSize(t *testing.T) {
	q := newQueue(3)
	for i := 0; i < 5; i++ {
		q.add(pendingWithID(fmt.Sprintf("e%d", i)))
	}

	first := q.drain()
	if len(first) != 3 {
		t.Fatalf("first drain returned %d entries, want 3", len(first))
	}
	for i, p := range first {
		want := fmt.Sprintf("e%d", i)
		if p.partial.ID != want {
			t.Errorf("drain[%d] = %s, want %s (enqueue order)", i, p.partial.ID, want)
		}
	}

	second := q.drain()
	if len(second) != 2 {
		t.Fatalf("second drain returned %d entries, want the 2 leftovers", len(second))
	}
	if second[0].partial.ID != "e3" || second[1].partial.ID != "e4" {
		t.Errorf("second drain = %s, %s; want e3, e4", second[0].partial.ID, second[1].partial.ID)
	}

	if q.size() != 0 || len(q.drain()) != 0 {
		t.Error("queue not empty after draining everything")
	}
}

func TestQueueMergesDuplicateID(t *testing.T) {
	q := newQueue(10)
	q.add(pendingWithID("e1"))

	replacement := pendingWithID("e1")
	replacement.partial.TrackName = "updated"
	q.add(replacement)

	if q.size() != 1 {
		t.Fatalf("queue size = %d after duplicate add, want 1", q.size())
	}
	batch := q.drain()
	if batch[0].partial.TrackName != "updated" {
		t.Errorf("duplicate add did not take latest fields: %q", batch[0].partial.TrackName)
	}
	if len(batch[0].waiters) != 2 {
		t.Errorf("duplicate add kept %d waiters, want both", len(batch[0].waiters))
	}

	done := event.Enriched{EventID: "e1", TrackID: "t1"}
	batch[0].deliver(done)
	for i, w := range batch[0].waiters {
		got, ok := <-w
		if !ok || got.TrackID != "t1" {
			t.Errorf("waiter %d: got (%v, %v), want delivered event", i, got, ok)
		}
	}
}

func TestQueueDrainAll(t *testing.T) {
	q := newQueue(2)
	for i := 0; i < 5; i++ {
		q.add(pendingWithID(fmt.Sprintf("e%d", i)))
	}

	all := q.drainAll()
	if len(all) != 5 {
		t.Fatalf("drainAll returned %d entries, want 5", len(all))
	}
	if q.size() != 0 {
		t.Error("queue not empty after drainAll")
	}
}
