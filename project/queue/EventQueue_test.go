package queue

import (
	"testing"
	"time"
)

type item struct {
	at  time.Duration
	tag int
}

func (i item) When() time.Duration {
	return i.at
}

func TestOrderedInsert(t *testing.T) {
	q := NewEventQueue(8)
	for _, it := range []item{{30, 0}, {10, 1}, {20, 2}} {
		if !q.Put(it) {
			t.Fatalf("put rejected with room available")
		}
	}
	var got []time.Duration
	for {
		it, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, it.When())
	}
	if len(got) != 3 || got[0] != 10 || got[1] != 20 || got[2] != 30 {
		t.Fatalf("pop order %v", got)
	}
}

func TestStableForEqualDeadlines(t *testing.T) {
	q := NewEventQueue(8)
	q.Put(item{5, 1})
	q.Put(item{5, 2})
	q.Put(item{5, 3})
	for want := 1; want <= 3; want++ {
		it, ok := q.Pop()
		if !ok || it.(item).tag != want {
			t.Fatalf("equal deadlines must pop in insertion order, got %v", it)
		}
	}
}

func TestBound(t *testing.T) {
	q := NewEventQueue(2)
	if !q.Put(item{1, 0}) || !q.Put(item{2, 0}) {
		t.Fatalf("puts within bound rejected")
	}
	if q.Is_room() {
		t.Fatalf("full queue reports room")
	}
	if q.Put(item{3, 0}) {
		t.Fatalf("put beyond bound accepted")
	}
	q.Pop()
	if !q.Is_room() || !q.Put(item{3, 0}) {
		t.Fatalf("queue did not free a slot after pop")
	}
}
