package ringqueue

import (
	"testing"

	"github.com/momentics/vtx/api"
)

func TestStoreAndDropOldestFIFO(t *testing.T) {
	q := New(4)
	for i := 0; i < 4; i++ {
		q.Store(api.Frame{Body: []byte{byte(i)}})
	}
	if q.Len() != 4 {
		t.Fatalf("len = %d, want 4", q.Len())
	}
	for i := 0; i < 4; i++ {
		f, ok := q.DropOldest()
		if !ok {
			t.Fatalf("DropOldest() ok=false at i=%d", i)
		}
		if f.Body[0] != byte(i) {
			t.Fatalf("DropOldest() = %v, want %d", f.Body, i)
		}
	}
	if _, ok := q.DropOldest(); ok {
		t.Fatalf("DropOldest() on empty queue returned ok=true")
	}
}

func TestStoreOverflowDropsOldest(t *testing.T) {
	q := New(2)
	q.Store(api.Frame{Body: []byte{1}})
	q.Store(api.Frame{Body: []byte{2}})
	q.Store(api.Frame{Body: []byte{3}}) // should evict frame 1

	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}
	f, _ := q.PeekOldest()
	if f.Body[0] != 2 {
		t.Fatalf("PeekOldest() = %v, want [2]", f.Body)
	}
	f, _ = q.PeekNewest()
	if f.Body[0] != 3 {
		t.Fatalf("PeekNewest() = %v, want [3]", f.Body)
	}
}

func TestDropNewest(t *testing.T) {
	q := New(3)
	q.Store(api.Frame{Body: []byte{1}})
	q.Store(api.Frame{Body: []byte{2}})
	q.Store(api.Frame{Body: []byte{3}})

	f, ok := q.DropNewest()
	if !ok || f.Body[0] != 3 {
		t.Fatalf("DropNewest() = %v, %v, want [3], true", f.Body, ok)
	}
	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}
	f, _ = q.PeekNewest()
	if f.Body[0] != 2 {
		t.Fatalf("PeekNewest() = %v, want [2]", f.Body)
	}
}

func TestCapReportsFixedCapacity(t *testing.T) {
	q := New(7)
	if q.Cap() != 7 {
		t.Fatalf("Cap() = %d, want 7", q.Cap())
	}
	q.Store(api.Frame{})
	if q.Cap() != 7 {
		t.Fatalf("Cap() changed after Store: %d", q.Cap())
	}
}

func TestNewClampsMinimumCapacity(t *testing.T) {
	q := New(0)
	if q.Cap() != 1 {
		t.Fatalf("Cap() = %d, want 1 for New(0)", q.Cap())
	}
}
