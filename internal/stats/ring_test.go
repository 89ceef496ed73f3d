package stats

import "testing"

func TestRingPushBelowCapacity(t *testing.T) {
	r := NewRing[int](4)
	r.Push(1)
	r.Push(2)
	r.Push(3)

	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	want := []int{1, 2, 3}
	for i, v := range r.Items() {
		if v != want[i] {
			t.Errorf("Items[%d] = %d, want %d", i, v, want[i])
		}
	}
}

func TestRingEvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	want := []int{3, 4, 5}
	for i, v := range r.Items() {
		if v != want[i] {
			t.Errorf("Items[%d] = %d, want %d", i, v, want[i])
		}
	}
}

func TestRingEachStopsEarly(t *testing.T) {
	r := NewRing[int](8)
	for i := 0; i < 8; i++ {
		r.Push(i)
	}

	var visited int
	r.Each(func(v int) bool {
		visited++
		return v < 2
	})
	if visited != 4 {
		t.Errorf("visited %d entries, want 4", visited)
	}
}

func TestRingMinimumCapacity(t *testing.T) {
	r := NewRing[int](0)
	r.Push(1)
	r.Push(2)
	if r.Len() != 1 || r.Items()[0] != 2 {
		t.Errorf("Len = %d, Items = %v, want single latest entry", r.Len(), r.Items())
	}
}
