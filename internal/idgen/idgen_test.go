package idgen

import "testing"

func TestNextIsIncreasing(t *testing.T) {
	g, err := New(7)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var last int64
	for i := 0; i < 1000; i++ {
		id, err := g.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if id <= last {
			t.Fatalf("id %d not greater than %d", id, last)
		}
		last = id
	}
}
