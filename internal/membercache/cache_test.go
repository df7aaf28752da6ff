package membercache

import (
	"context"
	"testing"
	"time"
)

func TestMembersLoadsOnceUntilExpiry(t *testing.T) {
	calls := 0
	c := New(time.Minute, func(context.Context, string) ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		uids, err := c.Members(context.Background(), "r1")
		if err != nil || len(uids) != 2 {
			t.Fatalf("members: %v %v", uids, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 load, got %d", calls)
	}

	now = now.Add(2 * time.Minute)
	_, _ = c.Members(context.Background(), "r1")
	if calls != 2 {
		t.Fatalf("expected reload after ttl, got %d loads", calls)
	}

	c.Invalidate("r1")
	_, _ = c.Members(context.Background(), "r1")
	if calls != 3 {
		t.Fatalf("expected reload after invalidate, got %d loads", calls)
	}
}
