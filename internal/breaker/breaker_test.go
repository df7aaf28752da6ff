package breaker

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestOpensAfterThreshold(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New(Options{Threshold: 3, Window: time.Minute, OpenFor: 10 * time.Second, Now: clk.Now})

	const host = "fcm.googleapis.com"
	if b.Failure(host) || b.Failure(host) {
		t.Fatalf("breaker opened before threshold")
	}
	if !b.Allow(host) {
		t.Fatalf("breaker must allow below threshold")
	}
	if !b.Failure(host) {
		t.Fatalf("third failure must open the breaker")
	}
	if b.Allow(host) {
		t.Fatalf("open breaker must reject")
	}
	if !b.Allow("updates.push.services.mozilla.com") {
		t.Fatalf("other hosts are independent")
	}

	clk.Advance(11 * time.Second)
	if !b.Allow(host) {
		t.Fatalf("breaker must half-open after OpenFor")
	}
}

func TestSuccessResets(t *testing.T) {
	b := New(Options{Threshold: 2})
	b.Failure("h")
	b.Success("h")
	if b.Failure("h") {
		t.Fatalf("counter must restart after success")
	}
}

func TestWindowExpiryRestartsCount(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New(Options{Threshold: 2, Window: time.Second, Now: clk.Now})
	b.Failure("h")
	clk.Advance(2 * time.Second)
	if b.Failure("h") {
		t.Fatalf("failure outside window must not open")
	}
}
