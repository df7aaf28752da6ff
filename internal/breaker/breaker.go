package breaker

import (
	"sync"
	"time"
)

// Breaker trips per key (push service host). Threshold failures inside Window open the
// key for OpenFor; any success clears it.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	openFor   time.Duration
	now       func() time.Time

	state map[string]*keyState
}

type keyState struct {
	failCount int
	firstFail time.Time
	openUntil time.Time
}

type Options struct {
	Threshold int
	Window    time.Duration
	OpenFor   time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

func New(opt Options) *Breaker {
	if opt.Threshold <= 0 {
		opt.Threshold = 5
	}
	if opt.Window <= 0 {
		opt.Window = 30 * time.Second
	}
	if opt.OpenFor <= 0 {
		opt.OpenFor = 30 * time.Second
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Breaker{
		threshold: opt.Threshold,
		window:    opt.Window,
		openFor:   opt.OpenFor,
		now:       opt.Now,
		state:     make(map[string]*keyState),
	}
}

func (b *Breaker) Allow(key string) bool {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.state[key]
	if !ok {
		return true
	}
	return s.openUntil.IsZero() || !now.Before(s.openUntil)
}

func (b *Breaker) Success(key string) {
	b.mu.Lock()
	delete(b.state, key)
	b.mu.Unlock()
}

// Failure records one failure and reports whether it opened the breaker.
func (b *Breaker) Failure(key string) (opened bool) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.state[key]
	if !ok || now.Sub(s.firstFail) > b.window {
		b.state[key] = &keyState{failCount: 1, firstFail: now}
		if b.threshold == 1 {
			b.state[key].openUntil = now.Add(b.openFor)
			return true
		}
		return false
	}

	s.failCount++
	if s.failCount >= b.threshold && (s.openUntil.IsZero() || !now.Before(s.openUntil)) {
		s.openUntil = now.Add(b.openFor)
		return true
	}
	return false
}
