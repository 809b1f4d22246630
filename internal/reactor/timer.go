package reactor

import (
	"sync"
	"time"
)

// Timer is a one-shot alarm. SetHandler must be called before Set. Set
// re-arms the timer, replacing any previously armed deadline. Cancel is
// idempotent and, if the timer has already fired but its handler has not
// yet run, prevents that handler from running.
type Timer interface {
	SetHandler(fn func())
	Set(d time.Duration)
	Cancel()
}

// Clock creates Timers. Reactor takes a Clock so tests can supply a fake
// one and fire timers deterministically instead of waiting on wall time.
type Clock interface {
	NewTimer() Timer
}

// realClock is the production Clock, backed by time.AfterFunc.
type realClock struct{}

// NewRealClock returns the Clock a running daemon uses: every Timer it
// hands out is backed by a real time.AfterFunc goroutine.
func NewRealClock() Clock {
	return realClock{}
}

func (realClock) NewTimer() Timer {
	return &realTimer{}
}

type realTimer struct {
	mu      sync.Mutex
	handler func()
	timer   *time.Timer
	gen     uint64 // bumped on every Set/Cancel so stale fires are ignored
}

func (t *realTimer) SetHandler(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
}

func (t *realTimer) Set(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		handler := t.handler
		fired := gen == t.gen
		t.mu.Unlock()
		if fired && handler != nil {
			handler()
		}
	})
}

func (t *realTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
}
