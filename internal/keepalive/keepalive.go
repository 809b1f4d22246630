// Package keepalive implements the idle-connection watchdog shared by both
// wire transports: ping a quiet client once, then drop it if it stays
// quiet. The watchdog keeps no reactor state of its own; it only borrows
// the reactor's Clock/Timer abstraction for its ticks.
package keepalive

import (
	"sync"
	"time"

	"github.com/roel-gerrits/nervix/internal/reactor"
)

type state int

const (
	stateActive state = iota
	stateWarned
	stateDead
)

const (
	defaultResolution  = 1 * time.Second
	defaultMaxIdleTime = 10 * time.Second
	defaultMaxWarnTime = 10 * time.Second
)

// KeepAlive ticks once per resolution; if Tickle has not been called for
// maxIdleTime it fires the warning handler, and if it then goes a further
// maxWarnTime without a Tickle it fires the dead handler and stops ticking.
//
// Tickle is called from a connection's read goroutine while tick runs on
// the clock's own timer goroutine, so all mutable state is guarded by mu.
type KeepAlive struct {
	resolution  time.Duration
	maxIdleTime time.Duration
	maxWarnTime time.Duration

	timer reactor.Timer

	mu        sync.Mutex
	state     state
	idleFor   time.Duration
	warnFor   time.Duration
	warnFn    func()
	deadFn    func()
	destroyed bool
}

// New creates a KeepAlive using clock for its tick timer, with the default
// 10s idle / 10s warning windows ticked once a second.
func New(clock reactor.Clock) *KeepAlive {
	return NewWithTimings(clock, defaultResolution, defaultMaxIdleTime, defaultMaxWarnTime)
}

// NewWithTimings is New with explicit tick resolution and thresholds, for
// tests that want a faster clock.
func NewWithTimings(clock reactor.Clock, resolution, maxIdleTime, maxWarnTime time.Duration) *KeepAlive {
	k := &KeepAlive{
		resolution:  resolution,
		maxIdleTime: maxIdleTime,
		maxWarnTime: maxWarnTime,
		timer:       clock.NewTimer(),
	}
	k.timer.SetHandler(k.tick)
	k.timer.Set(k.resolution)
	return k
}

// SetWarningHandler registers the callback invoked once when the
// connection first crosses the idle threshold.
func (k *KeepAlive) SetWarningHandler(fn func()) {
	k.mu.Lock()
	k.warnFn = fn
	k.mu.Unlock()
}

// SetDeadHandler registers the callback invoked once the connection stays
// quiet past the warning threshold; after this fires the KeepAlive stops
// ticking on its own.
func (k *KeepAlive) SetDeadHandler(fn func()) {
	k.mu.Lock()
	k.deadFn = fn
	k.mu.Unlock()
}

// Tickle resets the watchdog to the active state; call on every inbound
// packet or line.
func (k *KeepAlive) Tickle() {
	k.mu.Lock()
	k.state = stateActive
	k.idleFor = 0
	k.warnFor = 0
	k.mu.Unlock()
}

// Destroy stops the watchdog's timer. Safe to call more than once, and
// safe to call from within the dead handler itself.
func (k *KeepAlive) Destroy() {
	k.mu.Lock()
	if k.destroyed {
		k.mu.Unlock()
		return
	}
	k.destroyed = true
	k.mu.Unlock()
	k.timer.Cancel()
}

// tick advances the watchdog by one resolution step. It holds mu only long
// enough to read and update state: the warn/dead handler and the timer
// re-arm both run outside the lock, since a dead handler commonly calls
// back into Destroy (which takes mu itself).
func (k *KeepAlive) tick() {
	k.mu.Lock()
	if k.destroyed {
		k.mu.Unlock()
		return
	}

	var fire func()
	rearm := true

	switch k.state {
	case stateActive:
		k.idleFor += k.resolution
		if k.idleFor >= k.maxIdleTime {
			k.state = stateWarned
			k.warnFor = 0
			fire = k.warnFn
		}
	case stateWarned:
		k.warnFor += k.resolution
		if k.warnFor >= k.maxWarnTime {
			k.state = stateDead
			fire = k.deadFn
			rearm = false
		}
	case stateDead:
		rearm = false
	}
	k.mu.Unlock()

	if fire != nil {
		fire()
	}
	if rearm {
		k.timer.Set(k.resolution)
	}
}
