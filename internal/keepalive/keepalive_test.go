package keepalive

import (
	"testing"
	"time"

	"github.com/roel-gerrits/nervix/internal/reactor"
)

// fakeClock/fakeTimer implement reactor.Clock/reactor.Timer so the test can
// drive ticks manually instead of waiting on wall time.
type fakeClock struct {
	timers []*fakeTimer
}

func (c *fakeClock) NewTimer() reactor.Timer {
	t := &fakeTimer{}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) tick() {
	for _, t := range c.timers {
		if t.armed && t.handler != nil {
			t.handler()
		}
	}
}

type fakeTimer struct {
	handler func()
	armed   bool
}

func (t *fakeTimer) SetHandler(fn func()) { t.handler = fn }
func (t *fakeTimer) Set(time.Duration)    { t.armed = true }
func (t *fakeTimer) Cancel()              { t.armed = false }

func TestKeepAliveWarnsThenDies(t *testing.T) {
	clock := &fakeClock{}
	k := NewWithTimings(clock, time.Second, 2*time.Second, 2*time.Second)

	var warned, dead bool
	k.SetWarningHandler(func() { warned = true })
	k.SetDeadHandler(func() { dead = true })

	clock.tick() // 1s idle
	if warned {
		t.Fatalf("should not warn before max idle time")
	}
	clock.tick() // 2s idle -> warn
	if !warned {
		t.Fatalf("expected warning at max idle time")
	}
	if dead {
		t.Fatalf("should not be dead yet")
	}

	clock.tick() // 1s warned
	clock.tick() // 2s warned -> dead
	if !dead {
		t.Fatalf("expected dead after max warning time")
	}
}

func TestKeepAliveTickleResetsToActive(t *testing.T) {
	clock := &fakeClock{}
	k := NewWithTimings(clock, time.Second, 2*time.Second, 2*time.Second)

	var warned bool
	k.SetWarningHandler(func() { warned = true })

	clock.tick()
	k.Tickle()
	clock.tick()
	if warned {
		t.Fatalf("tickle should have reset the idle clock")
	}
}
