// Package diag holds the small operator-facing diagnostics surface that
// rides alongside the reactor without ever touching its state directly: a
// bounded, expiring feed of recent trace events for the /debug/activity
// HTTP endpoint.
package diag

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultFeedSize = 500
	defaultFeedTTL  = 10 * time.Minute
)

// Event is one recent happening worth surfacing to an operator looking at
// /debug/activity: a channel lifecycle transition, a dropped verb, a
// logic-error trace. It deliberately carries no payload bytes — only
// metadata — so the feed is safe to expose without leaking client data.
type Event struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Channel uint64    `json:"channel"`
	Detail  string    `json:"detail"`
}

// ActivityFeed is a bounded, TTL-expiring ring of recent Events. Unlike
// Reactor's State, entries here may be silently evicted: this is a debug
// aid, not a source of truth, so using an expiring LRU (rather than
// hand-rolling a ring buffer) is the correct trade-off.
type ActivityFeed struct {
	cache *expirable.LRU[int64, Event]
	seq   int64
}

// NewActivityFeed creates a feed holding up to size events, each expiring
// after ttl. A zero size or ttl falls back to the package defaults.
func NewActivityFeed(size int, ttl time.Duration) *ActivityFeed {
	if size <= 0 {
		size = defaultFeedSize
	}
	if ttl <= 0 {
		ttl = defaultFeedTTL
	}
	return &ActivityFeed{cache: expirable.NewLRU[int64, Event](size, nil, ttl)}
}

// Record appends an event to the feed.
func (f *ActivityFeed) Record(kind string, channel uint64, detail string) {
	f.seq++
	f.cache.Add(f.seq, Event{Time: time.Now(), Kind: kind, Channel: channel, Detail: detail})
}

// Recent returns every event still live in the feed, oldest first.
func (f *ActivityFeed) Recent() []Event {
	keys := f.cache.Keys()
	out := make([]Event, 0, len(keys))
	for _, k := range keys {
		if ev, ok := f.cache.Peek(k); ok {
			out = append(out, ev)
		}
	}
	return out
}
