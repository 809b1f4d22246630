package reactor

import (
	"errors"
	"sync"
)

// ErrChannelClosed is returned by PutUpstream once a Channel has been
// closed.
var ErrChannelClosed = errors.New("reactor: channel is closed")

// Channel is a duplex conduit between one transport connection and the
// reactor. A transport puts upstream verbs in with PutUpstream and drains
// downstream verbs out, either by polling PopDownstream or by registering
// a handler that is invoked once per deposit while the queue is non-empty.
type Channel struct {
	id          ChannelID
	reactor     *Reactor
	description string

	mu      sync.Mutex
	closed  bool
	queue   []Verb
	drainFn func()
}

func newChannel(id ChannelID, r *Reactor, description string) *Channel {
	return &Channel{id: id, reactor: r, description: description}
}

// ID returns the channel's canonical identifier.
func (c *Channel) ID() ChannelID { return c.id }

// Description returns the diagnostic label set via SetDescription.
func (c *Channel) Description() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.description
}

// SetDescription attaches a diagnostic label to the channel (connection
// address, protocol, etc).
func (c *Channel) SetDescription(d string) {
	c.mu.Lock()
	c.description = d
	c.mu.Unlock()
}

// PutUpstream hands verb to the reactor for synchronous processing. The
// reactor may, before this call returns, deposit downstream verbs on this
// or other channels.
func (c *Channel) PutUpstream(verb Verb) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	c.reactor.processVerb(c, verb)
	return nil
}

// PopDownstream removes and returns the head of the downstream queue, or
// ok=false if the queue is empty.
func (c *Channel) PopDownstream() (Verb, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	v := c.queue[0]
	c.queue = c.queue[1:]
	return v, true
}

// SetDownstreamHandler registers fn to be invoked once per verb deposited,
// as long as the queue remains non-empty; fn is expected to call
// PopDownstream itself. Passing nil clears the handler.
func (c *Channel) SetDownstreamHandler(fn func()) {
	c.mu.Lock()
	c.drainFn = fn
	c.mu.Unlock()
}

// putDownstream appends verb to the queue and then calls the drain
// handler (if any) repeatedly until the queue is empty or a call leaves
// the queue no shorter, matching the Python original's "while queue:
// handler()" loop so a handler that only consumes one entry per
// invocation still drains a backlog deposited by re-entrant processing.
func (c *Channel) putDownstream(verb Verb) {
	c.mu.Lock()
	c.queue = append(c.queue, verb)
	fn := c.drainFn
	c.mu.Unlock()

	if fn == nil {
		return
	}
	for {
		c.mu.Lock()
		before := len(c.queue)
		c.mu.Unlock()
		if before == 0 {
			return
		}
		fn()
		c.mu.Lock()
		consumed := len(c.queue) < before
		c.mu.Unlock()
		if !consumed {
			return
		}
	}
}

// Close runs reactor-side teardown for this channel, then marks it closed.
// Safe to call more than once; only the first call has any effect.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.reactor.closeChannel(c)
}

// IsClosed reports whether Close has already run for this channel.
func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
