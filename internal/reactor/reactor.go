package reactor

import (
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// osExit is overridden in tests that exercise recoverFatal's exit path
// without wanting to kill the test binary.
var osExit = os.Exit

const (
	// WatchTimeoutDefault is applied to a REQUEST that specifies no
	// timeout (or zero).
	WatchTimeoutDefault = 4 * time.Second
	// WatchTimeoutMax clamps any REQUEST-supplied timeout.
	WatchTimeoutMax = 60 * time.Second
)

type watcherKey struct {
	postID  uint32
	channel ChannelID
}

// Reactor is the single logical verb processor. Every exported method that
// touches reactor state acquires mu for its whole body, so handlers run to
// completion atomically with respect to one another even though they may
// be invoked from many goroutines (one per connection, plus timer
// goroutines).
type Reactor struct {
	mu sync.Mutex

	state  *State
	clock  Clock
	tracer Tracer

	nextChannelID ChannelID
	channels      map[ChannelID]*Channel
	watchTimers   map[watcherKey]Timer
}

// New builds a Reactor. clock supplies timers (use NewRealClock in
// production, a fake Clock in tests); tracer may be NopTracer{}.
func New(clock Clock, tracer Tracer) *Reactor {
	if tracer == nil {
		tracer = NopTracer{}
	}
	return &Reactor{
		state:       NewState(),
		clock:       clock,
		tracer:      tracer,
		channels:    make(map[ChannelID]*Channel),
		watchTimers: make(map[watcherKey]Timer),
	}
}

// Channel creates and registers a new Channel with the given diagnostic
// description.
func (r *Reactor) Channel(description string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextChannelID++
	id := r.nextChannelID
	ch := newChannel(id, r, description)
	r.channels[id] = ch
	r.tracer.ChannelOpened(id, description)
	return ch
}

// recoverFatal catches a panicked *InvariantViolation raised anywhere
// beneath op, logs it with a stack trace, and terminates the process: such
// a panic means the reactor's own bookkeeping is inconsistent, not that a
// client misbehaved, and there is no safe way to keep serving from here.
// Any other panic is not ours to interpret and is re-raised unchanged.
func (r *Reactor) recoverFatal(op string) {
	rec := recover()
	if rec == nil {
		return
	}
	iv, ok := rec.(*InvariantViolation)
	if !ok {
		panic(rec)
	}
	slog.Default().Error("fatal reactor invariant violation",
		slog.String("op", op),
		slog.String("detail", iv.Error()),
		slog.String("stack", string(debug.Stack())),
	)
	osExit(1)
}

// processVerb validates and dispatches one upstream verb. Invoked by
// Channel.PutUpstream; never call directly.
func (r *Reactor) processVerb(ch *Channel, verb Verb) {
	defer r.recoverFatal("processVerb")
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, open := r.channels[ch.id]; !open {
		return // ch was torn down by closeChannel after PutUpstream's check
	}
	if err := verb.Validate(); err != nil {
		r.tracer.InvalidUpstreamVerb(ch.id, err.Error())
		return
	}
	r.tracer.UpstreamVerb(ch.id, verb)

	switch v := verb.(type) {
	case *LoginVerb:
		r.handleLogin(ch, v)
	case *LogoutVerb:
		r.handleLogout(ch, v)
	case *RequestVerb:
		r.handleRequest(ch, v)
	case *PostVerb:
		r.handlePost(ch, v)
	case *SubscribeVerb:
		r.handleSubscribe(ch, v)
	case *UnsubscribeVerb:
		r.handleUnsubscribe(ch, v)
	default:
		r.tracer.InvalidUpstreamVerb(ch.id, "unrecognized verb type")
	}
}

// putDownstream validates and enqueues a downstream verb on the channel
// identified by id. A validation failure here indicates a reactor bug, not
// client misbehavior, so it is a fatal invariant violation.
func (r *Reactor) putDownstream(id ChannelID, verb Verb) {
	ch, ok := r.channels[id]
	if !ok {
		return
	}
	if err := verb.Validate(); err != nil {
		r.tracer.InvalidDownstreamVerb(id, err.Error())
		invariantf("putDownstream", "invalid downstream verb: %s", err.Error())
	}
	r.tracer.DownstreamVerb(id, verb)
	ch.putDownstream(verb)
}

// activateSession sends SESSION(ACTIVE) plus one INTEREST per topic
// currently active on name to channel, matching what a freshly-installed
// or freshly-promoted owner needs to reconstruct.
func (r *Reactor) activateSession(channel ChannelID, name string) {
	r.putDownstream(channel, &SessionVerb{Name: name, State: SessionActive})
	for _, topic := range r.state.GetInterestOnName(name) {
		id, ok := r.state.GetInterestPost(name, topic)
		if !ok {
			continue
		}
		r.putDownstream(channel, &InterestVerb{PostRef: id, Name: name, Status: InterestSome, Topic: topic})
	}
	r.tracer.SessionActivated(channel, name)
}

// ---------------------------------------------------------------------------
// LOGIN
// ---------------------------------------------------------------------------

func (r *Reactor) handleLogin(ch *Channel, v *LoginVerb) {
	owner, owned := r.state.GetNameOwner(v.Name)

	switch {
	case !owned || owner == ch.id:
		r.state.SetNameOwner(v.Name, ch.id, v.Persist)
		r.activateSession(ch.id, v.Name)

	case v.Enforce && !ownerIsPersistent(r.state, v.Name):
		prior, _ := r.state.SetNameOwner(v.Name, ch.id, v.Persist)
		r.putDownstream(prior, &SessionVerb{Name: v.Name, State: SessionEnded})
		r.activateSession(ch.id, v.Name)

	case v.Standby:
		r.state.AddNameOwnerCandidate(v.Name, ch.id, v.Persist)
		r.putDownstream(ch.id, &SessionVerb{Name: v.Name, State: SessionStandby})

	default:
		r.putDownstream(ch.id, &SessionVerb{Name: v.Name, State: SessionEnded})
	}
}

func ownerIsPersistent(s *State, name string) bool {
	persist, ok := s.GetNamePersistence(name)
	return ok && persist
}

// ---------------------------------------------------------------------------
// LOGOUT
// ---------------------------------------------------------------------------

func (r *Reactor) handleLogout(ch *Channel, v *LogoutVerb) {
	r.putDownstream(ch.id, &SessionVerb{Name: v.Name, State: SessionEnded})

	owner, owned := r.state.GetNameOwner(v.Name)
	if owned && owner == ch.id {
		r.state.ClearNameOwner(v.Name)
		r.promoteCandidate(v.Name)
	} else {
		r.tracer.ImproperLogout(ch.id, v.Name)
	}
	r.state.DelNameOwnerCandidate(v.Name, ch.id)
}

// promoteCandidate installs the head of name's candidate queue as owner,
// if one exists.
func (r *Reactor) promoteCandidate(name string) {
	cand, ok := r.state.PopNameOwnerCandidate(name)
	if !ok {
		return
	}
	r.state.SetNameOwner(name, cand.channel, cand.persist)
	r.activateSession(cand.channel, name)
}

// ---------------------------------------------------------------------------
// REQUEST
// ---------------------------------------------------------------------------

func (r *Reactor) handleRequest(ch *Channel, v *RequestVerb) {
	owner, owned := r.state.GetNameOwner(v.Name)

	if !owned {
		if !v.Unidirectional {
			r.putDownstream(ch.id, &MessageVerb{MessageRef: v.MessageRef, Status: MessageNOK, Reason: ReasonUnreachable})
		}
		return
	}

	if v.Unidirectional {
		r.putDownstream(owner, &CallVerb{Unidirectional: true, Name: v.Name, Payload: v.Payload})
		return
	}

	post := r.state.NewPost(v.Name, v.Payload, false)
	r.state.AddPostWatcher(post.ID, ch.id, v.MessageRef)

	timeout := WatchTimeoutDefault
	if v.Timeout > 0 {
		timeout = time.Duration(v.Timeout * float64(time.Second))
		if timeout > WatchTimeoutMax {
			timeout = WatchTimeoutMax
		}
	}
	r.armWatchTimeout(post.ID, ch.id, timeout)

	r.putDownstream(owner, &CallVerb{Unidirectional: false, PostRef: post.ID, Name: v.Name, Payload: v.Payload})
}

func (r *Reactor) armWatchTimeout(postID uint32, channel ChannelID, d time.Duration) {
	t := r.clock.NewTimer()
	key := watcherKey{postID: postID, channel: channel}
	t.SetHandler(func() { r.fireWatchTimeout(key) })
	r.watchTimers[key] = t
	t.Set(d)
}

func (r *Reactor) cancelWatchTimeout(postID uint32, channel ChannelID) {
	key := watcherKey{postID: postID, channel: channel}
	if t, ok := r.watchTimers[key]; ok {
		t.Cancel()
		delete(r.watchTimers, key)
	}
}

// fireWatchTimeout runs on a timer goroutine; it must acquire mu itself so
// it serializes correctly against everything else.
func (r *Reactor) fireWatchTimeout(key watcherKey) {
	defer r.recoverFatal("fireWatchTimeout")
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.watchTimers[key]; !ok {
		return // cancelled before firing reached the critical section
	}
	delete(r.watchTimers, key)

	w, ok := lookupWatcher(r.state, key.postID, key.channel)
	if !ok {
		return
	}
	r.state.DelPostWatcher(key.postID, key.channel)
	r.putDownstream(key.channel, &MessageVerb{MessageRef: w.MessageRef, Status: MessageNOK, Reason: ReasonTimeout})
	if r.state.GetPostWatcherCount(key.postID) == 0 {
		r.state.DiscardPost(key.postID)
	}
}

func lookupWatcher(s *State, postID uint32, channel ChannelID) (*PostWatcher, bool) {
	for _, w := range s.GetPostWatchers(postID) {
		if w.Channel == channel {
			return w, true
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// POST
// ---------------------------------------------------------------------------

func (r *Reactor) handlePost(ch *Channel, v *PostVerb) {
	post, ok := r.state.CheckPost(v.PostRef)
	if !ok {
		r.tracer.UnknownPostRef(ch.id, v.PostRef)
		return
	}

	owner, owned := r.state.GetPostOwner(v.PostRef)
	if !owned || owner != ch.id {
		r.tracer.UnownedPost(ch.id, v.PostRef)
		return
	}

	for _, w := range r.state.GetPostWatchers(post.ID) {
		r.cancelWatchTimeout(post.ID, w.Channel)
		r.putDownstream(w.Channel, &MessageVerb{MessageRef: w.MessageRef, Status: MessageOK, Reason: ReasonNone, Payload: v.Payload})
	}
	if !post.Persist {
		r.state.DiscardPost(post.ID)
	}
}

// ---------------------------------------------------------------------------
// SUBSCRIBE / UNSUBSCRIBE
// ---------------------------------------------------------------------------

func (r *Reactor) handleSubscribe(ch *Channel, v *SubscribeVerb) {
	level := r.state.IncInterestLevel(v.Name, v.Topic)

	var postID uint32
	if level == 1 {
		post := r.state.NewPost(v.Name, nil, true)
		postID = post.ID
		r.state.SetInterestPost(v.Name, v.Topic, postID)
		if owner, owned := r.state.GetNameOwner(v.Name); owned {
			r.putDownstream(owner, &InterestVerb{PostRef: postID, Name: v.Name, Status: InterestSome, Topic: v.Topic})
		}
	} else {
		postID, _ = r.state.GetInterestPost(v.Name, v.Topic)
	}

	r.state.AddPostWatcher(postID, ch.id, v.MessageRef)
	r.state.AddChannelSubscription(ch.id, v.Name, v.Topic)
}

func (r *Reactor) handleUnsubscribe(ch *Channel, v *UnsubscribeVerb) {
	postID, ok := r.state.GetInterestPost(v.Name, v.Topic)
	if !ok || !r.state.IsPostWatcher(postID, ch.id) {
		r.tracer.UnwatchedUnsubscribe(ch.id, v.Name, v.Topic)
		return
	}

	r.state.DelPostWatcher(postID, ch.id)
	level := r.state.DecInterestLevel(v.Name, v.Topic)
	if level == 0 {
		r.state.DiscardPost(postID)
		if owner, owned := r.state.GetNameOwner(v.Name); owned {
			r.putDownstream(owner, &InterestVerb{PostRef: postID, Name: v.Name, Status: InterestNone, Topic: v.Topic})
		}
	}
	r.state.DelChannelSubscription(ch.id, v.Name, v.Topic)
}

// ---------------------------------------------------------------------------
// Channel close
// ---------------------------------------------------------------------------

// closeChannel runs the full teardown sequence for ch: it is invoked by
// Channel.Close after the channel has been marked closed, and it removes ch
// from r.channels, so processVerb drops any upstream verb from ch that
// reaches the critical section after this.
func (r *Reactor) closeChannel(ch *Channel) {
	defer r.recoverFatal("closeChannel")
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.state.GetNameReferencesFromChannel(ch.id) {
		r.putDownstream(ch.id, &SessionVerb{Name: name, State: SessionEnded})
		r.state.DelNameOwnerCandidate(name, ch.id)

		if owner, owned := r.state.GetNameOwner(name); owned && owner == ch.id {
			r.state.ClearNameOwner(name)
			r.promoteCandidate(name)
		}
	}

	for _, sub := range r.state.GetChannelSubscriptions(ch.id) {
		postID, ok := r.state.GetInterestPost(sub.Name, sub.Topic)
		if ok {
			r.state.DelPostWatcher(postID, ch.id)
			level := r.state.DecInterestLevel(sub.Name, sub.Topic)
			if level == 0 {
				r.state.DiscardPost(postID)
				if owner, owned := r.state.GetNameOwner(sub.Name); owned {
					r.putDownstream(owner, &InterestVerb{PostRef: postID, Name: sub.Name, Status: InterestNone, Topic: sub.Topic})
				}
			}
		}
		r.state.DelChannelSubscription(ch.id, sub.Name, sub.Topic)
	}

	for _, postID := range r.state.GetPostWatchersFromChannel(ch.id) {
		r.cancelWatchTimeout(postID, ch.id)
		r.state.DelPostWatcher(postID, ch.id)
	}

	r.tracer.ChannelClosed(ch.id, ch.Description())
	delete(r.channels, ch.id)
}

// ClientUnresponsive lets a transport report a keepalive death to the
// tracer before closing the channel; it performs no state mutation itself.
func (r *Reactor) ClientUnresponsive(ch *Channel) {
	r.mu.Lock()
	r.tracer.ClientUnresponsive(ch.id, ch.Description())
	r.mu.Unlock()
}

// StateCounts reports point-in-time sizes of the reactor's core indices,
// for gauges that should always reflect live state rather than be
// incremented/decremented at every call site.
func (r *Reactor) StateCounts() (namesOwned, candidatesQueued, posts, interestEntries int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.CountNamesOwned(), r.state.CountCandidatesQueued(), r.state.CountPosts(), r.state.CountInterestEntries()
}
