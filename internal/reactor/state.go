package reactor

import "math"

// ChannelID identifies a Channel canonically. The reactor never uses
// pointer identity as a map key; every index here is keyed on ChannelID so
// the whole package is safe to serialize for diagnostics and comparable in
// tests without exposing *Channel internals.
type ChannelID uint64

// interestKey is the composite key for the topic-interest tables.
type interestKey struct {
	name  string
	topic string
}

type nameOwner struct {
	channel ChannelID
	persist bool
}

type nameCandidate struct {
	channel ChannelID
	persist bool
}

// Post is a server-assigned, monotonically increasing message slot: either
// a transient reply slot for one REQUEST, or a persistent slot backing a
// topic's current interest.
type Post struct {
	ID      uint32
	Name    string
	Payload []byte
	Persist bool
}

// PostWatcher ties one channel's pending interest in a Post to the
// messageref it should receive the eventual MessageVerb under.
type PostWatcher struct {
	PostID     uint32
	Channel    ChannelID
	MessageRef uint32
}

// State is the reactor's pure in-memory data store. It performs no I/O and
// holds no timers or transport references; every method either mutates the
// indices below in lockstep or panics with *InvariantViolation when a
// caller-side precondition is violated. Callers (the Reactor) are expected
// to run single-threaded against one State.
type State struct {
	nameOwners        map[string]nameOwner
	nameCandidates    map[string][]nameCandidate
	nameCandidateSet  map[string]map[ChannelID]bool
	nameRefsByChannel map[ChannelID]map[string]bool

	nextPostNr   uint32
	posts        map[uint32]*Post
	postsOnName  map[string]map[uint32]bool
	postWatchers map[uint32]map[ChannelID]*PostWatcher
	watchersByCh map[ChannelID]map[uint32]bool

	interestCounter map[interestKey]int
	interestPosts   map[interestKey]uint32
	interestOnName  map[string]map[string]bool

	channelSubs map[ChannelID]map[interestKey]bool
}

// NewState returns an empty State ready for use.
func NewState() *State {
	return &State{
		nameOwners:        make(map[string]nameOwner),
		nameCandidates:    make(map[string][]nameCandidate),
		nameCandidateSet:  make(map[string]map[ChannelID]bool),
		nameRefsByChannel: make(map[ChannelID]map[string]bool),

		nextPostNr:   1,
		posts:        make(map[uint32]*Post),
		postsOnName:  make(map[string]map[uint32]bool),
		postWatchers: make(map[uint32]map[ChannelID]*PostWatcher),
		watchersByCh: make(map[ChannelID]map[uint32]bool),

		interestCounter: make(map[interestKey]int),
		interestPosts:   make(map[interestKey]uint32),
		interestOnName:  make(map[string]map[string]bool),

		channelSubs: make(map[ChannelID]map[interestKey]bool),
	}
}

// ---------------------------------------------------------------------------
// Name ownership
// ---------------------------------------------------------------------------

func (s *State) refAdd(ch ChannelID, name string) {
	set, ok := s.nameRefsByChannel[ch]
	if !ok {
		set = make(map[string]bool)
		s.nameRefsByChannel[ch] = set
	}
	set[name] = true
}

func (s *State) refDiscardIfUnreferenced(ch ChannelID, name string) {
	if s.isOwner(ch, name) || s.nameCandidateSet[name][ch] {
		return
	}
	if set, ok := s.nameRefsByChannel[ch]; ok {
		delete(set, name)
		if len(set) == 0 {
			delete(s.nameRefsByChannel, ch)
		}
	}
}

func (s *State) isOwner(ch ChannelID, name string) bool {
	o, ok := s.nameOwners[name]
	return ok && o.channel == ch
}

// SetNameOwner installs channel as the owner of name, returning the prior
// owner (if any).
func (s *State) SetNameOwner(name string, channel ChannelID, persist bool) (prior ChannelID, hadPrior bool) {
	if o, ok := s.nameOwners[name]; ok {
		prior, hadPrior = o.channel, true
	}
	s.nameOwners[name] = nameOwner{channel: channel, persist: persist}
	if hadPrior {
		s.refDiscardIfUnreferenced(prior, name)
	}
	s.refAdd(channel, name)
	return prior, hadPrior
}

// ClearNameOwner removes name's owner entry. Precondition: name is owned.
func (s *State) ClearNameOwner(name string) {
	o, ok := s.nameOwners[name]
	if !ok {
		invariantf("ClearNameOwner", "name %q has no owner", name)
	}
	delete(s.nameOwners, name)
	s.refDiscardIfUnreferenced(o.channel, name)
}

// GetNameOwner returns the current owner of name, if any.
func (s *State) GetNameOwner(name string) (ChannelID, bool) {
	o, ok := s.nameOwners[name]
	return o.channel, ok
}

// GetNamePersistence returns the persist flag the current owner logged in
// with.
func (s *State) GetNamePersistence(name string) (bool, bool) {
	o, ok := s.nameOwners[name]
	return o.persist, ok
}

// IsNameOwned reports whether name currently has an owner.
func (s *State) IsNameOwned(name string) bool {
	_, ok := s.nameOwners[name]
	return ok
}

// AddNameOwnerCandidate enqueues channel as a standby candidate for name.
// Precondition: name is currently owned; channel is not already a
// candidate of name.
func (s *State) AddNameOwnerCandidate(name string, channel ChannelID, persist bool) {
	if !s.IsNameOwned(name) {
		invariantf("AddNameOwnerCandidate", "name %q is not owned", name)
	}
	set, ok := s.nameCandidateSet[name]
	if !ok {
		set = make(map[ChannelID]bool)
		s.nameCandidateSet[name] = set
	}
	if set[channel] {
		invariantf("AddNameOwnerCandidate", "channel already a candidate of %q", name)
	}
	set[channel] = true
	s.nameCandidates[name] = append(s.nameCandidates[name], nameCandidate{channel: channel, persist: persist})
	s.refAdd(channel, name)
}

// DelNameOwnerCandidate removes channel from name's candidate queue, if
// present. No-op otherwise.
func (s *State) DelNameOwnerCandidate(name string, channel ChannelID) {
	queue := s.nameCandidates[name]
	if len(queue) == 0 {
		return
	}
	filtered := queue[:0]
	for _, c := range queue {
		if c.channel != channel {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		delete(s.nameCandidates, name)
	} else {
		s.nameCandidates[name] = filtered
	}
	if set, ok := s.nameCandidateSet[name]; ok {
		delete(set, channel)
		if len(set) == 0 {
			delete(s.nameCandidateSet, name)
		}
	}
	s.refDiscardIfUnreferenced(channel, name)
}

// PopNameOwnerCandidate removes and returns the head of name's candidate
// queue.
func (s *State) PopNameOwnerCandidate(name string) (nameCandidate, bool) {
	queue := s.nameCandidates[name]
	if len(queue) == 0 {
		return nameCandidate{}, false
	}
	head := queue[0]
	rest := queue[1:]
	if len(rest) == 0 {
		delete(s.nameCandidates, name)
	} else {
		s.nameCandidates[name] = rest
	}
	if set, ok := s.nameCandidateSet[name]; ok {
		delete(set, head.channel)
		if len(set) == 0 {
			delete(s.nameCandidateSet, name)
		}
	}
	s.refDiscardIfUnreferenced(head.channel, name)
	return head, true
}

// GetNameReferencesFromChannel returns every name channel currently
// references, as owner or as candidate.
func (s *State) GetNameReferencesFromChannel(channel ChannelID) []string {
	set := s.nameRefsByChannel[channel]
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}

// CountNamesOwned reports how many names currently have an owner.
func (s *State) CountNamesOwned() int { return len(s.nameOwners) }

// CountCandidatesQueued reports the total number of standby candidates
// queued across every name.
func (s *State) CountCandidatesQueued() int {
	n := 0
	for _, q := range s.nameCandidates {
		n += len(q)
	}
	return n
}

// ---------------------------------------------------------------------------
// Posts
// ---------------------------------------------------------------------------

// NewPost allocates the next post id and registers an empty watcher set.
func (s *State) NewPost(name string, payload []byte, persist bool) *Post {
	if s.nextPostNr == math.MaxUint32 {
		invariantf("NewPost", "post id counter exhausted")
	}
	p := &Post{ID: s.nextPostNr, Name: name, Payload: payload, Persist: persist}
	s.nextPostNr++
	s.posts[p.ID] = p
	s.postWatchers[p.ID] = make(map[ChannelID]*PostWatcher)
	set, ok := s.postsOnName[name]
	if !ok {
		set = make(map[uint32]bool)
		s.postsOnName[name] = set
	}
	set[p.ID] = true
	return p
}

// CheckPost returns the post for id, if it still exists.
func (s *State) CheckPost(id uint32) (*Post, bool) {
	p, ok := s.posts[id]
	return p, ok
}

// GetPostOwner returns the current owner of the post's name. Post
// ownership is derived from present name ownership, not stored statically,
// so it tracks LOGIN/LOGOUT/close-driven ownership transfers automatically.
func (s *State) GetPostOwner(id uint32) (ChannelID, bool) {
	p, ok := s.posts[id]
	if !ok {
		return 0, false
	}
	return s.GetNameOwner(p.Name)
}

// IsPostPersistent reports whether the post survives after all its
// watchers are satisfied.
func (s *State) IsPostPersistent(id uint32) bool {
	p, ok := s.posts[id]
	return ok && p.Persist
}

// DiscardPost removes a post and every watcher entry referencing it.
func (s *State) DiscardPost(id uint32) {
	p, ok := s.posts[id]
	if !ok {
		return
	}
	for ch := range s.postWatchers[id] {
		s.DelPostWatcher(id, ch)
	}
	delete(s.postWatchers, id)
	if set, ok := s.postsOnName[p.Name]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(s.postsOnName, p.Name)
		}
	}
	delete(s.posts, id)
}

// AddPostWatcher registers channel as a watcher of post id, idempotent on
// (id, channel); a re-add updates messageref.
func (s *State) AddPostWatcher(id uint32, channel ChannelID, messageref uint32) *PostWatcher {
	watchers, ok := s.postWatchers[id]
	if !ok {
		invariantf("AddPostWatcher", "post %d does not exist", id)
	}
	w := &PostWatcher{PostID: id, Channel: channel, MessageRef: messageref}
	watchers[channel] = w
	set, ok := s.watchersByCh[channel]
	if !ok {
		set = make(map[uint32]bool)
		s.watchersByCh[channel] = set
	}
	set[id] = true
	return w
}

// DelPostWatcher removes channel as a watcher of post id.
func (s *State) DelPostWatcher(id uint32, channel ChannelID) {
	if watchers, ok := s.postWatchers[id]; ok {
		delete(watchers, channel)
	}
	if set, ok := s.watchersByCh[channel]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(s.watchersByCh, channel)
		}
	}
}

// GetPostWatchers returns every watcher currently registered on post id.
func (s *State) GetPostWatchers(id uint32) []*PostWatcher {
	watchers := s.postWatchers[id]
	out := make([]*PostWatcher, 0, len(watchers))
	for _, w := range watchers {
		out = append(out, w)
	}
	return out
}

// GetPostWatcherCount reports how many channels watch post id.
func (s *State) GetPostWatcherCount(id uint32) int {
	return len(s.postWatchers[id])
}

// IsPostWatcher reports whether channel currently watches post id.
func (s *State) IsPostWatcher(id uint32, channel ChannelID) bool {
	watchers, ok := s.postWatchers[id]
	if !ok {
		return false
	}
	_, ok = watchers[channel]
	return ok
}

// GetPostWatchersFromChannel returns every post id channel currently
// watches.
func (s *State) GetPostWatchersFromChannel(channel ChannelID) []uint32 {
	set := s.watchersByCh[channel]
	out := make([]uint32, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// CountPosts reports how many posts (transient or persistent) currently
// exist.
func (s *State) CountPosts() int { return len(s.posts) }

// ---------------------------------------------------------------------------
// Topic interest
// ---------------------------------------------------------------------------

func (s *State) interestOnNameAdd(name, topic string) {
	set, ok := s.interestOnName[name]
	if !ok {
		set = make(map[string]bool)
		s.interestOnName[name] = set
	}
	set[topic] = true
}

func (s *State) interestOnNameDel(name, topic string) {
	if set, ok := s.interestOnName[name]; ok {
		delete(set, topic)
		if len(set) == 0 {
			delete(s.interestOnName, name)
		}
	}
}

// IncInterestLevel bumps the reference count for (name, topic) and returns
// the new level. A 0->1 transition marks topic as active interest on name.
func (s *State) IncInterestLevel(name, topic string) int {
	key := interestKey{name, topic}
	level := s.interestCounter[key] + 1
	s.interestCounter[key] = level
	if level == 1 {
		s.interestOnNameAdd(name, topic)
	}
	return level
}

// DecInterestLevel decrements the reference count for (name, topic) and
// returns the new level. Precondition: the level is currently positive. A
// 1->0 transition clears the bound interest post and the active-interest
// marker.
func (s *State) DecInterestLevel(name, topic string) int {
	key := interestKey{name, topic}
	level, ok := s.interestCounter[key]
	if !ok || level <= 0 {
		invariantf("DecInterestLevel", "interest level for (%q,%q) already at zero", name, topic)
	}
	level--
	if level == 0 {
		delete(s.interestCounter, key)
		delete(s.interestPosts, key)
		s.interestOnNameDel(name, topic)
	} else {
		s.interestCounter[key] = level
	}
	return level
}

// SetInterestPost binds the persistent post backing (name, topic).
func (s *State) SetInterestPost(name, topic string, id uint32) {
	s.interestPosts[interestKey{name, topic}] = id
}

// GetInterestPost returns the persistent post bound to (name, topic).
func (s *State) GetInterestPost(name, topic string) (uint32, bool) {
	id, ok := s.interestPosts[interestKey{name, topic}]
	return id, ok
}

// GetInterestOnName returns every topic with nonzero interest on name.
func (s *State) GetInterestOnName(name string) []string {
	set := s.interestOnName[name]
	out := make([]string, 0, len(set))
	for topic := range set {
		out = append(out, topic)
	}
	return out
}

// CountInterestEntries reports how many (name, topic) pairs currently have
// nonzero interest.
func (s *State) CountInterestEntries() int { return len(s.interestCounter) }

// ---------------------------------------------------------------------------
// Channel subscription index (for close-time cleanup)
// ---------------------------------------------------------------------------

// AddChannelSubscription records that channel subscribes to (name, topic).
func (s *State) AddChannelSubscription(channel ChannelID, name, topic string) {
	set, ok := s.channelSubs[channel]
	if !ok {
		set = make(map[interestKey]bool)
		s.channelSubs[channel] = set
	}
	set[interestKey{name, topic}] = true
}

// DelChannelSubscription removes the (name, topic) subscription entry for
// channel.
func (s *State) DelChannelSubscription(channel ChannelID, name, topic string) {
	if set, ok := s.channelSubs[channel]; ok {
		delete(set, interestKey{name, topic})
		if len(set) == 0 {
			delete(s.channelSubs, channel)
		}
	}
}

// GetChannelSubscriptions returns every (name, topic) pair channel
// currently subscribes to.
func (s *State) GetChannelSubscriptions(channel ChannelID) []struct{ Name, Topic string } {
	set := s.channelSubs[channel]
	out := make([]struct{ Name, Topic string }, 0, len(set))
	for k := range set {
		out = append(out, struct{ Name, Topic string }{k.name, k.topic})
	}
	return out
}
