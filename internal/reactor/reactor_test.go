package reactor

import "testing"

// recordingTracer captures every hook invocation for assertions.
type recordingTracer struct {
	NopTracer
	sessionActivated []string
	improperLogouts  []string
}

func (t *recordingTracer) SessionActivated(_ ChannelID, name string) {
	t.sessionActivated = append(t.sessionActivated, name)
}

func (t *recordingTracer) ImproperLogout(_ ChannelID, name string) {
	t.improperLogouts = append(t.improperLogouts, name)
}

func popAll(ch *Channel) []Verb {
	var out []Verb
	for {
		v, ok := ch.PopDownstream()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func TestRecoverFatalLogsAndExits(t *testing.T) {
	r := New(&fakeClock{}, NopTracer{})
	old := osExit
	defer func() { osExit = old }()

	var exitCode int
	osExit = func(code int) { exitCode = code }

	func() {
		defer r.recoverFatal("test")
		invariantf("test", "boom")
	}()

	if exitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", exitCode)
	}
}

func TestRecoverFatalRepanicsNonInvariantPanics(t *testing.T) {
	r := New(&fakeClock{}, NopTracer{})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected non-invariant panic to propagate")
		}
	}()
	func() {
		defer r.recoverFatal("test")
		panic("ordinary bug, not an invariant violation")
	}()
}

func TestLoginLogoutUnownedName(t *testing.T) {
	r := New(&fakeClock{}, NopTracer{})
	c := r.Channel("client-a")

	if err := c.PutUpstream(&LoginVerb{Name: "svc"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	verbs := popAll(c)
	if len(verbs) != 1 {
		t.Fatalf("expected 1 downstream verb, got %d", len(verbs))
	}
	sess, ok := verbs[0].(*SessionVerb)
	if !ok || sess.State != SessionActive {
		t.Fatalf("expected SESSION ACTIVE, got %#v", verbs[0])
	}

	if err := c.PutUpstream(&LogoutVerb{Name: "svc"}); err != nil {
		t.Fatalf("logout: %v", err)
	}
	verbs = popAll(c)
	if len(verbs) != 1 {
		t.Fatalf("expected 1 downstream verb, got %d", len(verbs))
	}
	sess, ok = verbs[0].(*SessionVerb)
	if !ok || sess.State != SessionEnded {
		t.Fatalf("expected SESSION ENDED, got %#v", verbs[0])
	}
}

func TestLoginEnforceTakesOverNonPersistentOwner(t *testing.T) {
	r := New(&fakeClock{}, NopTracer{})
	a := r.Channel("a")
	b := r.Channel("b")

	a.PutUpstream(&LoginVerb{Name: "svc", Persist: false})
	popAll(a)

	b.PutUpstream(&LoginVerb{Name: "svc", Enforce: true})

	aVerbs := popAll(a)
	if len(aVerbs) != 1 {
		t.Fatalf("expected previous owner to get 1 verb, got %d", len(aVerbs))
	}
	if s := aVerbs[0].(*SessionVerb); s.State != SessionEnded {
		t.Fatalf("expected prior owner SESSION ENDED, got %v", s.State)
	}

	bVerbs := popAll(b)
	if len(bVerbs) != 1 {
		t.Fatalf("expected new owner to get 1 verb, got %d", len(bVerbs))
	}
	if s := bVerbs[0].(*SessionVerb); s.State != SessionActive {
		t.Fatalf("expected new owner SESSION ACTIVE, got %v", s.State)
	}
}

func TestLoginStandbyPromotionOnLogout(t *testing.T) {
	r := New(&fakeClock{}, NopTracer{})
	owner := r.Channel("owner")
	standby := r.Channel("standby")

	owner.PutUpstream(&LoginVerb{Name: "svc"})
	popAll(owner)

	standby.PutUpstream(&LoginVerb{Name: "svc", Standby: true})
	verbs := popAll(standby)
	if len(verbs) != 1 {
		t.Fatalf("expected 1 verb, got %d", len(verbs))
	}
	if s := verbs[0].(*SessionVerb); s.State != SessionStandby {
		t.Fatalf("expected SESSION STANDBY, got %v", s.State)
	}

	owner.PutUpstream(&LogoutVerb{Name: "svc"})
	popAll(owner)

	verbs = popAll(standby)
	if len(verbs) != 1 {
		t.Fatalf("expected promoted owner to get 1 verb, got %d", len(verbs))
	}
	if s := verbs[0].(*SessionVerb); s.State != SessionActive {
		t.Fatalf("expected promoted candidate SESSION ACTIVE, got %v", s.State)
	}
}

func TestRequestUnreachableWhenUnowned(t *testing.T) {
	r := New(&fakeClock{}, NopTracer{})
	c := r.Channel("client")

	c.PutUpstream(&RequestVerb{Name: "ghost", MessageRef: 7})
	verbs := popAll(c)
	if len(verbs) != 1 {
		t.Fatalf("expected 1 verb, got %d", len(verbs))
	}
	m := verbs[0].(*MessageVerb)
	if m.Status != MessageNOK || m.Reason != ReasonUnreachable {
		t.Fatalf("expected NOK/UNREACHABLE, got %v/%v", m.Status, m.Reason)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	r := New(&fakeClock{}, NopTracer{})
	owner := r.Channel("owner")
	client := r.Channel("client")

	owner.PutUpstream(&LoginVerb{Name: "svc"})
	popAll(owner)

	client.PutUpstream(&RequestVerb{Name: "svc", MessageRef: 42, Payload: []byte("ping")})
	verbs := popAll(owner)
	if len(verbs) != 1 {
		t.Fatalf("expected 1 CALL, got %d", len(verbs))
	}
	call := verbs[0].(*CallVerb)
	if call.Unidirectional || call.PostRef == 0 {
		t.Fatalf("expected bidirectional CALL with postref, got %#v", call)
	}

	owner.PutUpstream(&PostVerb{PostRef: call.PostRef, Payload: []byte("pong")})
	verbs = popAll(client)
	if len(verbs) != 1 {
		t.Fatalf("expected 1 MESSAGE, got %d", len(verbs))
	}
	msg := verbs[0].(*MessageVerb)
	if msg.Status != MessageOK || msg.MessageRef != 42 || string(msg.Payload) != "pong" {
		t.Fatalf("unexpected message: %#v", msg)
	}
}

func TestRequestTimeout(t *testing.T) {
	clock := &fakeClock{}
	r := New(clock, NopTracer{})
	owner := r.Channel("owner")
	client := r.Channel("client")

	owner.PutUpstream(&LoginVerb{Name: "svc"})
	popAll(owner)

	client.PutUpstream(&RequestVerb{Name: "svc", MessageRef: 1})
	popAll(owner) // drop the CALL

	clock.fireAll()

	verbs := popAll(client)
	if len(verbs) != 1 {
		t.Fatalf("expected 1 MESSAGE, got %d", len(verbs))
	}
	msg := verbs[0].(*MessageVerb)
	if msg.Status != MessageNOK || msg.Reason != ReasonTimeout {
		t.Fatalf("expected NOK/TIMEOUT, got %v/%v", msg.Status, msg.Reason)
	}
}

func TestSubscribeFanoutAndUnsubscribeRestoresState(t *testing.T) {
	r := New(&fakeClock{}, NopTracer{})
	owner := r.Channel("owner")
	sub := r.Channel("sub")

	owner.PutUpstream(&LoginVerb{Name: "svc"})
	popAll(owner)

	sub.PutUpstream(&SubscribeVerb{Name: "svc", MessageRef: 9, Topic: "events"})
	verbs := popAll(owner)
	if len(verbs) != 1 {
		t.Fatalf("expected owner to get INTEREST, got %d", len(verbs))
	}
	interest := verbs[0].(*InterestVerb)
	if interest.Status != InterestSome {
		t.Fatalf("expected INTEREST, got %v", interest.Status)
	}

	owner.PutUpstream(&PostVerb{PostRef: interest.PostRef, Payload: []byte("hello")})
	verbs = popAll(sub)
	if len(verbs) != 1 {
		t.Fatalf("expected subscriber MESSAGE, got %d", len(verbs))
	}
	msg := verbs[0].(*MessageVerb)
	if msg.Status != MessageOK || msg.MessageRef != 9 || string(msg.Payload) != "hello" {
		t.Fatalf("unexpected fanout message: %#v", msg)
	}

	sub.PutUpstream(&UnsubscribeVerb{Name: "svc", Topic: "events"})
	verbs = popAll(owner)
	if len(verbs) != 1 {
		t.Fatalf("expected owner to get NO_INTEREST, got %d", len(verbs))
	}
	if iv := verbs[0].(*InterestVerb); iv.Status != InterestNone {
		t.Fatalf("expected NO_INTEREST, got %v", iv.Status)
	}
}

func TestCloseOwnerChannelClearsOwnershipKeepsOthersWatches(t *testing.T) {
	clock := &fakeClock{}
	r := New(clock, NopTracer{})
	owner := r.Channel("owner")
	sub := r.Channel("sub")
	requester := r.Channel("requester")

	owner.PutUpstream(&LoginVerb{Name: "svc"})
	popAll(owner)
	sub.PutUpstream(&SubscribeVerb{Name: "svc", MessageRef: 1, Topic: "t"})
	popAll(owner)
	requester.PutUpstream(&RequestVerb{Name: "svc", MessageRef: 5})
	popAll(owner)

	owner.Close()

	if r.state.IsNameOwned("svc") {
		t.Fatalf("expected svc to be unowned after owner closed")
	}
	if _, ok := r.state.GetInterestPost("svc", "t"); !ok {
		t.Fatalf("expected interest post to survive owner close (subscriber still watching)")
	}

	// requester's pending request can never be answered now that its
	// owner is gone; its watch timer still fires normally and delivers
	// a timeout, since closing the owner's channel only tears down
	// watcher state for posts *it* was watching, not posts on names it
	// used to own.
	clock.fireAll()
	verbs := popAll(requester)
	if len(verbs) != 1 {
		t.Fatalf("expected 1 MESSAGE, got %#v", verbs)
	}
	msg, ok := verbs[0].(*MessageVerb)
	if !ok || msg.Status != MessageNOK || msg.Reason != ReasonTimeout {
		t.Fatalf("expected NOK/TIMEOUT, got %#v", verbs[0])
	}
}
