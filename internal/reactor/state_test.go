package reactor

import "testing"

func TestStateCandidateQueueFIFOAndDedup(t *testing.T) {
	s := NewState()
	s.SetNameOwner("svc", 1, false)

	s.AddNameOwnerCandidate("svc", 2, false)
	s.AddNameOwnerCandidate("svc", 3, false)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate candidate")
		}
	}()
	s.AddNameOwnerCandidate("svc", 2, false)
}

func TestStatePopCandidateFIFOOrder(t *testing.T) {
	s := NewState()
	s.SetNameOwner("svc", 1, false)
	s.AddNameOwnerCandidate("svc", 2, false)
	s.AddNameOwnerCandidate("svc", 3, false)

	first, ok := s.PopNameOwnerCandidate("svc")
	if !ok || first.channel != 2 {
		t.Fatalf("expected channel 2 first, got %#v ok=%v", first, ok)
	}
	second, ok := s.PopNameOwnerCandidate("svc")
	if !ok || second.channel != 3 {
		t.Fatalf("expected channel 3 second, got %#v ok=%v", second, ok)
	}
	if _, ok := s.PopNameOwnerCandidate("svc"); ok {
		t.Fatalf("expected no more candidates")
	}
}

func TestStateInterestLevelLifecycle(t *testing.T) {
	s := NewState()

	if lvl := s.IncInterestLevel("svc", "t"); lvl != 1 {
		t.Fatalf("expected level 1, got %d", lvl)
	}
	topics := s.GetInterestOnName("svc")
	if len(topics) != 1 || topics[0] != "t" {
		t.Fatalf("expected [t], got %v", topics)
	}

	s.IncInterestLevel("svc", "t")
	if lvl := s.DecInterestLevel("svc", "t"); lvl != 1 {
		t.Fatalf("expected level 1 after one decrement, got %d", lvl)
	}
	if len(s.GetInterestOnName("svc")) != 1 {
		t.Fatalf("expected topic still active at level 1")
	}

	if lvl := s.DecInterestLevel("svc", "t"); lvl != 0 {
		t.Fatalf("expected level 0, got %d", lvl)
	}
	if len(s.GetInterestOnName("svc")) != 0 {
		t.Fatalf("expected no active topics after reaching zero")
	}
}

func TestStateDecInterestBelowZeroPanics(t *testing.T) {
	s := NewState()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic decrementing interest below zero")
		}
	}()
	s.DecInterestLevel("svc", "t")
}

func TestStatePostOwnershipTracksCurrentNameOwner(t *testing.T) {
	s := NewState()
	s.SetNameOwner("svc", 1, false)
	p := s.NewPost("svc", []byte("x"), false)

	owner, ok := s.GetPostOwner(p.ID)
	if !ok || owner != 1 {
		t.Fatalf("expected owner 1, got %v ok=%v", owner, ok)
	}

	s.SetNameOwner("svc", 2, false)
	owner, ok = s.GetPostOwner(p.ID)
	if !ok || owner != 2 {
		t.Fatalf("expected post ownership to follow name ownership to 2, got %v ok=%v", owner, ok)
	}

	s.ClearNameOwner("svc")
	if _, ok := s.GetPostOwner(p.ID); ok {
		t.Fatalf("expected no owner once name is unowned")
	}
}
