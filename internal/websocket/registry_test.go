package websocket

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistry_LastConnectWins(t *testing.T) {
	r := NewRegistry("test")

	s1 := NewSession("s1", "conv1", "user1", nil)
	if old := r.Add(s1); old != nil {
		t.Fatalf("expected no replaced session, got %v", old.ID)
	}

	sessions := r.Sessions("conv1")
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Errorf("Expected session s1, got %v", sessions)
	}

	// Second connect for the same pair replaces the first.
	s2 := NewSession("s2", "conv1", "user1", nil)
	old := r.Add(s2)
	if old == nil || old.ID != "s1" {
		t.Fatalf("expected s1 to be returned as replaced, got %v", old)
	}

	// The registry must not have closed the superseded session itself.
	select {
	case <-s1.Done():
		t.Error("registry closed the replaced session; closing is the caller's job")
	default:
	}

	// The replaced entry stops receiving broadcasts immediately.
	delivered := r.Broadcast("conv1", []byte("payload"))
	if delivered != 1 {
		t.Errorf("Expected 1 delivery, got %d", delivered)
	}
	if len(s1.SendQueue) != 0 {
		t.Error("Replaced session should not receive broadcasts")
	}
	if len(s2.SendQueue) != 1 {
		t.Error("New session should receive broadcasts")
	}
}

func TestRegistry_LateRemoveOfReplacedSession(t *testing.T) {
	r := NewRegistry("test")

	s1 := NewSession("s1", "conv1", "user1", nil)
	r.Add(s1)
	s2 := NewSession("s2", "conv1", "user1", nil)
	r.Add(s2)

	// A late Remove from the old session must not evict the replacement.
	r.Remove(s1)

	sessions := r.Sessions("conv1")
	if len(sessions) != 1 || sessions[0].ID != "s2" {
		t.Errorf("Session s2 should survive a late Remove(s1), got %v", sessions)
	}

	r.Remove(s2)
	if len(r.Sessions("conv1")) != 0 {
		t.Error("Expected no sessions after removing s2")
	}
}

func TestRegistry_RemoveIsNoOpWhenAbsent(t *testing.T) {
	r := NewRegistry("test")
	// Safe even if Add never ran, e.g. auth failed before registration.
	r.Remove(NewSession("s1", "conv1", "user1", nil))
}

func TestRegistry_BroadcastReachesAllMembers(t *testing.T) {
	r := NewRegistry("test")

	a := NewSession("sa", "conv1", "userA", nil)
	b := NewSession("sb", "conv1", "userB", nil)
	other := NewSession("so", "conv2", "userC", nil)
	r.Add(a)
	r.Add(b)
	r.Add(other)

	delivered := r.Broadcast("conv1", []byte("hi"))
	if delivered != 2 {
		t.Errorf("Expected 2 deliveries, got %d", delivered)
	}
	if len(a.SendQueue) != 1 || len(b.SendQueue) != 1 {
		t.Error("Both conv1 members should receive the payload")
	}
	if len(other.SendQueue) != 0 {
		t.Error("conv2 session should not receive conv1 broadcasts")
	}
}

func TestRegistry_BroadcastRemovesDeadSessions(t *testing.T) {
	r := NewRegistry("test")

	alive := NewSession("s1", "conv1", "user1", nil)
	dead := NewSession("s2", "conv1", "user2", nil)
	r.Add(alive)
	r.Add(dead)
	dead.Close()

	delivered := r.Broadcast("conv1", []byte("hi"))
	if delivered != 1 {
		t.Errorf("Expected 1 delivery, got %d", delivered)
	}

	// Self-healing: the dead entry is gone.
	sessions := r.Sessions("conv1")
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Errorf("Dead session should have been removed, got %v", sessions)
	}
}

func TestRegistry_ConcurrentMutationDuringBroadcast(t *testing.T) {
	r := NewRegistry("test")

	for i := 0; i < 50; i++ {
		r.Add(NewSession(fmt.Sprintf("s%d", i), "conv1", fmt.Sprintf("user%d", i), nil))
	}

	var wg sync.WaitGroup
	// Broadcasts interleaved with connects and disconnects must neither
	// deadlock nor panic; delivery is best-effort to the snapshot.
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			r.Broadcast("conv1", []byte("hi"))
		}(i)
		go func(i int) {
			defer wg.Done()
			r.Add(NewSession(fmt.Sprintf("n%d", i), "conv1", fmt.Sprintf("newuser%d", i), nil))
		}(i)
		go func(i int) {
			defer wg.Done()
			r.Remove(NewSession(fmt.Sprintf("s%d", i), "conv1", fmt.Sprintf("user%d", i), nil))
		}(i)
	}
	wg.Wait()
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry("test")
	s1 := NewSession("s1", "conv1", "user1", nil)
	s2 := NewSession("s2", "conv2", "user2", nil)
	r.Add(s1)
	r.Add(s2)

	r.CloseAll()

	for _, s := range []*Session{s1, s2} {
		select {
		case <-s.Done():
		default:
			t.Errorf("session %s should be closed", s.ID)
		}
	}
}
