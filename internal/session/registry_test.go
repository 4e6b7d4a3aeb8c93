package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"tutorhub/pkg/types"
)

func testConfig(grace time.Duration) Config {
	return Config{
		CleanupGrace:   grace,
		MemoryCapacity: 5,
		PresenceTTL:    5 * time.Second,
	}
}

func TestRegistry_GetOrCreate(t *testing.T) {
	registry := NewRegistry(testConfig(time.Minute))
	defer registry.Close()

	s, created, err := registry.GetOrCreate("sess-1", "owner")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !created {
		t.Error("expected first call to create the session")
	}
	if s.OwnerID != "owner" {
		t.Errorf("expected first joiner to own the session, got %s", s.OwnerID)
	}

	again, created, err := registry.GetOrCreate("sess-1", "someone-else")
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if created {
		t.Error("expected second call to find the existing session")
	}
	if again != s {
		t.Error("expected the same session instance")
	}
	if again.OwnerID != "owner" {
		t.Errorf("owner must not change on rejoin, got %s", again.OwnerID)
	}
}

func TestRegistry_RejectsInvalidSessionID(t *testing.T) {
	registry := NewRegistry(testConfig(time.Minute))
	defer registry.Close()

	for _, id := range []string{"", "has spaces", "has/slash"} {
		if _, _, err := registry.GetOrCreate(id, "owner"); err != ErrInvalidSessionID {
			t.Errorf("session ID %q: expected ErrInvalidSessionID, got %v", id, err)
		}
	}
}

// TestRegistry_ConcurrentCreateLookup exercises the only cross-session
// shared structure under concurrent create/lookup/remove.
func TestRegistry_ConcurrentCreateLookup(t *testing.T) {
	registry := NewRegistry(testConfig(time.Minute))
	defer registry.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for j := 0; j < 5; j++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				id := fmt.Sprintf("sess-%d", n)
				if _, _, err := registry.GetOrCreate(id, "owner"); err != nil {
					t.Errorf("GetOrCreate(%s) failed: %v", id, err)
				}
				registry.Get(id)
			}(i)
		}
	}
	wg.Wait()

	if registry.Count() != 10 {
		t.Errorf("expected 10 sessions, got %d", registry.Count())
	}
}

// TestRegistry_CleanupRemovesEmptySessionAfterGrace: an emptied session is
// torn down once the grace period passes.
func TestRegistry_CleanupRemovesEmptySessionAfterGrace(t *testing.T) {
	registry := NewRegistry(testConfig(30 * time.Millisecond))
	defer registry.Close()

	ended := make(chan string, 1)
	registry.SetOnEnd(func(s *Session) { ended <- s.ID })

	if _, _, err := registry.GetOrCreate("sess-1", "owner"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	registry.ScheduleCleanup("sess-1")

	select {
	case id := <-ended:
		if id != "sess-1" {
			t.Errorf("expected sess-1 ended, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("cleanup did not fire within grace period")
	}

	if _, exists := registry.Get("sess-1"); exists {
		t.Error("expected session removed after cleanup")
	}
}

// TestRegistry_RejoinWithinGraceCancelsCleanup: getting the session again
// before the timer fires keeps it alive.
func TestRegistry_RejoinWithinGraceCancelsCleanup(t *testing.T) {
	registry := NewRegistry(testConfig(50 * time.Millisecond))
	defer registry.Close()

	s, _, err := registry.GetOrCreate("sess-1", "owner")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	registry.ScheduleCleanup("sess-1")

	// Rejoin before the grace period elapses.
	if _, created, err := registry.GetOrCreate("sess-1", "owner"); err != nil || created {
		t.Fatalf("rejoin failed: created=%v err=%v", created, err)
	}
	_ = s.Do(func() {
		s.AddParticipant(types.Participant{UserID: "owner"})
	})
	s.Barrier()

	time.Sleep(120 * time.Millisecond)
	if _, exists := registry.Get("sess-1"); !exists {
		t.Error("session was cleaned up despite rejoin within grace period")
	}
}

// TestRegistry_CleanupSkipsRepopulatedSession: the emptiness re-check runs
// on the session executor, so a join racing the timer wins.
func TestRegistry_CleanupSkipsRepopulatedSession(t *testing.T) {
	registry := NewRegistry(testConfig(20 * time.Millisecond))
	defer registry.Close()

	s, _, err := registry.GetOrCreate("sess-1", "owner")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_ = s.Do(func() {
		s.AddParticipant(types.Participant{UserID: "back"})
	})
	s.Barrier()

	registry.ScheduleCleanup("sess-1")
	time.Sleep(80 * time.Millisecond)

	if _, exists := registry.Get("sess-1"); !exists {
		t.Error("cleanup removed a session that still had participants")
	}
}

func TestSession_DoRunsTasksInArrivalOrder(t *testing.T) {
	registry := NewRegistry(testConfig(time.Minute))
	defer registry.Close()

	s, _, err := registry.GetOrCreate("sess-1", "owner")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var order []int
	for i := 0; i < 50; i++ {
		n := i
		if err := s.Do(func() { order = append(order, n) }); err != nil {
			t.Fatalf("Do(%d) failed: %v", n, err)
		}
	}
	s.Barrier()

	for i, n := range order {
		if n != i {
			t.Fatalf("task order violated at index %d: got %d", i, n)
		}
	}
}

func TestSession_DoAfterCloseFails(t *testing.T) {
	registry := NewRegistry(testConfig(time.Minute))
	s, _, err := registry.GetOrCreate("sess-1", "owner")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	registry.Close()

	if err := s.Do(func() {}); err != ErrSessionClosed {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSession_ParticipantBookkeeping(t *testing.T) {
	registry := NewRegistry(testConfig(time.Minute))
	defer registry.Close()

	s, _, err := registry.GetOrCreate("sess-1", "owner")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_ = s.Do(func() {
		s.AddParticipant(types.Participant{UserID: "b", Role: types.RoleLearner})
		s.AddParticipant(types.Participant{UserID: "a", Role: types.RoleAI})
		s.AddParticipant(types.Participant{UserID: "b", Role: types.RoleLearner}) // replace

		if s.ParticipantCount() != 2 {
			t.Errorf("expected 2 participants, got %d", s.ParticipantCount())
		}
		participants := s.Participants()
		if participants[0].UserID != "a" || participants[1].UserID != "b" {
			t.Errorf("expected stable ordering by user ID, got %+v", participants)
		}

		s.RemoveParticipant("a")
		s.RemoveParticipant("a") // idempotent
		if s.ParticipantCount() != 1 {
			t.Errorf("expected 1 participant after removal, got %d", s.ParticipantCount())
		}
	})
	s.Barrier()
}
