package stt

import (
	"sync"
	"testing"
)

func TestRegistry(t *testing.T) {
	t.Run("Register And Lookup", func(t *testing.T) {
		r := NewRegistry(0)
		s := &Session{id: "s1"}

		if err := r.Register("s1", s); err != nil {
			t.Fatalf("register: %v", err)
		}

		got, err := r.Lookup("s1")
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if got != s {
			t.Errorf("lookup returned wrong session")
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		r := NewRegistry(0)
		if err := r.Register("s1", &Session{id: "s1"}); err != nil {
			t.Fatalf("register: %v", err)
		}
		if err := r.Register("s1", &Session{id: "s1"}); err != ErrDuplicateSession {
			t.Errorf("expected ErrDuplicateSession, got %v", err)
		}
	})

	t.Run("Capacity", func(t *testing.T) {
		r := NewRegistry(2)
		for _, id := range []string{"a", "b"} {
			if err := r.Register(id, &Session{id: id}); err != nil {
				t.Fatalf("register %s: %v", id, err)
			}
		}
		if err := r.Register("c", &Session{id: "c"}); err != ErrSessionLimit {
			t.Errorf("expected ErrSessionLimit, got %v", err)
		}

		// Removal frees a slot.
		r.Remove("a")
		if err := r.Register("c", &Session{id: "c"}); err != nil {
			t.Errorf("register after removal: %v", err)
		}
	})

	t.Run("Lookup Unknown", func(t *testing.T) {
		r := NewRegistry(0)
		if _, err := r.Lookup("ghost"); err != ErrSessionNotFound {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("Remove Is Idempotent", func(t *testing.T) {
		r := NewRegistry(0)
		if err := r.Register("s1", &Session{id: "s1"}); err != nil {
			t.Fatalf("register: %v", err)
		}

		if !r.Remove("s1") {
			t.Errorf("first remove should report presence")
		}
		if r.Remove("s1") {
			t.Errorf("second remove should be a no-op")
		}
		if r.Len() != 0 {
			t.Errorf("expected empty registry, got %d", r.Len())
		}
	})

	t.Run("Concurrent Remove", func(t *testing.T) {
		r := NewRegistry(0)
		if err := r.Register("s1", &Session{id: "s1"}); err != nil {
			t.Fatalf("register: %v", err)
		}

		var wg sync.WaitGroup
		removed := make(chan bool, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				removed <- r.Remove("s1")
			}()
		}
		wg.Wait()
		close(removed)

		count := 0
		for ok := range removed {
			if ok {
				count++
			}
		}
		if count != 1 {
			t.Errorf("expected exactly one effective remove, got %d", count)
		}
	})
}
