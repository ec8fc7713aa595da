package stt

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

type fakeLive struct {
	events chan ProviderEvent

	mu      sync.Mutex
	audio   [][]byte
	stopped bool

	closeOnce sync.Once
}

func newFakeLive() *fakeLive {
	return &fakeLive{events: make(chan ProviderEvent, 16)}
}

func (f *fakeLive) SendAudio(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, data)
	return nil
}

func (f *fakeLive) Stop() error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	f.closeUpstream(1000, "stop requested")
	return nil
}

func (f *fakeLive) Events() <-chan ProviderEvent {
	return f.events
}

// closeUpstream simulates the provider terminating the connection.
func (f *fakeLive) closeUpstream(code int, reason string) {
	f.closeOnce.Do(func() {
		f.events <- Closed{Code: code, Reason: reason}
		close(f.events)
	})
}

func (f *fakeLive) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.audio))
	copy(out, f.audio)
	return out
}

type fakeTranscriber struct {
	mu    sync.Mutex
	lives []*fakeLive
	err   error
}

func (f *fakeTranscriber) Start(ctx context.Context) (LiveSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	live := newFakeLive()
	f.mu.Lock()
	f.lives = append(f.lives, live)
	f.mu.Unlock()
	return live, nil
}

func (f *fakeTranscriber) last() *fakeLive {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lives[len(f.lives)-1]
}

func testManager(t *testing.T, max int, idle time.Duration) (*Manager, *Registry, *fakeTranscriber) {
	t.Helper()
	transcriber := &fakeTranscriber{}
	registry := NewRegistry(max)
	logger := log.New(io.Discard)
	return NewManager(transcriber, registry, idle, logger), registry, transcriber
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatalf("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func waitClosed(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("event channel never closed, got %v", got)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Run("Ready Then Session Before Transcript", func(t *testing.T) {
		manager, _, transcriber := testManager(t, 0, 0)

		s, err := manager.Start(context.Background(), "S1")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		live := transcriber.last()
		live.events <- Opened{ID: "upstream-1"}
		live.events <- TurnEvent{Turn: Turn{Transcript: "hello"}}

		ready := nextEvent(t, s.Events())
		if ready.Type != EventReady || ready.SessionID != "S1" {
			t.Fatalf("expected ready for S1, got %+v", ready)
		}

		session := nextEvent(t, s.Events())
		if session.Type != EventSession || session.ID != "upstream-1" {
			t.Fatalf("expected session event, got %+v", session)
		}

		transcript := nextEvent(t, s.Events())
		if transcript.Type != EventTranscript || transcript.Text != "hello" {
			t.Fatalf("expected transcript, got %+v", transcript)
		}
	})

	t.Run("Minted Session ID", func(t *testing.T) {
		manager, registry, _ := testManager(t, 0, 0)

		s, err := manager.Start(context.Background(), "")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if s.ID() == "" {
			t.Fatalf("expected minted session id")
		}
		if _, err := registry.Lookup(s.ID()); err != nil {
			t.Errorf("minted id not registered: %v", err)
		}
	})

	t.Run("Empty Turns Are Skipped", func(t *testing.T) {
		manager, _, transcriber := testManager(t, 0, 0)

		s, err := manager.Start(context.Background(), "S1")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		live := transcriber.last()
		live.events <- Opened{ID: "u"}
		live.events <- TurnEvent{Turn: Turn{Transcript: "   "}}
		live.events <- TurnEvent{Turn: Turn{Transcript: "real text"}}

		nextEvent(t, s.Events()) // ready
		nextEvent(t, s.Events()) // session

		transcript := nextEvent(t, s.Events())
		if transcript.Text != "real text" {
			t.Errorf("blank turn should be skipped, got %+v", transcript)
		}
	})

	t.Run("Warning Does Not Close Session", func(t *testing.T) {
		manager, registry, transcriber := testManager(t, 0, 0)

		s, err := manager.Start(context.Background(), "S1")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		live := transcriber.last()
		live.events <- Opened{ID: "u"}
		live.events <- Warning{Err: errors.New("transient upstream hiccup")}

		nextEvent(t, s.Events()) // ready
		nextEvent(t, s.Events()) // session

		errEvent := nextEvent(t, s.Events())
		if errEvent.Type != EventError {
			t.Fatalf("expected error event, got %+v", errEvent)
		}
		if _, err := registry.Lookup("S1"); err != nil {
			t.Errorf("session should survive a warning: %v", err)
		}
	})

	t.Run("Audio Is Pumped In Order", func(t *testing.T) {
		manager, _, transcriber := testManager(t, 0, 0)

		s, err := manager.Start(context.Background(), "S1")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		live := transcriber.last()
		live.events <- Opened{ID: "u"}
		nextEvent(t, s.Events())
		nextEvent(t, s.Events())

		for _, chunk := range []string{"one", "two", "three"} {
			if err := s.PushAudio([]byte(chunk)); err != nil {
				t.Fatalf("push %s: %v", chunk, err)
			}
		}

		deadline := time.Now().Add(2 * time.Second)
		for len(live.received()) < 3 {
			if time.Now().After(deadline) {
				t.Fatalf("audio never reached upstream: %d chunks", len(live.received()))
			}
			time.Sleep(5 * time.Millisecond)
		}

		got := live.received()
		for i, want := range []string{"one", "two", "three"} {
			if string(got[i]) != want {
				t.Errorf("chunk %d = %q, want %q", i, got[i], want)
			}
		}
	})

	t.Run("Stop Deregisters Before Ack", func(t *testing.T) {
		manager, registry, transcriber := testManager(t, 0, 0)

		s, err := manager.Start(context.Background(), "S1")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		transcriber.last().events <- Opened{ID: "u"}
		nextEvent(t, s.Events())
		nextEvent(t, s.Events())

		if err := manager.Stop("S1"); err != nil {
			t.Fatalf("stop: %v", err)
		}
		if _, err := registry.Lookup("S1"); err != ErrSessionNotFound {
			t.Errorf("session should be gone after stop, got %v", err)
		}
		if err := s.PushAudio([]byte("late")); err != ErrSessionNotFound {
			t.Errorf("push after stop should fail, got %v", err)
		}
		if err := manager.Stop("S1"); err != ErrSessionNotFound {
			t.Errorf("second stop should be not-found, got %v", err)
		}

		events := waitClosed(t, s.Events())
		if len(events) == 0 || events[len(events)-1].Type != EventClose {
			t.Errorf("expected trailing close event, got %v", events)
		}
	})

	t.Run("Provider Close Deregisters Once", func(t *testing.T) {
		manager, registry, transcriber := testManager(t, 0, 0)

		s, err := manager.Start(context.Background(), "S1")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		live := transcriber.last()
		live.events <- Opened{ID: "u"}
		nextEvent(t, s.Events())
		nextEvent(t, s.Events())

		// Provider times the session out while a stop races it.
		go live.closeUpstream(3008, "session timed out")
		_ = s.Stop()

		events := waitClosed(t, s.Events())
		if len(events) == 0 || events[len(events)-1].Type != EventClose {
			t.Fatalf("expected close event, got %v", events)
		}
		if registry.Len() != 0 {
			t.Errorf("registry should be empty, has %d", registry.Len())
		}
	})

	t.Run("Connect Failure", func(t *testing.T) {
		transcriber := &fakeTranscriber{err: errors.New("dial refused")}
		registry := NewRegistry(0)
		manager := NewManager(transcriber, registry, 0, log.New(io.Discard))

		if _, err := manager.Start(context.Background(), "S1"); err == nil {
			t.Fatalf("expected connect error")
		}
		if registry.Len() != 0 {
			t.Errorf("no session should be registered on connect failure")
		}
	})

	t.Run("Session Limit Releases Upstream", func(t *testing.T) {
		manager, _, transcriber := testManager(t, 1, 0)

		if _, err := manager.Start(context.Background(), "S1"); err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := manager.Start(context.Background(), "S2"); err != ErrSessionLimit {
			t.Fatalf("expected ErrSessionLimit, got %v", err)
		}

		rejected := transcriber.last()
		rejected.mu.Lock()
		stopped := rejected.stopped
		rejected.mu.Unlock()
		if !stopped {
			t.Errorf("rejected session should stop its upstream connection")
		}
	})

	t.Run("Chunk During Start", func(t *testing.T) {
		// A client that knows its session id up front may send chunks as
		// soon as the session is registered, before Start has returned.
		manager, registry, transcriber := testManager(t, 0, time.Minute)

		done := make(chan struct{})
		go func() {
			defer close(done)
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				s, err := registry.Lookup("S1")
				if err != nil {
					continue
				}
				for i := 0; i < 100; i++ {
					_ = s.PushAudio([]byte("early"))
				}
				return
			}
		}()

		s, err := manager.Start(context.Background(), "S1")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		<-done

		transcriber.last().events <- Opened{ID: "u"}
		nextEvent(t, s.Events())
		nextEvent(t, s.Events())

		if err := s.Stop(); err != nil {
			t.Fatalf("stop: %v", err)
		}
	})

	t.Run("Idle Timeout Evicts", func(t *testing.T) {
		manager, registry, transcriber := testManager(t, 0, 50*time.Millisecond)

		s, err := manager.Start(context.Background(), "S1")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		transcriber.last().events <- Opened{ID: "u"}
		nextEvent(t, s.Events())
		nextEvent(t, s.Events())

		events := waitClosed(t, s.Events())
		if len(events) == 0 || events[len(events)-1].Type != EventClose {
			t.Fatalf("expected close after idle timeout, got %v", events)
		}
		if registry.Len() != 0 {
			t.Errorf("idle session should be deregistered")
		}
	})
}
