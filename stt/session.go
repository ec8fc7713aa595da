package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// closeNormal is the websocket normal closure code; any other upstream
// close code leaves the session in the errored state.
const closeNormal = 1000

const (
	// sinkDepth bounds how many audio chunks may queue between the HTTP
	// handler and the upstream writer before pushes are rejected.
	sinkDepth = 100

	// eventDepth bounds outbound protocol events queued for the SSE writer.
	eventDepth = 64
)

// Session bridges one client's audio chunks to one upstream realtime
// transcription connection. The session exclusively owns its connection
// handle and audio sink; the SSE writer only reads the event channel.
type Session struct {
	id       string
	live     LiveSession
	registry *Registry
	logger   *log.Logger
	events   chan Event

	mu        sync.Mutex
	state     State
	sink      chan []byte
	idle      time.Duration
	idleTimer *time.Timer

	closeOnce sync.Once
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the outbound protocol event stream. The channel is closed
// once the session is fully torn down.
func (s *Session) Events() <-chan Event {
	return s.events
}

// PushAudio appends one audio chunk to the session's sink. Chunks are
// forwarded to the upstream connection in arrival order; the caller is
// responsible for sending them in capture order.
func (s *Session) PushAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConnecting, StateOpen:
	default:
		return ErrSessionNotFound
	}

	select {
	case s.sink <- data:
	default:
		return fmt.Errorf("audio sink full")
	}

	if s.idleTimer != nil {
		s.idleTimer.Reset(s.idle)
	}
	return nil
}

// Stop ends the audio sink, closes the upstream connection, and removes the
// session from the registry. Safe to call concurrently with a
// provider-initiated close; teardown runs exactly once.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateErrored {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	s.state = StateClosing
	s.mu.Unlock()

	s.teardown()
	return nil
}

// teardown releases everything the session owns: the sink, the upstream
// connection, and the registry entry. All exit paths funnel through here.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		if s.idleTimer != nil {
			s.idleTimer.Stop()
		}
		close(s.sink)
		s.mu.Unlock()

		s.registry.Remove(s.id)

		if err := s.live.Stop(); err != nil {
			s.logger.Debug("upstream stop", "session", s.id, "error", err)
		}

		s.logger.Info("teardown", "session", s.id)
	})
}

// pump drains the sink into the upstream connection.
func (s *Session) pump() {
	for data := range s.sink {
		if err := s.live.SendAudio(data); err != nil {
			s.logger.Error("write audio", "session", s.id, "error", err)
		}
	}
}

// run translates upstream events into outbound protocol events until the
// connection terminates, then tears the session down and closes the event
// channel.
func (s *Session) run() {
	for ev := range s.live.Events() {
		switch ev := ev.(type) {
		case Opened:
			s.mu.Lock()
			if s.state == StateConnecting {
				s.state = StateOpen
			}
			s.mu.Unlock()
			s.logger.Info("open", "session", s.id, "upstream", ev.ID)
			s.emit(Event{Type: EventSession, SessionID: s.id, ID: ev.ID})

		case TurnEvent:
			text := strings.TrimSpace(ev.Turn.Transcript)
			if text == "" {
				continue
			}
			s.logger.Info("hear", "session", s.id, "txt", text)
			s.emit(Event{Type: EventTranscript, Text: text})

		case Warning:
			s.logger.Error("upstream", "session", s.id, "error", ev.Err)
			s.emit(Event{Type: EventError, Error: ev.Err.Error()})

		case Closed:
			s.logger.Info("closed", "session", s.id, "code", ev.Code, "reason", ev.Reason)
			s.teardown()
			if ev.Code != 0 && ev.Code != closeNormal {
				s.mu.Lock()
				s.state = StateErrored
				s.mu.Unlock()
			}
			s.emit(Event{Type: EventClose, Code: ev.Code, Reason: ev.Reason})
			close(s.events)
			return
		}
	}

	// Upstream event channel ended without a close message.
	s.teardown()
	s.emit(Event{Type: EventClose})
	close(s.events)
}

// emit never blocks: if the SSE consumer has gone away and the buffer is
// full, the event is dropped rather than wedging the upstream reader.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("dropped event", "session", s.id, "type", ev.Type)
	}
}

// Manager owns the session registry and opens relay sessions. One manager
// is constructed at service startup and handed to every request handler.
type Manager struct {
	transcriber LiveTranscriber
	registry    *Registry
	idle        time.Duration
	logger      *log.Logger
}

func NewManager(
	transcriber LiveTranscriber,
	registry *Registry,
	idle time.Duration,
	logger *log.Logger,
) *Manager {
	return &Manager{
		transcriber: transcriber,
		registry:    registry,
		idle:        idle,
		logger:      logger,
	}
}

// Start opens an upstream connection, registers the session, and emits the
// ready event. The session event follows once the upstream connection
// confirms it is open, so consumers always see ready before session.
func (m *Manager) Start(
	ctx context.Context,
	requestedID string,
) (*Session, error) {
	id := requestedID
	if id == "" {
		id = "session_" + uuid.NewString()
	}

	live, err := m.transcriber.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect upstream transcription: %w", err)
	}

	s := &Session{
		id:       id,
		live:     live,
		registry: m.registry,
		logger:   m.logger,
		events:   make(chan Event, eventDepth),
		state:    StateConnecting,
		sink:     make(chan []byte, sinkDepth),
		idle:     m.idle,
	}

	if err := m.registry.Register(id, s); err != nil {
		if stopErr := live.Stop(); stopErr != nil {
			m.logger.Debug("upstream stop", "session", id, "error", stopErr)
		}
		return nil, err
	}

	if m.idle > 0 {
		// The session is already visible in the registry, so a chunk may
		// reset the timer concurrently with this assignment.
		timer := time.AfterFunc(m.idle, func() {
			m.logger.Warn("idle timeout", "session", id)
			if err := s.Stop(); err != nil && err != ErrSessionNotFound {
				m.logger.Error("idle teardown", "session", id, "error", err)
			}
		})
		s.mu.Lock()
		s.idleTimer = timer
		s.mu.Unlock()
	}

	s.emit(Event{Type: EventReady, SessionID: id})

	go s.pump()
	go s.run()

	m.logger.Info("start", "session", id)
	return s, nil
}

func (m *Manager) Lookup(id string) (*Session, error) {
	return m.registry.Lookup(id)
}

// Stop tears down the session with the given id and deregisters it before
// returning, so a subsequent chunk or stop for the same id fails with
// ErrSessionNotFound.
func (m *Manager) Stop(id string) error {
	s, err := m.registry.Lookup(id)
	if err != nil {
		return err
	}
	return s.Stop()
}
