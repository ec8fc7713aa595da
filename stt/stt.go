package stt

import (
	"context"
)

// Turn is one provider-emitted transcription of the current utterance.
// Each turn is a progressively refined complete utterance, not a delta:
// consumers replace displayed text, they never append.
type Turn struct {
	Transcript string
	Formatted  bool
	Start      float64
	End        float64
}

// ProviderEvent is an event reported by the upstream realtime connection.
type ProviderEvent interface {
	providerEvent()
}

// Opened is emitted once when the upstream connection is ready for audio.
type Opened struct {
	ID string
}

// TurnEvent carries one transcription turn.
type TurnEvent struct {
	Turn Turn
}

// Warning is a recoverable upstream error; the connection stays up.
type Warning struct {
	Err error
}

// Closed is terminal; no events follow it.
type Closed struct {
	Code   int
	Reason string
}

func (Opened) providerEvent()    {}
func (TurnEvent) providerEvent() {}
func (Warning) providerEvent()   {}
func (Closed) providerEvent()    {}

// LiveSession is one realtime transcription connection.
type LiveSession interface {
	SendAudio(data []byte) error
	Stop() error
	Events() <-chan ProviderEvent
}

// LiveTranscriber opens realtime transcription connections.
type LiveTranscriber interface {
	Start(ctx context.Context) (LiveSession, error)
}

// EventType tags the outbound protocol events written to the SSE stream.
type EventType string

const (
	EventReady      EventType = "ready"
	EventSession    EventType = "session"
	EventTranscript EventType = "transcript"
	EventError      EventType = "error"
	EventClose      EventType = "close"
)

// Event is one outbound protocol message, serialized as the SSE data payload.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	ID        string    `json:"id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
	Code      int       `json:"code,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}
