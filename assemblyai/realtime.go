package assemblyai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/scoutlabs/scout/stt"
)

const (
	StreamingBaseURL = "wss://streaming.assemblyai.com/v3/ws"
	PingInterval     = 30 * time.Second
	PongTimeout      = 60 * time.Second

	// DefaultSampleRate is the PCM16LE sample rate the relay feeds upstream.
	DefaultSampleRate = 16000
)

// beginMessage, turnMessage and terminationMessage are the server-to-client
// frames of the v3 streaming API.
type beginMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type turnMessage struct {
	Type            string  `json:"type"`
	Transcript      string  `json:"transcript"`
	TurnIsFormatted bool    `json:"turn_is_formatted"`
	Start           float64 `json:"start,omitempty"`
	End             float64 `json:"end,omitempty"`
}

type terminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type terminateMessage struct {
	Type string `json:"type"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// RealtimeTranscriber opens realtime transcription connections against the
// AssemblyAI streaming API. It implements stt.LiveTranscriber.
type RealtimeTranscriber struct {
	apiKey      string
	baseURL     string
	sampleRate  int
	formatTurns bool
	logger      *log.Logger
}

func NewRealtimeTranscriber(
	apiKey string,
	logger *log.Logger,
) *RealtimeTranscriber {
	return &RealtimeTranscriber{
		apiKey:      apiKey,
		baseURL:     StreamingBaseURL,
		sampleRate:  DefaultSampleRate,
		formatTurns: true,
		logger:      logger,
	}
}

func (t *RealtimeTranscriber) Start(
	ctx context.Context,
) (stt.LiveSession, error) {
	q := url.Values{}
	q.Set("sample_rate", strconv.Itoa(t.sampleRate))
	q.Set("format_turns", strconv.FormatBool(t.formatTurns))

	header := http.Header{}
	header.Set("Authorization", t.apiKey)

	conn, _, err := websocket.DefaultDialer.DialContext(
		ctx,
		t.baseURL+"?"+q.Encode(),
		header,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	session := &RealtimeSession{
		conn:   conn,
		events: make(chan stt.ProviderEvent, 64),
		done:   make(chan struct{}),
		logger: t.logger,
	}

	go session.readLoop()
	go session.keepAlive()

	return session, nil
}

// RealtimeSession is one live websocket connection to the streaming API.
type RealtimeSession struct {
	conn   *websocket.Conn
	events chan stt.ProviderEvent
	done   chan struct{}
	logger *log.Logger

	writeMu  sync.Mutex
	stopOnce sync.Once
}

func (s *RealtimeSession) Events() <-chan stt.ProviderEvent {
	return s.events
}

func (s *RealtimeSession) SendAudio(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

// Stop asks the server to terminate the session and closes the connection.
// The read loop reports the resulting close as a stt.Closed event.
func (s *RealtimeSession) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		defer s.writeMu.Unlock()

		if werr := s.conn.WriteJSON(terminateMessage{Type: "Terminate"}); werr != nil {
			s.logger.Debug("terminate", "error", werr)
		}
		err = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	})
	return err
}

func (s *RealtimeSession) readLoop() {
	defer close(s.events)

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			code, reason := websocket.CloseNormalClosure, ""
			if closeErr, ok := err.(*websocket.CloseError); ok {
				code, reason = closeErr.Code, closeErr.Text
			}
			s.events <- stt.Closed{Code: code, Reason: reason}
			_ = s.conn.Close()
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		var tag struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &tag); err != nil {
			s.logger.Warn("unhandled frame", "data", string(data))
			continue
		}

		switch tag.Type {
		case "Begin":
			var msg beginMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			s.events <- stt.Opened{ID: msg.ID}

		case "Turn":
			var msg turnMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			s.events <- stt.TurnEvent{Turn: stt.Turn{
				Transcript: msg.Transcript,
				Formatted:  msg.TurnIsFormatted,
				Start:      msg.Start,
				End:        msg.End,
			}}

		case "Termination":
			var msg terminationMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			s.logger.Info(
				"termination",
				"audio_seconds", msg.AudioDurationSeconds,
				"session_seconds", msg.SessionDurationSeconds,
			)

		case "Error":
			var msg errorMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			s.events <- stt.Warning{Err: fmt.Errorf("%s", msg.Error)}

		default:
			s.logger.Warn("unhandled event", "type", tag.Type)
		}
	}
}

func (s *RealtimeSession) keepAlive() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(
				websocket.PingMessage,
				[]byte{},
				time.Now().Add(PongTimeout),
			)
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("ping", "error", err)
				return
			}
		}
	}
}
