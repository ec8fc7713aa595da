package assemblyai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/scoutlabs/scout/stt"
)

var upgrader = websocket.Upgrader{}

// streamingStub plays the server side of the v3 streaming protocol for one
// connection: announces the session, echoes each audio frame back as a Turn
// transcript, and terminates when asked.
func streamingStub(t *testing.T) (*httptest.Server, chan http.Header) {
	t.Helper()

	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			headers <- r.Header.Clone()

			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				t.Errorf("upgrade: %v", err)
				return
			}
			defer conn.Close()

			if err := conn.WriteJSON(beginMessage{
				Type: "Begin",
				ID:   "upstream-1",
			}); err != nil {
				return
			}

			for {
				msgType, data, err := conn.ReadMessage()
				if err != nil {
					return
				}

				switch msgType {
				case websocket.BinaryMessage:
					_ = conn.WriteJSON(turnMessage{
						Type:            "Turn",
						Transcript:      string(data),
						TurnIsFormatted: true,
					})

				case websocket.TextMessage:
					if !strings.Contains(string(data), "Terminate") {
						continue
					}
					_ = conn.WriteJSON(terminationMessage{
						Type:                 "Termination",
						AudioDurationSeconds: 1.5,
					})
					_ = conn.WriteMessage(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(
							websocket.CloseNormalClosure, "",
						),
					)
					return
				}
			}
		},
	))

	return srv, headers
}

func dialStub(t *testing.T, srv *httptest.Server, apiKey string) stt.LiveSession {
	t.Helper()

	transcriber := NewRealtimeTranscriber(apiKey, log.New(io.Discard))
	transcriber.baseURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	session, err := transcriber.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return session
}

func nextProviderEvent(
	t *testing.T,
	events <-chan stt.ProviderEvent,
) stt.ProviderEvent {
	t.Helper()

	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for provider event")
		return nil
	}
}

func TestRealtimeSession(t *testing.T) {
	t.Run("Begin Becomes Opened", func(t *testing.T) {
		srv, headers := streamingStub(t)
		defer srv.Close()

		session := dialStub(t, srv, "test-key")
		defer session.Stop()

		hdr := <-headers
		if got := hdr.Get("Authorization"); got != "test-key" {
			t.Errorf("Authorization = %q, want %q", got, "test-key")
		}

		opened, ok := nextProviderEvent(t, session.Events()).(stt.Opened)
		if !ok {
			t.Fatal("first event is not Opened")
		}
		if opened.ID != "upstream-1" {
			t.Errorf("upstream id = %q", opened.ID)
		}
	})

	t.Run("Audio Frames Come Back As Turns", func(t *testing.T) {
		srv, _ := streamingStub(t)
		defer srv.Close()

		session := dialStub(t, srv, "test-key")
		defer session.Stop()

		nextProviderEvent(t, session.Events())

		if err := session.SendAudio([]byte("hello there")); err != nil {
			t.Fatalf("send audio: %v", err)
		}

		turn, ok := nextProviderEvent(t, session.Events()).(stt.TurnEvent)
		if !ok {
			t.Fatal("expected a turn event")
		}
		if turn.Turn.Transcript != "hello there" {
			t.Errorf("transcript = %q", turn.Turn.Transcript)
		}
		if !turn.Turn.Formatted {
			t.Error("turn not marked formatted")
		}
	})

	t.Run("Stop Terminates And Closes", func(t *testing.T) {
		srv, _ := streamingStub(t)
		defer srv.Close()

		session := dialStub(t, srv, "test-key")

		nextProviderEvent(t, session.Events())

		if err := session.Stop(); err != nil {
			t.Fatalf("stop: %v", err)
		}
		if err := session.Stop(); err != nil {
			t.Errorf("second stop: %v", err)
		}

		deadline := time.After(2 * time.Second)
		for {
			select {
			case ev, ok := <-session.Events():
				if !ok {
					t.Fatal("channel closed before Closed event")
				}
				if closed, isClose := ev.(stt.Closed); isClose {
					if closed.Code != websocket.CloseNormalClosure {
						t.Errorf("close code = %d", closed.Code)
					}
					return
				}
			case <-deadline:
				t.Fatal("timed out waiting for close")
			}
		}
	})
}
