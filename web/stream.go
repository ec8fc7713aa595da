package web

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/scoutlabs/scout/stt"
)

type streamRequest struct {
	Action     string `json:"action"`
	SessionID  string `json:"sessionId"`
	AudioChunk string `json:"audioChunk"`
}

// handleStream multiplexes the streaming relay protocol over one endpoint:
// start returns a long-lived SSE stream, chunk and stop are plain
// request/response acknowledgements.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.sttConfigured {
		s.writeError(
			w,
			http.StatusInternalServerError,
			"AssemblyAI is not configured on the server.",
		)
		return
	}

	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch {
	case req.Action == "chunk" && req.SessionID != "":
		s.handleChunk(w, req)
	case req.Action == "stop" && req.SessionID != "":
		s.handleStop(w, req)
	case req.Action == "start":
		s.handleStart(w, r, req)
	default:
		s.writeError(
			w,
			http.StatusBadRequest,
			"Invalid action or missing sessionId",
		)
	}
}

func (s *Server) handleChunk(w http.ResponseWriter, req streamRequest) {
	session, err := s.manager.Lookup(req.SessionID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	if req.AudioChunk != "" {
		audio, err := base64.StdEncoding.DecodeString(req.AudioChunk)
		if err != nil {
			// Malformed chunks are rejected at the boundary without
			// touching session state.
			s.writeError(w, http.StatusBadRequest, "Invalid audio chunk")
			return
		}

		if err := session.PushAudio(audio); err != nil {
			if errors.Is(err, stt.ErrSessionNotFound) {
				s.writeError(w, http.StatusNotFound, "Session not found")
				return
			}
			s.logger.Error("push audio", "session", req.SessionID, "error", err)
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleStop(w http.ResponseWriter, req streamRequest) {
	if err := s.manager.Stop(req.SessionID); err != nil {
		s.writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": req.SessionID,
	})
}

func (s *Server) handleStart(
	w http.ResponseWriter,
	r *http.Request,
	req streamRequest,
) {
	session, err := s.manager.Start(r.Context(), req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, stt.ErrSessionLimit):
			s.writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, stt.ErrDuplicateSession):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("start session", "error", err)
			s.writeError(
				w,
				http.StatusInternalServerError,
				"Failed to process streaming request",
			)
		}
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		// Can't stream; release the session we just opened.
		if stopErr := session.Stop(); stopErr != nil {
			s.logger.Debug("stop session", "error", stopErr)
		}
		s.writeError(
			w,
			http.StatusInternalServerError,
			"Streaming unsupported",
		)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				s.logger.Debug("write event", "session", session.ID(), "error", err)
				s.release(session)
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			// Client went away without calling stop; run the same
			// teardown path so the upstream connection is released.
			s.release(session)
			return
		}
	}
}

// release tears the session down on abrupt transport closure. A session
// already closed by stop or a provider close is not an error here.
func (s *Server) release(session *stt.Session) {
	if err := session.Stop(); err != nil &&
		!errors.Is(err, stt.ErrSessionNotFound) {
		s.logger.Error("release session", "session", session.ID(), "error", err)
	}
}

func writeSSE(w http.ResponseWriter, ev stt.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
