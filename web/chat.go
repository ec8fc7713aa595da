package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/scoutlabs/scout/chat"
)

type chatRequest struct {
	Messages []chat.Message `json:"messages"`
}

type chatResponse struct {
	Reply      string           `json:"reply"`
	Suggestion *chat.Suggestion `json:"suggestion,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	reply, suggestion, err := s.assistant.Respond(r.Context(), req.Messages)
	if err != nil {
		s.logger.Error("chat", "error", err)
		s.writeError(
			w,
			http.StatusInternalServerError,
			"Unable to process your message right now.",
		)
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{
		Reply:      reply,
		Suggestion: suggestion,
	})
}

type transcribeRequest struct {
	AudioBase64 string `json:"audioBase64"`
}

// handleTranscribe is the one-shot endpoint: a complete recording in, the
// final transcript out.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if !s.sttConfigured {
		s.writeError(
			w,
			http.StatusInternalServerError,
			"AssemblyAI is not configured on the server.",
		)
		return
	}

	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.AudioBase64 == "" {
		s.writeError(
			w,
			http.StatusBadRequest,
			"Missing audioBase64 in request body.",
		)
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid audioBase64 payload.")
		return
	}

	text, err := s.batch.Transcribe(r.Context(), audio, 3*time.Second)
	if err != nil {
		s.logger.Error("transcribe", "error", err)
		s.writeError(
			w,
			http.StatusInternalServerError,
			"Failed to transcribe audio with AssemblyAI.",
		)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
