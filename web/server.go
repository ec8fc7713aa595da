package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scoutlabs/scout/chat"
	"github.com/scoutlabs/scout/stt"
)

// Responder produces assistant replies for a conversation history.
type Responder interface {
	Respond(
		ctx context.Context,
		history []chat.Message,
	) (string, *chat.Suggestion, error)
}

// BatchTranscriber turns a complete audio recording into text.
type BatchTranscriber interface {
	Transcribe(
		ctx context.Context,
		audio []byte,
		pollInterval time.Duration,
	) (string, error)
}

type Server struct {
	manager       *stt.Manager
	batch         BatchTranscriber
	assistant     Responder
	sttConfigured bool
	logger        *log.Logger
}

func NewServer(
	manager *stt.Manager,
	batch BatchTranscriber,
	assistant Responder,
	sttConfigured bool,
	logger *log.Logger,
) *Server {
	return &Server{
		manager:       manager,
		batch:         batch,
		assistant:     assistant,
		sttConfigured: sttConfigured,
		logger:        logger,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Post("/api/chat", s.handleChat)
	r.Post("/api/stt", s.handleTranscribe)
	r.Post("/api/stt/stream", s.handleStream)

	return r
}

// logRequests logs one line per request once the handler returns. For SSE
// responses that line lands when the stream ends.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info(
			"request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
