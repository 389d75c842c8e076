// Package api exposes the assistant over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/docent/internal/document"
	"github.com/kalambet/docent/internal/feedback"
	"github.com/kalambet/docent/internal/session"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Asker processes one question/answer turn against a session.
type Asker interface {
	Ask(ctx context.Context, sess *session.Session, question string) (session.Turn, error)
}

// Deps holds the dependencies of the HTTP surface.
type Deps struct {
	Sessions  *session.Manager
	Assistant Asker
	Feedback  *feedback.Log
	Document  *document.Store
	Token     string // empty disables bearer auth
}

// NewHandler returns the HTTP API. All routes except /health require the
// bearer token when one is configured.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/v1/sessions", handleCreateSession(deps))
		r.Get("/v1/sessions/{id}", handleGetSession(deps))
		r.Patch("/v1/sessions/{id}", handlePatchSession(deps))
		r.Delete("/v1/sessions/{id}", handleDeleteSession(deps))
		r.Post("/v1/sessions/{id}/messages", handlePostMessage(deps))
		r.Get("/v1/sessions/{id}/messages", handleListMessages(deps))
		r.Get("/v1/sessions/{id}/messages/{index}/audio", handleMessageAudio(deps))
		r.Get("/v1/sessions/{id}/answer.txt", handleDownloadAnswer(deps))
		r.Post("/v1/feedback", handleFeedback(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if _, err := deps.Document.Load(); err != nil {
			status = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

type createSessionRequest struct {
	Language string `json:"language"`
	Length   string `json:"length"`
}

type sessionResponse struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Length   string `json:"length"`
	Turns    int    `json:"turns"`
}

func sessionInfo(s *session.Session) sessionResponse {
	opts := s.Options()
	return sessionResponse{
		ID:       s.ID,
		Language: opts.Language,
		Length:   string(opts.Length),
		Turns:    s.Len(),
	}
}

func handleCreateSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Length != "" && !session.ValidLength(session.Length(req.Length)) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "length must be %q or %q", session.LengthShort, session.LengthDetailed)
			return
		}

		s := deps.Sessions.Create(session.StyleOptions{
			Language: req.Language,
			Length:   session.Length(req.Length),
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(sessionInfo(s))
	}
}

func getSession(deps Deps, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	s, err := deps.Sessions.Get(id)
	if errors.Is(err, session.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "session not found")
		return nil, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
		return nil, false
	}
	return s, true
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := getSession(deps, w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessionInfo(s))
	}
}

func handlePatchSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := getSession(deps, w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Length != "" && !session.ValidLength(session.Length(req.Length)) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "length must be %q or %q", session.LengthShort, session.LengthDetailed)
			return
		}

		s.SetOptions(session.StyleOptions{
			Language: req.Language,
			Length:   session.Length(req.Length),
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessionInfo(s))
	}
}

func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Sessions.Delete(id)
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete session: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

type postMessageRequest struct {
	Question string `json:"question"`
}

type messageResponse struct {
	Index    int    `json:"index"`
	Role     string `json:"role"`
	Content  string `json:"content"`
	HasAudio bool   `json:"has_audio"`
}

func handlePostMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := getSession(deps, w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req postMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		turn, err := deps.Assistant.Ask(r.Context(), s, req.Question)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to process question: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messageResponse{
			Index:    s.Len() - 1,
			Role:     string(turn.Role),
			Content:  turn.Content,
			HasAudio: turn.HasAudio(),
		})
	}
}

func handleListMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := getSession(deps, w, r)
		if !ok {
			return
		}

		turns := s.All()
		out := make([]messageResponse, len(turns))
		for i, t := range turns {
			out[i] = messageResponse{
				Index:    i,
				Role:     string(t.Role),
				Content:  t.Content,
				HasAudio: t.HasAudio(),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleMessageAudio(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := getSession(deps, w, r)
		if !ok {
			return
		}

		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil || index < 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid message index")
			return
		}

		turn, ok := s.Turn(index)
		if !ok || !turn.HasAudio() {
			httpError(w, http.StatusNotFound, "not_found", "no audio for message %d", index)
			return
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(turn.Audio)))
		w.Write(turn.Audio)
	}
}

func handleDownloadAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := getSession(deps, w, r)
		if !ok {
			return
		}

		_, answer := s.LastExchange()
		if answer == "" {
			httpError(w, http.StatusNotFound, "not_found", "session has no answer yet")
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="answer.txt"`)
		fmt.Fprint(w, answer)
	}
}

type feedbackRequest struct {
	SessionID string `json:"session_id"`
	Feedback  string `json:"feedback"`
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		var question, answer string
		if req.SessionID != "" {
			s, err := deps.Sessions.Get(req.SessionID)
			if errors.Is(err, session.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "session not found")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
				return
			}
			question, answer = s.LastExchange()
		}

		err := deps.Feedback.Record(req.Feedback, question, answer)
		if errors.Is(err, feedback.ErrEmptyFeedback) {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "feedback must not be empty")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save feedback: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "recorded"})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
