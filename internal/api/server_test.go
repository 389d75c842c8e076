package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/docent/internal/document"
	"github.com/kalambet/docent/internal/feedback"
	"github.com/kalambet/docent/internal/session"
)

// echoAsker is a stub assistant that appends both turns and answers with a
// fixed transform of the question.
type echoAsker struct {
	audio []byte
}

func (a echoAsker) Ask(ctx context.Context, sess *session.Session, question string) (session.Turn, error) {
	sess.Append(session.Turn{Role: session.RoleUser, Content: question})
	turn := session.Turn{Role: session.RoleAssistant, Content: "answer to: " + question}
	sess.Append(turn)
	if len(a.audio) > 0 {
		sess.AttachAudio(a.audio)
		turn.Audio = a.audio
	}
	return turn, nil
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Sessions:  session.NewManager(session.StyleOptions{}),
		Assistant: echoAsker{audio: []byte("mp3-bytes")},
		Feedback:  feedback.NewLog(filepath.Join(t.TempDir(), "feedback.csv")),
		Document:  document.New(filepath.Join(t.TempDir(), "absent.pdf")),
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
}

func createSession(t *testing.T, h http.Handler, body any) string {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/v1/sessions", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: status %d: %s", w.Code, w.Body.String())
	}
	var resp sessionResponse
	decode(t, w, &resp)
	return resp.ID
}

func TestCreateSessionDefaults(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	w := doJSON(t, h, http.MethodPost, "/v1/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	var resp sessionResponse
	decode(t, w, &resp)
	if resp.ID == "" {
		t.Error("empty session id")
	}
	if resp.Language != "English" || resp.Length != "short" {
		t.Errorf("defaults = %s/%s", resp.Language, resp.Length)
	}
}

func TestCreateSessionInvalidLength(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	w := doJSON(t, h, http.MethodPost, "/v1/sessions", map[string]string{"length": "medium"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPostMessageFlow(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	id := createSession(t, h, map[string]string{"language": "Urdu", "length": "detailed"})

	w := doJSON(t, h, http.MethodPost, "/v1/sessions/"+id+"/messages", map[string]string{"question": "What is X?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var msg messageResponse
	decode(t, w, &msg)
	if msg.Content != "answer to: What is X?" {
		t.Errorf("content = %q", msg.Content)
	}
	if !msg.HasAudio {
		t.Error("has_audio = false")
	}
	if msg.Index != 1 {
		t.Errorf("index = %d, want 1", msg.Index)
	}

	// History now holds both turns in order.
	w = doJSON(t, h, http.MethodGet, "/v1/sessions/"+id+"/messages", nil)
	var list []messageResponse
	decode(t, w, &list)
	if len(list) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(list))
	}
	if list[0].Role != "user" || list[1].Role != "assistant" {
		t.Errorf("roles = %s,%s", list[0].Role, list[1].Role)
	}
}

func TestPostMessageEmptyQuestion(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	id := createSession(t, h, nil)

	w := doJSON(t, h, http.MethodPost, "/v1/sessions/"+id+"/messages", map[string]string{"question": "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMessageAudio(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	id := createSession(t, h, nil)
	doJSON(t, h, http.MethodPost, "/v1/sessions/"+id+"/messages", map[string]string{"question": "q"})

	// Assistant turn (index 1) carries audio.
	w := doJSON(t, h, http.MethodGet, "/v1/sessions/"+id+"/messages/1/audio", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.String() != "mp3-bytes" {
		t.Errorf("body = %q", w.Body.String())
	}

	// User turn has none.
	w = doJSON(t, h, http.MethodGet, "/v1/sessions/"+id+"/messages/0/audio", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("user turn audio: status = %d, want 404", w.Code)
	}
}

func TestDownloadAnswer(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	id := createSession(t, h, nil)

	// No answer yet.
	w := doJSON(t, h, http.MethodGet, "/v1/sessions/"+id+"/answer.txt", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	doJSON(t, h, http.MethodPost, "/v1/sessions/"+id+"/messages", map[string]string{"question": "q"})

	w = doJSON(t, h, http.MethodGet, "/v1/sessions/"+id+"/answer.txt", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "answer.txt") {
		t.Errorf("Content-Disposition = %q", w.Header().Get("Content-Disposition"))
	}
	if w.Body.String() != "answer to: q" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestFeedback(t *testing.T) {
	deps := newTestDeps(t)
	h := NewHandler(deps)
	id := createSession(t, h, nil)
	doJSON(t, h, http.MethodPost, "/v1/sessions/"+id+"/messages", map[string]string{"question": "q"})

	w := doJSON(t, h, http.MethodPost, "/v1/feedback", map[string]string{
		"session_id": id,
		"feedback":   "very helpful",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	rows, err := deps.Feedback.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].Question != "q" || rows[0].Answer != "answer to: q" {
		t.Errorf("row Q/A = %q/%q", rows[0].Question, rows[0].Answer)
	}
}

func TestFeedbackEmpty(t *testing.T) {
	deps := newTestDeps(t)
	h := NewHandler(deps)

	w := doJSON(t, h, http.MethodPost, "/v1/feedback", map[string]string{"feedback": "  "})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
	rows, err := deps.Feedback.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 0 {
		t.Error("empty feedback was recorded")
	}
}

func TestSessionNotFound(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	paths := []struct {
		method, path string
	}{
		{http.MethodGet, "/v1/sessions/nope"},
		{http.MethodPost, "/v1/sessions/nope/messages"},
		{http.MethodGet, "/v1/sessions/nope/messages"},
		{http.MethodDelete, "/v1/sessions/nope"},
	}
	for _, p := range paths {
		w := doJSON(t, h, p.method, p.path, map[string]string{"question": "q"})
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", p.method, p.path, w.Code)
		}
	}
}

func TestPatchSession(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	id := createSession(t, h, nil)

	w := doJSON(t, h, http.MethodPatch, "/v1/sessions/"+id, map[string]string{"length": "detailed"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp sessionResponse
	decode(t, w, &resp)
	if resp.Length != "detailed" || resp.Language != "English" {
		t.Errorf("options = %s/%s", resp.Language, resp.Length)
	}
}

func TestBearerAuth(t *testing.T) {
	deps := newTestDeps(t)
	deps.Token = "secret"
	h := NewHandler(deps)

	// Health stays open.
	w := doJSON(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}

	// Missing and wrong tokens are rejected.
	w = doJSON(t, h, http.MethodPost, "/v1/sessions", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Errorf("valid token: status = %d, want 201", rec.Code)
	}
}

func TestHealthDegradedWithoutDocument(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	w := doJSON(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["status"] != "degraded" {
		t.Errorf("status = %q, want degraded (document missing)", resp["status"])
	}
}

func TestTurnCountAfterManyTurns(t *testing.T) {
	deps := newTestDeps(t)
	h := NewHandler(deps)
	id := createSession(t, h, nil)

	const n = 4
	for i := 0; i < n; i++ {
		doJSON(t, h, http.MethodPost, "/v1/sessions/"+id+"/messages", map[string]string{
			"question": fmt.Sprintf("q%d", i),
		})
	}

	w := doJSON(t, h, http.MethodGet, "/v1/sessions/"+id+"/messages", nil)
	var list []messageResponse
	decode(t, w, &list)

	users, assistants := 0, 0
	for _, m := range list {
		switch m.Role {
		case "user":
			users++
		case "assistant":
			assistants++
		}
	}
	if users != n || assistants != n {
		t.Errorf("users=%d assistants=%d, want %d each", users, assistants, n)
	}
}
