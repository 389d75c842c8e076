package genai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// candidateJSON builds a generateContent response with the given text parts.
func candidateJSON(parts ...string) []byte {
	type part struct {
		Text string `json:"text"`
	}
	var ps []part
	for _, p := range parts {
		ps = append(ps, part{Text: p})
	}
	resp := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": ps}},
		},
	}
	b, _ := json.Marshal(resp)
	return b
}

func TestGenerate(t *testing.T) {
	var gotPath, gotKey string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write(candidateJSON("The capital ", "is X."))
	}))
	defer srv.Close()

	c := NewWithBaseURL("test-key", "test-model", srv.URL)
	got, err := c.Generate(context.Background(), "What is the capital?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "The capital is X." {
		t.Errorf("Generate = %q", got)
	}
	if gotPath != "/models/test-model:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("key = %q", gotKey)
	}
	if !strings.Contains(string(gotBody), "What is the capital?") {
		t.Errorf("request body missing prompt: %s", gotBody)
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 403, "message": "quota exceeded"},
		})
	}))
	defer srv.Close()

	c := NewWithBaseURL("k", "m", srv.URL)
	_, err := c.Generate(context.Background(), "q")
	if err == nil {
		t.Fatal("want error")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v, want upstream message surfaced", err)
	}
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(candidateJSON("ok"))
	}))
	defer srv.Close()

	c := NewWithBaseURL("k", "m", srv.URL)
	got, err := c.Generate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "ok" {
		t.Errorf("Generate = %q", got)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestGenerateRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewWithBaseURL("k", "m", srv.URL)
	_, err := c.Generate(context.Background(), "q")
	if err == nil {
		t.Fatal("want error after retries exhausted")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("err = %v", err)
	}
}

func TestGenerateNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL("k", "m", srv.URL)
	if _, err := c.Generate(context.Background(), "q"); err == nil {
		t.Fatal("want error for empty candidates")
	}
}

func TestDefaultModel(t *testing.T) {
	c := New("k", "")
	if c.Model() != defaultModel {
		t.Errorf("Model = %q, want %q", c.Model(), defaultModel)
	}
}
