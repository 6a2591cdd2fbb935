package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sokinpui/coda/internal/config"
)

func sseServer(t *testing.T, chunks []string, wantAuth string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantAuth != "" && r.Header.Get("Authorization") != wantAuth {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func newClient(url, token string) *Client {
	return New(config.APISettings{
		BaseURL:        url,
		ChatPath:       "/v1/chat",
		UsagePath:      "/v1/usage",
		TimeoutSeconds: 5,
	}, token, "test-model")
}

func TestSendAccumulatesStream(t *testing.T) {
	srv := sseServer(t, []string{"Hello", ", ", "world"}, "Bearer tok")
	defer srv.Close()

	c := newClient(srv.URL, "tok")
	var streamed []string
	c.OnChunk = func(text string) { streamed = append(streamed, text) }

	got, err := c.Send(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != "Hello, world" {
		t.Fatalf("response = %q, want %q", got, "Hello, world")
	}
	if len(streamed) != 3 {
		t.Fatalf("observed %d chunks, want 3", len(streamed))
	}
}

func TestSendIncludesHistory(t *testing.T) {
	var gotMessages []Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotMessages = req.Messages
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newClient(srv.URL, "")
	history := []Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
	}
	if _, err := c.Send(context.Background(), "second", history); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(gotMessages) != 3 {
		t.Fatalf("messages sent = %d, want 3", len(gotMessages))
	}
	last := gotMessages[2]
	if last.Role != "user" || last.Content != "second" {
		t.Fatalf("last message = %+v, want the new user turn", last)
	}
}

func TestSendReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newClient(srv.URL, "")
	_, err := c.Send(context.Background(), "hi", nil)
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("error %q should mention status and body", err)
	}
}

func TestSendSkipsMalformedChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	got, err := newClient(srv.URL, "").Send(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != "ok" {
		t.Fatalf("response = %q, want %q", got, "ok")
	}
}

func TestCountTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req countRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(countResponse{Tokens: len(req.Text)})
	}))
	defer srv.Close()

	n, err := newClient(srv.URL, "").CountTokens(context.Background(), "12345")
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n != 5 {
		t.Fatalf("tokens = %d, want 5", n)
	}
}
