// Package client talks to the model gateway over HTTP. Responses stream as
// server-sent events; Send accumulates the chunks and returns the complete
// text, optionally forwarding each chunk to an observer for live display.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sokinpui/coda/internal/agent"
	"github.com/sokinpui/coda/internal/config"
)

// Message is one wire-format conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type countRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type countResponse struct {
	Tokens int `json:"tokens"`
}

// Client is a streaming chat client for one model.
type Client struct {
	httpClient *http.Client
	baseURL    string
	chatPath   string
	usagePath  string
	token      string
	model      string

	// OnChunk observes each streamed text fragment as it arrives.
	OnChunk func(text string)

	Log *zap.SugaredLogger
}

// New builds a client from resolved settings.
func New(api config.APISettings, token, model string) *Client {
	timeout := time.Duration(api.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(api.BaseURL, "/"),
		chatPath:   api.ChatPath,
		usagePath:  api.UsagePath,
		token:      token,
		model:      model,
		Log:        zap.NewNop().Sugar(),
	}
}

// SetModel switches the model used on subsequent requests.
func (c *Client) SetModel(model string) { c.model = model }

// Model returns the model currently in use.
func (c *Client) Model() string { return c.model }

// Send delivers a message with history and blocks until the stream completes,
// returning the full response text.
func (c *Client) Send(ctx context.Context, message string, history []Message) (string, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: append(append([]Message{}, history...), Message{Role: "user", Content: message}),
		Stream:   true,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.chatPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return full.String(), ctx.Err()
		default:
		}

		data := strings.TrimSpace(scanner.Text())
		if data == "" || data == "data: [DONE]" {
			continue
		}
		data = strings.TrimPrefix(data, "data: ")

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.Log.Debugw("skipping malformed stream chunk", "data", data)
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			full.WriteString(choice.Delta.Content)
			if c.OnChunk != nil {
				c.OnChunk(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("stream read: %w", err)
	}
	return full.String(), nil
}

// CountTokens asks the gateway for the exact token count of text under the
// current model. Callers fall back to a local estimate when this fails.
func (c *Client) CountTokens(ctx context.Context, text string) (int, error) {
	body, err := json.Marshal(countRequest{Model: c.model, Text: text})
	if err != nil {
		return 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.usagePath, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("usage request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}
	var out countResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode usage response: %w", err)
	}
	return out.Tokens, nil
}

// SendFunc adapts the client to the orchestrator's transport contract.
func (c *Client) SendFunc() agent.SendFunc {
	return func(ctx context.Context, message string, history []agent.Message) (string, error) {
		wire := make([]Message, 0, len(history))
		for _, m := range history {
			wire = append(wire, Message{Role: m.Role, Content: m.Content})
		}
		return c.Send(ctx, message, wire)
	}
}
