// Package llm implements the streaming chat-completion client for
// OpenAI-compatible APIs (OpenAI, DeepSeek, MiniMax, Kimi, Qwen, etc.).
// One request per call, stream=true, incremental delivery via callbacks.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/packages/ssestream"
)

// verifyTimeout bounds the credential verification request. The streaming
// request itself has no deadline; it runs until the server closes the
// connection or the caller cancels.
const verifyTimeout = 10 * time.Second

// ChatMessage is one entry of the request payload. Timestamp is passed
// through when present so the model can order and label journal entries.
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// StreamCallbacks receives the incremental output of one completion request.
// OnDelta is invoked synchronously for every decoded content fragment.
// Exactly one of OnFinish/OnError is invoked at stream end, and neither is
// invoked after the cancel function has been called.
type StreamCallbacks struct {
	OnDelta  func(delta string)
	OnFinish func()
	OnError  func(err error)
}

// StatusError is returned through OnError for non-2xx responses.
// Callers distinguish 401 (authentication failed) and 402 (insufficient
// balance) to prompt credential re-configuration.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status from an error chain, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Client issues chat-completion requests.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{httpClient: &http.Client{}}
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// completionChunk is the subset of a streamed chunk we consume.
type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

var doneSentinel = []byte("[DONE]")

// StreamCompletion sends one streaming chat-completion request and delivers
// output through cb. The returned function cancels the request; cancellation
// is cooperative and suppresses any terminal callback still in flight.
//
// Each SSE event's data payload is parsed for choices[0].delta.content.
// The decoder buffers lines across network chunk boundaries, so a JSON
// object split across chunks is reassembled before parsing; payloads that
// still fail to parse are skipped, never fatal.
func (c *Client) StreamCompletion(messages []ChatMessage, apiKey string, cb StreamCallbacks, model, baseURL string) (cancel func()) {
	ctx, cancelCtx := context.WithCancel(context.Background())

	go c.run(ctx, messages, apiKey, cb, model, baseURL)

	return cancelCtx
}

func (c *Client) run(ctx context.Context, messages []ChatMessage, apiKey string, cb StreamCallbacks, model, baseURL string) {
	payload, err := json.Marshal(completionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		c.fail(ctx, cb, fmt.Errorf("encode request: %w", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		c.fail(ctx, cb, fmt.Errorf("build request: %w", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.fail(ctx, cb, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.fail(ctx, cb, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))})
		return
	}

	decoder := ssestream.NewDecoder(resp)
	defer decoder.Close()

	for decoder.Next() {
		if ctx.Err() != nil {
			return
		}
		data := bytes.TrimSpace(decoder.Event().Data)
		if bytes.Equal(data, doneSentinel) {
			continue
		}
		var chunk completionChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			cb.OnDelta(delta)
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := decoder.Err(); err != nil {
		cb.OnError(fmt.Errorf("stream read: %w", err))
		return
	}
	cb.OnFinish()
}

// fail reports an error unless the request was cancelled.
func (c *Client) fail(ctx context.Context, cb StreamCallbacks, err error) {
	if ctx.Err() != nil {
		return
	}
	cb.OnError(err)
}

// VerifyKey checks the credential against GET {baseURL}/models.
// HTTP 200 means valid. The request is bounded by a 10-second timeout.
func (c *Client) VerifyKey(ctx context.Context, apiKey, baseURL string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
