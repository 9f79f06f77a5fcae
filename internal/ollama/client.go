// Package ollama is a minimal client for the Ollama HTTP API: chat
// completion (streaming and not), model listing, and loaded-model status.
package ollama

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

	"github.com/olc-dev/olc/internal/chat"
	"github.com/olc-dev/olc/internal/debug"
)

// Client talks to one Ollama server.
type Client struct {
	host string
	http *http.Client
}

// New creates a client for host, e.g. "http://localhost:11434".
func New(host string) *Client {
	return &Client{
		host: strings.TrimRight(host, "/"),
		http: &http.Client{},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type wireMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// ModelInfo describes one model known to the server.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Generate implements the engine's generation backend. When onDelta is
// non-nil the response is streamed and each content fragment is forwarded
// as it arrives; otherwise a single blocking request is made.
func (c *Client) Generate(ctx context.Context, req chat.ChatRequest, onDelta func(string)) (*chat.ChatResult, error) {
	body := chatRequest{
		Model:    req.Model,
		Messages: toWire(req.Messages),
		Stream:   onDelta != nil,
	}
	if req.Temperature != nil {
		body.Options = &chatOptions{Temperature: req.Temperature}
	}

	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if onDelta == nil {
		var cr chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
			return nil, fmt.Errorf("decoding chat response: %w", err)
		}
		if cr.Error != "" {
			return nil, fmt.Errorf("chat request failed: %s", cr.Error)
		}
		return &chat.ChatResult{
			Text:             cr.Message.Content,
			PromptTokens:     cr.PromptEvalCount,
			CompletionTokens: cr.EvalCount,
		}, nil
	}

	var text strings.Builder
	result := &chat.ChatResult{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var cr chatResponse
		if err := json.Unmarshal(line, &cr); err != nil {
			return nil, fmt.Errorf("decoding stream record: %w", err)
		}
		if cr.Error != "" {
			return nil, fmt.Errorf("chat request failed: %s", cr.Error)
		}
		if cr.Message.Content != "" {
			text.WriteString(cr.Message.Content)
			onDelta(cr.Message.Content)
		}
		if cr.Done {
			result.PromptTokens = cr.PromptEvalCount
			result.CompletionTokens = cr.EvalCount
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}
	result.Text = text.String()
	return result, nil
}

// Summarize implements the engine's summarization backend with one
// non-streaming chat request: a system instruction plus the digest.
func (c *Client) Summarize(ctx context.Context, model, instruction, digest string) (string, error) {
	res, err := c.Generate(ctx, chat.ChatRequest{
		Model: model,
		Messages: []chat.Message{
			chat.NewSystemMessage(instruction),
			chat.NewUserMessage(digest),
		},
	}, nil)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// ListModels returns the models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var out struct {
		Models []ModelInfo `json:"models"`
	}
	if err := c.get(ctx, "/api/tags", &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// Running returns the models currently loaded in memory.
func (c *Client) Running(ctx context.Context) ([]ModelInfo, error) {
	var out struct {
		Models []ModelInfo `json:"models"`
	}
	if err := c.get(ctx, "/api/ps", &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// Ping reports whether the server answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/version", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reaching %s: %w", c.host, err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	debug.Log("ollama: POST %s (%d bytes)", path, len(raw))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func toWire(msgs []chat.Message) []wireMessage {
	out := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		out[i] = wireMessage{Role: string(m.Role), Content: m.Content, Images: m.Attachments}
	}
	return out
}
