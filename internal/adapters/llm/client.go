// Package llm is a quiz.Generator backed by an OpenAI-compatible
// chat-completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/tutor/internal/domain/quiz"
	"github.com/okian/tutor/pkg/logger"
)

const (
	defaultModel       = "deepseek-chat"
	defaultTemperature = 0.5
	maxBodyBytes       = 1 << 20
	systemPrompt       = "You are an expert tutor who writes short multiple-choice review questions."
)

// Client calls {baseURL}/chat/completions.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	http        *http.Client
	log         logger.Logger
}

var _ quiz.Generator = (*Client)(nil)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// New creates a client for baseURL, e.g. "https://api.deepseek.com/v1".
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	c := &Client{
		baseURL:     baseURL,
		model:       defaultModel,
		temperature: defaultTemperature,
		http:        &http.Client{Timeout: 30 * time.Second},
		log:         logger.Get().Named("llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate asks the model for a quiz. Transport and HTTP failures are
// errors; a reply that does not decode into valid content is Malformed.
func (c *Client) Generate(ctx context.Context, label, difficulty, notes string) (quiz.Result, error) {
	raw, err := c.complete(ctx, quiz.Prompt(label, difficulty, notes))
	if err != nil {
		return quiz.Result{}, err
	}
	return Parse(raw), nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    c.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn(ctx, "chat completion rejected",
			logger.Int("status", resp.StatusCode),
			logger.String("model", c.model))
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrUpstream, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrUpstream)
	}
	return out.Choices[0].Message.Content, nil
}

// Parse decodes model output into a tagged quiz result. It tolerates
// markdown code fences and prose around a single JSON object.
func Parse(raw string) quiz.Result {
	text := stripFences(raw)
	var c quiz.Content
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return quiz.Malformed("reply is not JSON")
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &c); err != nil {
			return quiz.Malformed("reply is not JSON: " + err.Error())
		}
	}
	return quiz.Check(c)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
