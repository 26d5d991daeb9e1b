// Package llamacpp is a vision client for a llama.cpp server's
// OpenAI-compatible chat completions endpoint.
package llamacpp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/detection"
	"github.com/menta2k/image-annotator/pkg/types"
)

// DefaultURL is used when no server URL is configured.
const DefaultURL = "http://localhost:8080"

const completionsPath = "/v1/chat/completions"

// Client talks to a llama.cpp server.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

var _ client.VisionClient = (*Client)(nil)

// Message is an OpenAI-compatible chat message. Content is a string or a
// list of parts.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one text or image part of a message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image as a data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// ChatCompletionRequest is the request body of a completion.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stream      bool      `json:"stream"`
}

// ChatCompletionResponse is the subset of the completion answer we read.
type ChatCompletionResponse struct {
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = resty.NewWithClient(hc).SetBaseURL(c.http.BaseURL)
		}
	}
}

// NewClient creates a client for the server at serverURL.
func NewClient(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(serverURL, "/")).
			SetTimeout(5 * time.Minute),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SimpleQuery asks a free-form question about an image.
func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return c.complete(ctx, model, prompt, imgB64, 2048, 0.9)
}

// DetectObject asks the model for the dominant object. Unparseable answers
// yield a "none" detection rather than an error.
func (c *Client) DetectObject(ctx context.Context, model, prompt, imgB64 string) (*types.Detection, error) {
	text, err := c.complete(ctx, model, prompt, imgB64, 4096, 0.8)
	if err != nil {
		return nil, err
	}
	det, ok := detection.Parse(text)
	if !ok {
		c.logger.Warn("vision model returned unparseable detection",
			zap.String("model", model), zap.Int("length", len(text)))
	}
	return det, nil
}

func (c *Client) complete(ctx context.Context, model, prompt, imgB64 string, maxTokens int, topP float64) (string, error) {
	parts := []ContentPart{{Type: "text", Text: prompt}}
	if imgB64 != "" {
		parts = append(parts, ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + imgB64},
		})
	}
	req := ChatCompletionRequest{
		Model:       model,
		Messages:    []Message{{Role: "user", Content: parts}},
		Temperature: 0.7,
		MaxTokens:   maxTokens,
		TopP:        topP,
	}

	var out ChatCompletionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(completionsPath)
	if err != nil {
		return "", fmt.Errorf("llama.cpp request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("llama.cpp server returned status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices in llama.cpp response")
	}

	text := messageText(out.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from llama.cpp server")
	}
	c.logger.Debug("llama.cpp completion", zap.String("model", model), zap.Duration("took", resp.Time()))
	return text, nil
}

// messageText extracts the first text from string or part-list content.
func messageText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if part, ok := item.(map[string]any); ok {
				if text, ok := part["text"].(string); ok && text != "" {
					return text
				}
			}
		}
	}
	return ""
}
