// Package ollama is a vision client backed by an Ollama server. It is used
// to propose a box around the dominant object of an image.
package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/detection"
	"github.com/menta2k/image-annotator/pkg/types"
)

// DefaultTimeout applies when the caller's context has no deadline. Vision
// models on CPU are slow.
const DefaultTimeout = 5 * time.Minute

// Client wraps the Ollama API client.
type Client struct {
	api    *api.Client
	logger *zap.Logger
}

var _ client.VisionClient = (*Client)(nil)

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

// NewClient creates a client for the server at ollamaURL. Any path on the
// URL is ignored.
func NewClient(ollamaURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: scheme and host are required", ollamaURL)
	}

	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	c := &Client{
		api:    api.NewClient(base, http.DefaultClient),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SimpleQuery asks a free-form question about an image.
func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return c.chat(ctx, model, prompt, imgB64, nil)
}

// DetectObject asks the model for the dominant object and parses its JSON
// answer. Unparseable answers yield a low-confidence "none" detection rather
// than an error.
func (c *Client) DetectObject(ctx context.Context, model, prompt, imgB64 string) (*types.Detection, error) {
	content, err := c.chat(ctx, model, prompt, imgB64, modelOptions(model))
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}

	det, ok := detection.Parse(content)
	if !ok {
		c.logger.Warn("vision model returned unparseable detection",
			zap.String("model", model), zap.Int("length", len(content)))
	}
	return det, nil
}

func (c *Client) chat(ctx context.Context, model, prompt, imgB64 string, options map[string]any) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	img, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 image: %w", err)
	}

	stream := false
	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{{
			Role:    "user",
			Content: prompt,
			Images:  []api.ImageData{api.ImageData(img)},
		}},
		Stream:  &stream,
		Options: options,
	}

	start := time.Now()
	var content string
	err = c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	c.logger.Debug("ollama chat", zap.String("model", model), zap.Duration("took", time.Since(start)))
	return content, nil
}

// modelOptions tunes sampling for the MiniCPM-V 4.x family.
func modelOptions(model string) map[string]any {
	m := strings.ToLower(model)
	for _, family := range []string{"minicpm-v4", "minicpm-v-4", "minicpmv4"} {
		if strings.Contains(m, family) {
			return map[string]any{"temperature": 0.7, "top_p": 0.8, "num_ctx": 4096}
		}
	}
	return nil
}
