// Package llm talks to an OpenAI-compatible model provider for text
// generation and embeddings.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/pkg/retry"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
)

const (
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultSystemMessage  = "You are a professional content writer and researcher."

	rateLimitKey = "generation"
)

// Options tunes a single generation call. A nil Temperature means 0.7 and a
// zero MaxTokens means 2000.
type Options struct {
	Temperature   *float64
	MaxTokens     int
	SystemMessage string
}

// Temperature returns a pointer for Options.Temperature.
func Temperature(v float64) *float64 { return &v }

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Limiter throttles generation calls shared across processes.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Limit() int
}

// StatusError is a non-2xx reply from the provider.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: provider returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if repeated.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// ShouldRetry classifies provider errors for retry.Do: throttling, 5xx and
// transport failures are retried; 4xx and cancellation are not.
func ShouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var decodeErr *decodeError
	return !errors.As(err, &decodeErr)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// Client is an OpenAI-compatible HTTP client.
type Client struct {
	baseURL        string
	apiKey         string
	model          string
	embeddingModel string
	httpClient     *http.Client
	limiter        Limiter
	retry          retry.Config
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }
func WithModel(m string) Option            { return func(c *Client) { c.model = m } }
func WithEmbeddingModel(m string) Option   { return func(c *Client) { c.embeddingModel = m } }
func WithLimiter(l Limiter) Option         { return func(c *Client) { c.limiter = l } }
func WithRetry(cfg retry.Config) Option    { return func(c *Client) { c.retry = cfg } }
func WithLogger(l *slog.Logger) Option     { return func(c *Client) { c.logger = l } }

// NewClient creates a Client for the provider at baseURL
// (e.g. https://api.openai.com or a LocalAI address).
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		apiKey:         apiKey,
		model:          DefaultModel,
		embeddingModel: DefaultEmbeddingModel,
		httpClient:     &http.Client{Timeout: 120 * time.Second},
		retry:          retry.Config{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second},
		logger:         slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.ShouldRetry == nil {
		c.retry.ShouldRetry = ShouldRetry
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = func(attempt int, err error) {
			c.logger.Warn("model provider call failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
	}
	return c
}

// EmbeddingModel returns the model used by Embed.
func (c *Client) EmbeddingModel() string { return c.embeddingModel }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends one chat completion and returns the first choice's text.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	temperature := 0.7
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2000
	}
	if opts.SystemMessage == "" {
		opts.SystemMessage = DefaultSystemMessage
	}
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: opts.SystemMessage},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   opts.MaxTokens,
	}

	var text string
	err := retry.Do(ctx, c.retry, func() error {
		if err := c.throttle(ctx); err != nil {
			return err
		}
		var resp chatResponse
		if err := c.post(ctx, "generate", "/v1/chat/completions", body, &resp); err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return &decodeError{err: errors.New("generate: provider returned no choices")}
		}
		text = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		telemetry.LLMRequestsTotal.WithLabelValues("generate", "error").Inc()
		return "", err
	}
	telemetry.LLMRequestsTotal.WithLabelValues("generate", "ok").Inc()
	return text, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := retry.Do(ctx, c.retry, func() error {
		var resp embeddingResponse
		if err := c.post(ctx, "embed", "/v1/embeddings", embeddingRequest{Model: c.embeddingModel, Input: text}, &resp); err != nil {
			return err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return &decodeError{err: errors.New("embed: provider returned no embedding")}
		}
		vec = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		telemetry.LLMRequestsTotal.WithLabelValues("embed", "error").Inc()
		return nil, err
	}
	telemetry.LLMRequestsTotal.WithLabelValues("embed", "ok").Inc()
	return vec, nil
}

func (c *Client) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	ok, err := c.limiter.Allow(ctx, rateLimitKey)
	if err != nil {
		// An unreachable limiter must not stop generation.
		c.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		telemetry.LLMRateLimitedTotal.Inc()
		return &domain.RateLimitExceededError{Key: rateLimitKey, Limit: c.limiter.Limit()}
	}
	return nil
}

func (c *Client) post(ctx context.Context, op, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &decodeError{err: fmt.Errorf("%s: marshal request: %w", op, err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &decodeError{err: fmt.Errorf("%s: build request: %w", op, err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{err: fmt.Errorf("%s: decode response: %w", op, err)}
	}
	return nil
}
