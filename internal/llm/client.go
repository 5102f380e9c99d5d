// Package llm reads NF-e data from DANFE text and images through an
// OpenAI-compatible chat completions API.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

const (
	DefaultBaseURL    = "https://openrouter.ai/api/v1"
	DefaultTimeout    = 120 * time.Second
	DefaultMaxRetries = 2
)

// Models known to read DANFE layouts reliably
const (
	ModelClaude35Sonnet = "anthropic/claude-3.5-sonnet"
	ModelClaude3Haiku   = "anthropic/claude-3-haiku"
	ModelGPT4oMini      = "openai/gpt-4o-mini"
	ModelGPT4o          = "openai/gpt-4o"
	ModelGeminiFlash    = "google/gemini-flash-1.5"
)

// Answers are JSON documents of one invoice; low temperature keeps numbers
// copied rather than paraphrased
const (
	maxTokens   = 4096
	temperature = 0.1
)

// Chatter is the subset of Client used by Extractor
type Chatter interface {
	ChatText(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
	ChatWithImage(ctx context.Context, model, systemPrompt, userPrompt string, imageData []byte, mimeType string) (string, error)
}

// Client talks to an OpenAI-compatible API such as OpenRouter
type Client struct {
	client       openai.Client
	defaultModel string
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

type clientConfig struct {
	baseURL      string
	timeout      time.Duration
	maxRetries   int
	defaultModel string
	httpClient   *http.Client
}

// WithBaseURL sets a custom base URL
func WithBaseURL(url string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.baseURL = url
	}
}

// WithTimeout sets custom HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.timeout = timeout
	}
}

// WithMaxRetries sets how often a failed request is retried
func WithMaxRetries(n int) ClientOption {
	return func(cfg *clientConfig) {
		cfg.maxRetries = n
	}
}

// WithDefaultModel sets the model used when a call names none
func WithDefaultModel(model string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.defaultModel = model
	}
}

// WithHTTPClient replaces the HTTP client; its Timeout wins over WithTimeout
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cfg *clientConfig) {
		cfg.httpClient = c
	}
}

// NewClient creates a new OpenAI-compatible client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	cfg := &clientConfig{
		baseURL:      DefaultBaseURL,
		timeout:      DefaultTimeout,
		maxRetries:   DefaultMaxRetries,
		defaultModel: ModelClaude35Sonnet,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: cfg.timeout}
	}

	return &Client{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(cfg.baseURL),
			option.WithHTTPClient(cfg.httpClient),
			option.WithMaxRetries(cfg.maxRetries),
			// OpenRouter attribution headers; other providers ignore them
			option.WithHeader("HTTP-Referer", "https://github.com/rezonia/nfe-entry"),
			option.WithHeader("X-Title", "NF-e Entry"),
		),
		defaultModel: cfg.defaultModel,
	}
}

// ChatText sends a text-only prompt and returns the answer
func (c *Client) ChatText(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, model, systemPrompt, openai.UserMessage(userPrompt))
}

// ChatWithImage sends a prompt together with an image as a data URL
func (c *Client) ChatWithImage(ctx context.Context, model, systemPrompt, userPrompt string, imageData []byte, mimeType string) (string, error) {
	if len(imageData) == 0 {
		return "", errors.New("empty image")
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(imageData)

	return c.complete(ctx, model, systemPrompt, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(userPrompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
	}))
}

func (c *Client) complete(ctx context.Context, model, systemPrompt string, user openai.ChatCompletionMessageParamUnion) (string, error) {
	if model == "" {
		model = c.defaultModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, user)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       model,
		Messages:    messages,
		MaxTokens:   param.NewOpt[int64](maxTokens),
		Temperature: param.NewOpt(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Model is a model advertised by the provider's /models endpoint
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
	Created int64  `json:"created"`
}

// ListModels queries the /models endpoint of the configured provider
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models failed: %w", err)
	}

	models := make([]Model, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, Model{ID: m.ID, OwnedBy: m.OwnedBy, Created: m.Created})
	}
	return models, nil
}

// InferProvider guesses the provider from a model ID
func InferProvider(modelID string) string {
	modelID = strings.ToLower(modelID)
	if i := strings.Index(modelID, "/"); i > 0 {
		return modelID[:i]
	}

	switch {
	case strings.Contains(modelID, "claude"):
		return "anthropic"
	case strings.Contains(modelID, "gpt"), strings.HasPrefix(modelID, "o1"), strings.HasPrefix(modelID, "o3"):
		return "openai"
	case strings.Contains(modelID, "gemini"):
		return "google"
	case strings.Contains(modelID, "llama"):
		return "meta"
	case strings.Contains(modelID, "mistral"), strings.Contains(modelID, "mixtral"):
		return "mistral"
	case strings.Contains(modelID, "qwen"):
		return "alibaba"
	case strings.Contains(modelID, "deepseek"):
		return "deepseek"
	}
	return "-"
}

// ExtractJSON returns the JSON document inside an LLM answer. A fenced code
// block wins; otherwise the text from the first opening brace or bracket to
// the last closing one is returned. Answers without either come back trimmed.
func ExtractJSON(response string) string {
	if block, ok := fencedBlock(response); ok {
		return block
	}

	response = strings.TrimSpace(response)
	start := strings.IndexAny(response, "{[")
	end := strings.LastIndexAny(response, "}]")
	if start < 0 || end < start {
		return response
	}
	return response[start : end+1]
}

// fencedBlock returns the body of the first ``` block, dropping the language
// tag on the opening fence
func fencedBlock(s string) (string, bool) {
	_, rest, ok := strings.Cut(s, "```")
	if !ok {
		return "", false
	}
	body, _, ok := strings.Cut(rest, "```")
	if !ok {
		return "", false
	}
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	return strings.TrimSpace(body), true
}
