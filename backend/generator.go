package backend

import (
	"context"
	"net/http"
	"strings"

	"github.com/jonwraymond/ragcache/resilience"
)

// Groq defaults.
const (
	DefaultChatProvider = "groq"
	DefaultChatBaseURL  = "https://api.groq.com/openai/v1"
	DefaultChatModel    = "llama-3.1-8b-instant"
	DefaultMaxTokens    = 300
	DefaultTemperature  = 0.2
)

// ChatConfig configures an OpenAI-compatible chat completions endpoint.
type ChatConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	resilience.Policy `yaml:",inline"`
}

// DefaultChatConfig returns the Groq configuration without an API key.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		Provider:    DefaultChatProvider,
		BaseURL:     DefaultChatBaseURL,
		Model:       DefaultChatModel,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// ChatGenerator sends each prompt as a single user message.
type ChatGenerator struct {
	cfg    ChatConfig
	client *httpClient
}

// NewChatGenerator creates a generator. Provider defaults to "groq".
func NewChatGenerator(cfg ChatConfig, opts ...Option) (*ChatGenerator, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.Model == "" {
		return nil, ErrMissingModel
	}
	if cfg.Provider == "" {
		cfg.Provider = DefaultChatProvider
	}
	return &ChatGenerator{
		cfg:    cfg,
		client: newHTTPClient(cfg.Provider, cfg.BaseURL, bearer(cfg.APIKey), applyOptions(cfg.Policy, opts)),
	}, nil
}

// Name identifies the generator in telemetry.
func (g *ChatGenerator) Name() string { return g.cfg.Provider + ":" + g.cfg.Model }

// Executor exposes the guard around requests, e.g. for circuit state.
func (g *ChatGenerator) Executor() *resilience.Executor { return g.client.executor }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate returns the first choice's content.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model:       g.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}
	var resp chatResponse
	if err := g.client.call(ctx, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Ping lists models, which checks reachability and the API key.
func (g *ChatGenerator) Ping(ctx context.Context) error {
	return g.client.roundTrip(ctx, http.MethodGet, "/models", nil, nil)
}

func bearer(key string) http.Header {
	h := make(http.Header)
	if key != "" {
		h.Set("Authorization", "Bearer "+key)
	}
	return h
}
