package backend

import (
	"context"
	"net/http"

	"github.com/jonwraymond/ragcache/resilience"
)

// Embedding defaults target a local OpenAI-compatible server running
// the all-MiniLM-L6-v2 family.
const (
	DefaultEmbedBaseURL = "http://localhost:11434/v1"
	DefaultEmbedModel   = "all-minilm"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedConfig configures an OpenAI-compatible /embeddings endpoint.
type EmbedConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`

	resilience.Policy `yaml:",inline"`
}

// HTTPEmbedder calls POST /embeddings.
type HTTPEmbedder struct {
	model  string
	client *httpClient
}

// NewEmbedder creates an embedder.
func NewEmbedder(cfg EmbedConfig, opts ...Option) (*HTTPEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.Model == "" {
		return nil, ErrMissingModel
	}
	return &HTTPEmbedder{
		model:  cfg.Model,
		client: newHTTPClient("embedder", cfg.BaseURL, bearer(cfg.APIKey), applyOptions(cfg.Policy, opts)),
	}, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding of text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	req := embedRequest{Model: e.model, Input: []string{text}}
	if err := e.client.call(ctx, http.MethodPost, "/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrNoEmbedding
	}
	return resp.Data[0].Embedding, nil
}
