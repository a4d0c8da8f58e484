// Package config loads the ragcache YAML configuration file.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/ragcache/answer"
	"github.com/jonwraymond/ragcache/backend"
	"github.com/jonwraymond/ragcache/cache"
	"github.com/jonwraymond/ragcache/observe"
	"github.com/jonwraymond/ragcache/secret"
)

// ServiceName is the default observe service name.
const ServiceName = "ragcache"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config holds all ragcache configuration.
type Config struct {
	Listen          string                `yaml:"listen"`
	Cache           cache.Policy          `yaml:"cache"`
	Answer          AnswerConfig          `yaml:"answer"`
	Generator       backend.ChatConfig    `yaml:"generator"`
	Retriever       RetrieverConfig       `yaml:"retriever"`
	ConversationLog ConversationLogConfig `yaml:"conversation_log"`
	Auth            AuthConfig            `yaml:"auth"`
	Observe         observe.Config        `yaml:"observe"`
	Secrets         SecretsConfig         `yaml:"secrets"`
}

// AnswerConfig tunes the orchestrator.
type AnswerConfig struct {
	K int `yaml:"k"`
	// Coalesce shares one generation among concurrent identical misses.
	Coalesce bool `yaml:"coalesce"`
}

// RetrieverConfig is the Chroma store plus the embedder used for queries.
type RetrieverConfig struct {
	backend.ChromaConfig `yaml:",inline"`
	Embedder             backend.EmbedConfig `yaml:"embedder"`
}

// ConversationLogConfig controls the SQLite conversation log.
type ConversationLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// AuthConfig protects the HTTP API. Empty means no authentication.
type AuthConfig struct {
	APIKeys   []string `yaml:"api_keys"`
	JWTSecret string   `yaml:"jwt_secret"`
	JWTIssuer string   `yaml:"jwt_issuer"`
}

// Enabled reports whether any authenticator is configured.
func (a AuthConfig) Enabled() bool {
	return len(a.APIKeys) > 0 || a.JWTSecret != ""
}

// SecretsConfig selects the providers behind secretref: values.
// The env provider is always available.
type SecretsConfig struct {
	Strict    bool                      `yaml:"strict"`
	Providers map[string]map[string]any `yaml:"providers"`
}

// Default returns a Config with the Groq generator, a local Chroma server
// and the default cache policy. API keys are read from the environment.
func Default() *Config {
	gen := backend.DefaultChatConfig()
	gen.APIKey = "${GROQ_API_KEY}"

	return &Config{
		Listen:    ":8080",
		Cache:     cache.DefaultPolicy(),
		Answer:    AnswerConfig{K: answer.DefaultK},
		Generator: gen,
		Retriever: RetrieverConfig{
			ChromaConfig: backend.ChromaConfig{
				BaseURL:    backend.DefaultChromaBaseURL,
				Tenant:     backend.DefaultChromaTenant,
				Database:   backend.DefaultChromaDatabase,
				Collection: backend.DefaultChromaCollection,
			},
			Embedder: backend.EmbedConfig{
				BaseURL: backend.DefaultEmbedBaseURL,
				Model:   backend.DefaultEmbedModel,
			},
		},
		ConversationLog: ConversationLogConfig{Enabled: true, DBPath: "conversation_logs.db"},
		Observe:         observe.DefaultConfig(ServiceName),
		Secrets:         SecretsConfig{Strict: true},
	}
}

// Load reads a YAML file over Default, resolves secret fields and validates.
func Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolveSecrets(ctx); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over Default without resolving secrets.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ResolveSecrets expands ${VAR} and secretref: values in credential and
// endpoint fields. Other fields are taken literally.
func (c *Config) ResolveSecrets(ctx context.Context) error {
	r, err := secret.DefaultRegistry.NewResolverFromConfig(c.Secrets.Strict, c.Secrets.Providers)
	if err != nil {
		return fmt.Errorf("config secrets: %w", err)
	}
	defer r.Close()

	targets := []*string{
		&c.Generator.APIKey,
		&c.Generator.BaseURL,
		&c.Retriever.Token,
		&c.Retriever.BaseURL,
		&c.Retriever.Embedder.APIKey,
		&c.Retriever.Embedder.BaseURL,
		&c.Auth.JWTSecret,
	}
	for i := range c.Auth.APIKeys {
		targets = append(targets, &c.Auth.APIKeys[i])
	}
	if err := r.ResolveInPlace(ctx, targets...); err != nil {
		return fmt.Errorf("config secrets: %w", err)
	}
	return nil
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen is required", ErrInvalid)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Answer.K < 0 {
		return fmt.Errorf("%w: answer.k must not be negative", ErrInvalid)
	}
	if c.Generator.BaseURL == "" || c.Generator.Model == "" {
		return fmt.Errorf("%w: generator base_url and model are required", ErrInvalid)
	}
	if c.Generator.MaxTokens < 0 {
		return fmt.Errorf("%w: generator.max_tokens must not be negative", ErrInvalid)
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return fmt.Errorf("%w: generator.temperature must be within [0, 2]", ErrInvalid)
	}
	if c.Retriever.BaseURL == "" || c.Retriever.Collection == "" {
		return fmt.Errorf("%w: retriever base_url and collection are required", ErrInvalid)
	}
	if c.Retriever.Embedder.BaseURL == "" || c.Retriever.Embedder.Model == "" {
		return fmt.Errorf("%w: retriever.embedder base_url and model are required", ErrInvalid)
	}
	if c.ConversationLog.Enabled && c.ConversationLog.DBPath == "" {
		return fmt.Errorf("%w: conversation_log.db_path is required when enabled", ErrInvalid)
	}
	if err := c.Observe.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
