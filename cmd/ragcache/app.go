package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jonwraymond/ragcache/answer"
	"github.com/jonwraymond/ragcache/auth"
	"github.com/jonwraymond/ragcache/backend"
	"github.com/jonwraymond/ragcache/cache"
	"github.com/jonwraymond/ragcache/config"
	"github.com/jonwraymond/ragcache/convlog"
	"github.com/jonwraymond/ragcache/health"
	"github.com/jonwraymond/ragcache/observe"
)

const defaultConfigPath = "ragcache.yaml"

// loadConfig reads path. A missing default config file falls back to the
// built-in defaults; a missing explicit one is an error.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg, err := config.Load(ctx, path)
	if err == nil {
		return cfg, nil
	}
	if path != defaultConfigPath || !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg = config.Default()
	if err := cfg.ResolveSecrets(ctx); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is the wired object graph shared by serve and ask.
type app struct {
	cfg       *config.Config
	obs       observe.Observer
	logger    observe.Logger
	cache     *cache.LRU[answer.Entry]
	orch      *answer.Orchestrator
	history   *convlog.Store
	health    *health.Aggregator
	authn     auth.Authenticator
	generator *backend.ChatGenerator
	retriever *backend.ChromaRetriever
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	obs, err := observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	a := &app{cfg: cfg, obs: obs, logger: obs.Logger()}

	if err := a.wire(ctx); err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	mw, err := observe.MiddlewareFromObserver(a.obs)
	if err != nil {
		return fmt.Errorf("observe middleware: %w", err)
	}

	a.generator, err = backend.NewChatGenerator(cfg.Generator)
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	embedder, err := backend.NewEmbedder(cfg.Retriever.Embedder)
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	a.retriever, err = backend.NewChromaRetriever(cfg.Retriever.ChromaConfig, embedder)
	if err != nil {
		return fmt.Errorf("retriever: %w", err)
	}

	a.cache = answer.NewCache(cfg.Cache)
	a.orch, err = answer.New(a.retriever, a.generator, a.cache,
		answer.WithMiddleware(mw),
		answer.WithDefaultK(cfg.Answer.K),
		answer.WithCoalescing(cfg.Answer.Coalesce),
	)
	if err != nil {
		return err
	}

	if cfg.ConversationLog.Enabled {
		a.history, err = convlog.Open(cfg.ConversationLog.DBPath)
		if err != nil {
			return err
		}
	}

	a.health = health.NewAggregator(health.AggregatorConfig{})
	a.health.Register(health.NewCacheChecker(a.cache))
	a.health.Register(health.NewPingChecker("generator", a.generator.Ping, false))
	a.health.Register(health.NewPingChecker("retriever", a.retriever.Ping, true))

	a.authn = auth.New(auth.Config{
		APIKeys:   cfg.Auth.APIKeys,
		JWTSecret: cfg.Auth.JWTSecret,
		JWTIssuer: cfg.Auth.JWTIssuer,
	})

	a.logger.Debug(ctx, "wired",
		observe.F("generator", a.generator.Name()),
		observe.F("retriever", a.retriever.Name()),
		observe.F("cache_capacity", cfg.Cache.Capacity),
		observe.F("conversation_log", cfg.ConversationLog.Enabled),
	)
	return nil
}

// record writes an answered request to the conversation log, if enabled.
func (a *app) record(ctx context.Context, req answer.Request, res answer.Result, viaVoice bool) {
	if a.history == nil {
		return
	}
	e := convlog.FromResult(req, res)
	e.ViaVoice = viaVoice
	if _, err := a.history.Log(ctx, e); err != nil {
		a.logger.Warn(ctx, "conversation log write failed", observe.F("error", err.Error()))
	}
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.obs != nil {
		errs = append(errs, a.obs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
