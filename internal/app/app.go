// Package app assembles the brainstorming engine from configuration. Both
// binaries share it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/brainstorm/internal/brainstorm"
	"github.com/nidhogg/brainstorm/internal/config"
	"github.com/nidhogg/brainstorm/internal/embedding"
	"github.com/nidhogg/brainstorm/internal/generation"
	"github.com/nidhogg/brainstorm/internal/prompts"
	"github.com/nidhogg/brainstorm/internal/provider"
	"github.com/nidhogg/brainstorm/internal/registry"
	"github.com/nidhogg/brainstorm/internal/session"
	"github.com/nidhogg/brainstorm/internal/technique"
	"github.com/nidhogg/brainstorm/internal/vectorstore"
	"go.uber.org/zap"
)

// App owns the engine and the connections behind it.
type App struct {
	Engine  *brainstorm.Engine
	closers []func()
	logger  *zap.Logger
}

// New connects every backend named in cfg and builds the engine. Orphaned
// session collections left by an earlier process are swept before returning.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	router, err := newRouter(cfg, logger)
	if err != nil {
		return nil, err
	}
	gen := generation.New(router, generation.Config{
		Model:    cfg.Generation.Model,
		Attempts: cfg.Generation.Attempts,
	}, logger)

	embedder, err := embedding.New(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	vectors, err := a.newVectorStore(cfg)
	if err != nil {
		return nil, err
	}
	library, err := a.newLibrary(ctx, cfg, vectors)
	if err != nil {
		return nil, err
	}
	reg, err := a.newRegistry(cfg)
	if err != nil {
		return nil, err
	}
	set, err := prompts.Load(cfg.PromptsDir)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(session.Config{
		TTL:             cfg.Session.TTL(),
		CleanupInterval: cfg.Session.CleanupInterval(),
		MaxAssociations: cfg.Session.MaxAssociations,
	}, logger)

	a.Engine = brainstorm.NewEngine(brainstorm.Deps{
		Sessions:  sessions,
		Vectors:   vectors,
		Embedder:  embedder,
		Generator: gen,
		Library:   library,
		Registry:  reg,
		Prompts:   set,
	}, EngineConfig(cfg), logger)

	if n, err := a.Engine.SweepOrphans(ctx); err != nil {
		logger.Warn("orphan sweep failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("removed orphaned session indexes", zap.Int("count", n))
	}

	ok = true
	return a, nil
}

// EngineConfig maps the brainstorm section of cfg onto engine parameters.
func EngineConfig(cfg *config.Config) brainstorm.Config {
	b := cfg.Brainstorm
	return brainstorm.Config{
		Affirmative:            b.Affirmative,
		AssociationDeadline:    b.AssociationDeadline(),
		MinAssociations:        b.MinAssociations,
		MaxAssociations:        b.MaxAssociations,
		RequireMinAssociations: b.RequireMinAssociations,
		KeywordTopK:            b.KeywordTopK,
		TechniqueTopK:          b.TechniqueTopK,
		TechniqueExcerpt:       b.TechniqueExcerpt,
		EmbeddingDimension:     cfg.Embedding.Dimension,
	}
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newRouter(cfg *config.Config, logger *zap.Logger) (*provider.Router, error) {
	router := provider.NewRouter(logger)
	timeout := time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
	for _, pc := range cfg.Providers {
		provCfg := provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Extra: pc.Extra, Timeout: timeout,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			return nil, fmt.Errorf("provider %s: unknown type %q", pc.ID, pc.Type)
		}
	}
	if cfg.Generation.Provider != "" {
		if _, ok := router.GetProvider(cfg.Generation.Provider); !ok {
			return nil, fmt.Errorf("default provider %q is not configured", cfg.Generation.Provider)
		}
		router.SetDefault(cfg.Generation.Provider)
	}
	router.SetFallbacks(cfg.Generation.Fallbacks)
	return router, nil
}

func (a *App) newVectorStore(cfg *config.Config) (vectorstore.Store, error) {
	if cfg.VectorStore == "memory" {
		a.logger.Info("using in-process vector store")
		return vectorstore.NewMemory(), nil
	}
	q, err := vectorstore.NewQdrant(vectorstore.QdrantConfig{
		Host: cfg.Database.Qdrant.Host,
		Port: cfg.Database.Qdrant.Port,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { q.Close() })
	return q, nil
}

func (a *App) newLibrary(ctx context.Context, cfg *config.Config, vectors vectorstore.Store) (technique.Library, error) {
	tc := cfg.Technique
	switch tc.Backend {
	case "qdrant":
		return technique.NewQdrantLibrary(vectors, tc.Collection), nil
	case "postgres":
		if tc.Migrate {
			if cfg.Embedding.Dimension <= 0 {
				return nil, fmt.Errorf("technique migration needs embedding.dimension")
			}
			if err := technique.EnsureSchema(ctx, cfg.Database.Postgres.DSN, tc.Table, cfg.Embedding.Dimension); err != nil {
				return nil, err
			}
		}
		lib, err := technique.NewPostgresLibrary(ctx, cfg.Database.Postgres.DSN, tc.Table, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, lib.Close)
		return lib, nil
	default:
		a.logger.Info("technique library disabled")
		return technique.Empty{}, nil
	}
}

func (a *App) newRegistry(cfg *config.Config) (registry.Registry, error) {
	if cfg.Database.Redis.URL == "" {
		return registry.NewMemory(), nil
	}
	r, err := registry.NewRedis(cfg.Database.Redis.URL, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { r.Close() })
	return r, nil
}
