// Package wiring builds the object graph shared by the services: stores,
// adapters, capabilities and the workflow engine, each constructed once and
// injected.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ramiqadoumi/go-content-flow/internal/agents"
	"github.com/ramiqadoumi/go-content-flow/internal/kafka"
	"github.com/ramiqadoumi/go-content-flow/internal/llm"
	"github.com/ramiqadoumi/go-content-flow/internal/postgres"
	"github.com/ramiqadoumi/go-content-flow/internal/rag"
	redisstore "github.com/ramiqadoumi/go-content-flow/internal/redis"
	"github.com/ramiqadoumi/go-content-flow/internal/sources"
	"github.com/ramiqadoumi/go-content-flow/internal/sqlite"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
	"github.com/ramiqadoumi/go-content-flow/internal/vector"
	"github.com/ramiqadoumi/go-content-flow/internal/workflow"
)

// App is the fully wired platform.
type App struct {
	Store    store.Store
	Redis    *goredis.Client // nil when redis_addr is empty
	Producer kafka.Producer  // nil when kafka_brokers is empty

	RAG          *rag.Engine
	Knowledge    *rag.KnowledgeBase
	Capabilities *agents.Registry
	Orchestrator *workflow.Orchestrator
	Batch        *workflow.BatchRunner
	Drainer      *workflow.Drainer
	Admin        *workflow.Admin

	pingers []func(context.Context) error
	closers []func() error
}

// Build connects to every configured backend and wires the engine. On error
// anything already opened is closed.
func Build(ctx context.Context, cfg Config, logger *slog.Logger) (_ *App, err error) {
	app := &App{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if app.Store, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.Store.Close)
	app.pingers = append(app.pingers, app.Store.Ping)

	llmOpts := []llm.Option{
		llm.WithModel(cfg.LLMModel),
		llm.WithEmbeddingModel(cfg.EmbeddingModel),
		llm.WithLogger(logger),
	}
	if cfg.RedisAddr != "" {
		app.Redis = redisstore.NewClient(cfg.RedisAddr)
		app.closers = append(app.closers, app.Redis.Close)
		app.pingers = append(app.pingers, func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() })
		if cfg.GenerationRateLimit > 0 {
			llmOpts = append(llmOpts, llm.WithLimiter(redisstore.NewRateLimiter(app.Redis, cfg.GenerationRateLimit, time.Minute)))
		}
	}
	client := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, llmOpts...)

	var embedder llm.Embedder = client
	if app.Redis != nil {
		cache := redisstore.NewEmbeddingCache(app.Redis, cfg.EmbeddingCacheTTL)
		embedder = llm.NewCachedEmbedder(client, cache, client.EmbeddingModel(), logger)
	}

	index, err := openIndex(cfg, logger)
	if err != nil {
		return nil, err
	}
	if q, ok := index.(*vector.Qdrant); ok {
		app.closers = append(app.closers, q.Close)
		app.pingers = append(app.pingers, q.Ping)
	}

	app.RAG = rag.NewEngine(embedder, client, index, rag.NewStoreResolver(app.Store), rag.WithLogger(logger))
	app.Knowledge = rag.NewKnowledgeBase(app.Store, app.RAG)

	srcOpts := []sources.Option{sources.WithLogger(logger)}
	if len(cfg.RSSFeeds) > 0 {
		srcOpts = append(srcOpts, sources.WithFeeds(cfg.RSSFeeds))
	}
	src := sources.NewService(cfg.SearxngURL, srcOpts...)

	capOpts := []agents.Option{agents.WithLogger(logger)}
	app.Capabilities = agents.NewRegistry()
	app.Capabilities.Register(agents.NewResearch(src, client, app.Store, app.RAG, capOpts...))
	app.Capabilities.Register(agents.NewWriter(client, app.Store, app.RAG, capOpts...))
	app.Capabilities.Register(agents.NewReview(client, app.Store, capOpts...))
	app.Capabilities.Register(agents.NewPublish(app.Store, cfg.PublishWebhookURL, capOpts...))
	app.Capabilities.Register(agents.NewAggregate(src, app.Store, capOpts...))

	wfOpts := []workflow.Option{workflow.WithLogger(logger)}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		app.Producer = kafka.NewProducer(brokers)
		app.closers = append(app.closers, app.Producer.Close)
		wfOpts = append(wfOpts, workflow.WithEvents(kafka.NewEventPublisher(app.Producer)))
	}

	app.Orchestrator = workflow.NewOrchestrator(app.Store, app.Capabilities, wfOpts...)
	app.Batch = workflow.NewBatchRunner(app.Orchestrator,
		workflow.WithBatchDelay(cfg.BatchDelay),
		workflow.WithBatchLogger(logger),
	)
	app.Admin = workflow.NewAdmin(app.Store, wfOpts...)

	drainOpts := wfOpts
	if app.Redis != nil && cfg.TaskLease > 0 {
		drainOpts = append(drainOpts[:len(drainOpts):len(drainOpts)],
			workflow.WithTaskLease(redisstore.NewLeaser(app.Redis, "contentflow:task-lease", cfg.TaskLease)))
	}
	app.Drainer = workflow.NewDrainer(app.Store, app.Capabilities, drainOpts...)

	return app, nil
}

func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "postgres", "":
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return postgres.NewStore(pool), nil
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store_driver %q", cfg.StoreDriver)
	}
}

func openIndex(cfg Config, logger *slog.Logger) (rag.RetrievalIndex, error) {
	switch cfg.VectorDriver {
	case "qdrant", "":
		return vector.NewQdrant(vector.QdrantConfig{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
		}, logger)
	case "memory":
		return vector.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown vector_driver %q", cfg.VectorDriver)
	}
}

// Ready checks every backend that supports a health check.
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	for _, ping := range a.pingers {
		if err := ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
