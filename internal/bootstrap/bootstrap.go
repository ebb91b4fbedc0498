// Package bootstrap wires configuration, adapters and the ask pipeline
// into a runnable application.
package bootstrap

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/civicdocs/policy-assistant/internal/config"
	"github.com/civicdocs/policy-assistant/internal/core/ports"
	"github.com/civicdocs/policy-assistant/internal/core/usecase"
	"github.com/civicdocs/policy-assistant/internal/infrastructure/encoding"
	natsevents "github.com/civicdocs/policy-assistant/internal/infrastructure/events/nats"
	"github.com/civicdocs/policy-assistant/internal/infrastructure/llm/ollama"
	"github.com/civicdocs/policy-assistant/internal/infrastructure/resilience"
	"github.com/civicdocs/policy-assistant/internal/infrastructure/threads/memory"
	threadpg "github.com/civicdocs/policy-assistant/internal/infrastructure/threads/postgres"
	threadredis "github.com/civicdocs/policy-assistant/internal/infrastructure/threads/redis"
	"github.com/civicdocs/policy-assistant/internal/infrastructure/vector/qdrant"
	"github.com/civicdocs/policy-assistant/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Ask     ports.AskService
	Metrics *metrics.PipelineMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	closers := make([]func(), 0, 2)

	threads, err := newThreadStore(ctx, cfg, &closers)
	if err != nil {
		return nil, err
	}

	var events ports.AnswerEventPublisher
	if cfg.NATSEnabled {
		publisher, err := natsevents.New(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, fmt.Errorf("init answer events: %w", err)
		}
		closers = append(closers, publisher.Close)
		events = publisher
	}

	pipelineMetrics := metrics.NewPipelineMetrics("api")

	retry := newRetryFunc(cfg)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
	embedder := ollama.NewEmbedder(ollamaClient)
	judge := ollama.NewJudge(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	rewriter := ollama.NewRewriter(ollamaClient)

	encoder := encoding.NewSparseEncoder(cfg.SparseVocabularySize)
	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	retriever := usecase.NewHybridRetriever(embedder, encoder, vectorDB, retry, pipelineMetrics, usecase.RetrieverConfig{
		CandidateMultiplier:    cfg.CandidateMultiplier,
		RRFK:                   cfg.FusionRRFK,
		MinFusedScore:          cfg.MinFusedScore,
		FallbackScoreThreshold: cfg.FallbackScoreThreshold,
	})
	reranker := usecase.NewAdaptiveReranker(judge, usecase.RerankConfig{
		MinScore:         cfg.RerankMinScore,
		MinTopK:          cfg.RerankMinTopK,
		PreferredTopK:    cfg.RerankPreferredTopK,
		MaxTopK:          cfg.RerankMaxTopK,
		ExcellentScore:   cfg.RerankExcellentScore,
		HighQualityScore: cfg.RerankHighQualityScore,
	})
	reformulator := usecase.NewQueryReformulator(rewriter, usecase.ReformulatorConfig{
		HistoryWindow:    cfg.ReformulateHistoryWindow,
		MaxAnswerChars:   cfg.ReformulateMaxAnswerChars,
		ShortQueryTokens: cfg.ReformulateShortQueryTokens,
	})

	pipeline := usecase.NewPipeline(
		retriever,
		reranker,
		reformulator,
		judge,
		generator,
		threads,
		events,
		pipelineMetrics,
		usecase.PipelineConfig{RetrieveTopK: cfg.RetrieveTopK},
	)

	return &App{
		Config:  cfg,
		Ask:     pipeline,
		Metrics: pipelineMetrics,
		closeFn: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

// newRetryFunc adapts the resilience executor to the retriever's retry
// contract, keeping the breaker defaults intact.
func newRetryFunc(cfg config.Config) usecase.RetryFunc {
	executorCfg := resilience.DefaultConfig()
	// Attempts include the initial call, so retries = MaxRetries.
	executorCfg.RetryMaxAttempts = cfg.MaxRetries + 1
	executor := resilience.NewExecutor(executorCfg)

	return func(ctx context.Context, operation string, fn func(context.Context) error, retryable func(error) bool) error {
		return executor.Execute(ctx, operation, fn, func(err error) resilience.ErrorClassification {
			return resilience.ErrorClassification{
				Retryable:     retryable(err),
				RecordFailure: true,
			}
		})
	}
}

func newThreadStore(ctx context.Context, cfg config.Config, closers *[]func()) (ports.ThreadStore, error) {
	switch cfg.ThreadStoreBackend {
	case "", "memory":
		return memory.NewStore(), nil
	case "postgres":
		db, err := threadpg.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		*closers = append(*closers, func() { _ = db.Close() })
		store := threadpg.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure thread schema: %w", err)
		}
		return store, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		*closers = append(*closers, func() { _ = client.Close() })
		return threadredis.NewStore(client), nil
	default:
		return nil, fmt.Errorf("unknown thread store backend %q", cfg.ThreadStoreBackend)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
