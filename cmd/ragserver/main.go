package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ragserver/internal/api"
	"ragserver/internal/config"
	"ragserver/internal/rag/chunker"
	"ragserver/internal/rag/embedder"
	"ragserver/internal/rag/extractor"
	"ragserver/internal/rag/generator"
	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/pipeline"
	"ragserver/internal/rag/vectorindex"
	"ragserver/pkg/circuitbreaker"
	"ragserver/pkg/logger"
	"ragserver/pkg/ratelimiter"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging.Level)
	appLog := logger.New("ragserver")
	appLog.Info("starting rag server")

	ctx := context.Background()
	var closers []func()

	// Embedding.
	provider, closeProvider, err := buildEmbeddingProvider(ctx, cfg.Embedding)
	if err != nil {
		log.Fatalf("Failed to create embedding provider: %v", err)
	}
	if closeProvider != nil {
		closers = append(closers, closeProvider)
	}
	var breaker *circuitbreaker.Breaker
	if cfg.Embedding.CircuitBreaker.Enabled {
		breaker = circuitbreaker.New(
			cfg.Embedding.CircuitBreaker.FailureThreshold,
			cfg.Embedding.CircuitBreaker.SuccessThreshold,
			cfg.Embedding.CircuitBreaker.Cooldown.Std(),
		)
	}
	emb := embedder.New(provider, embedder.Options{
		BatchSize: cfg.Embedding.BatchSize,
		Timeout:   cfg.Embedding.Timeout.Std(),
		Retry: embedder.RetryPolicy{
			MaxAttempts: cfg.Embedding.Retry.MaxAttempts,
			BaseDelay:   cfg.Embedding.Retry.BaseDelay.Std(),
			MaxDelay:    cfg.Embedding.Retry.MaxDelay.Std(),
		},
		Breaker: breaker,
		Log:     logger.New("embedder"),
	})

	// Vector index.
	index, closeIndex, err := buildIndex(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create vector index: %v", err)
	}
	if closeIndex != nil {
		closers = append(closers, closeIndex)
	}

	// Generation.
	gen, closeGen, err := buildGenerator(ctx, cfg.Generation)
	if err != nil {
		log.Fatalf("Failed to create generator: %v", err)
	}
	if closeGen != nil {
		closers = append(closers, closeGen)
	}

	// Pipelines.
	chunk, err := chunker.NewRecursiveChunker(cfg.Ingestion.ChunkSize, *cfg.Ingestion.ChunkOverlap)
	if err != nil {
		log.Fatalf("Invalid chunking config: %v", err)
	}
	ingestor := pipeline.NewIngestor(extractor.NewRegistry(), chunk, emb, index,
		cfg.Ingestion.MaxDocumentBytes, logger.New("ingestion"))
	queries := pipeline.NewQueryService(emb, index,
		pipeline.NewPromptBuilder(cfg.Generation.MaxPromptChars), gen,
		cfg.Retrieval.TopK, cfg.Generation.Temperature, logger.New("query"))

	// HTTP.
	var limiter ratelimiter.RateLimiter
	if cfg.Server.RateLimit.Enabled {
		limiter = ratelimiter.NewTokenBucket(cfg.Server.RateLimit.Rate, cfg.Server.RateLimit.Capacity)
	}
	handler := api.NewHandler(ingestor, queries, index, cfg.Ingestion.MaxDocumentBytes, logger.New("api"))
	router := api.NewRouter(handler, limiter, logger.New("http"))

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout.Std(),
		// No write timeout: chat responses are long-lived SSE streams.
	}
	go func() {
		appLog.WithField("address", cfg.Server.Address).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Error("http server shutdown failed")
	}
	for _, closeFn := range closers {
		closeFn()
	}
	appLog.Info("stopped")
}

func buildEmbeddingProvider(ctx context.Context, cfg config.EmbeddingConfig) (embedder.Provider, func(), error) {
	switch cfg.Provider {
	case "gemini":
		p, err := embedder.NewGeminiProvider(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	case "openai":
		return embedder.NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil, nil
	case "ollama":
		p, err := embedder.NewOllamaProvider(cfg.Model, cfg.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func buildIndex(ctx context.Context, cfg *config.Config) (interfaces.VectorIndex, func(), error) {
	switch cfg.Index.Driver {
	case "milvus":
		m, err := vectorindex.NewMilvus(ctx, cfg.Index.Milvus.Address, cfg.Index.Milvus.Collection,
			cfg.Embedding.Dimension, logger.New("milvus"))
		if err != nil {
			return nil, nil, err
		}
		return m, func() { m.Close() }, nil
	case "memory":
		return vectorindex.NewMemory(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown index driver %q", cfg.Index.Driver)
	}
}

func buildGenerator(ctx context.Context, cfg config.GenerationConfig) (interfaces.Generator, func(), error) {
	switch cfg.Provider {
	case "gemini":
		g, err := generator.NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.Timeout.Std())
		if err != nil {
			return nil, nil, err
		}
		return g, func() { g.Close() }, nil
	case "openai":
		return generator.NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout.Std()), nil, nil
	case "ollama":
		g, err := generator.NewOllama(cfg.Model, cfg.BaseURL, cfg.Timeout.Std())
		if err != nil {
			return nil, nil, err
		}
		return g, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
