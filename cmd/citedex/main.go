package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/citedex/internal/chunker"
	"github.com/kailas-cloud/citedex/internal/config"
	"github.com/kailas-cloud/citedex/internal/db"
	chromemdb "github.com/kailas-cloud/citedex/internal/db/chromem"
	redisdb "github.com/kailas-cloud/citedex/internal/db/redis"
	"github.com/kailas-cloud/citedex/internal/domain"
	logpkg "github.com/kailas-cloud/citedex/internal/logger"
	"github.com/kailas-cloud/citedex/internal/metrics"
	"github.com/kailas-cloud/citedex/internal/repository/chunkindex"
	"github.com/kailas-cloud/citedex/internal/repository/document"
	"github.com/kailas-cloud/citedex/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/citedex/internal/transport/chi"
	ollamaGen "github.com/kailas-cloud/citedex/internal/transport/ollama"
	openaiTransport "github.com/kailas-cloud/citedex/internal/transport/openai"
	answeruc "github.com/kailas-cloud/citedex/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/citedex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/citedex/internal/usecase/ingest"
	marketuc "github.com/kailas-cloud/citedex/internal/usecase/market"
	retrieveuc "github.com/kailas-cloud/citedex/internal/usecase/retrieve"
	"github.com/kailas-cloud/citedex/internal/version"
)

func main() {
	env := config.GetEnv()
	cfg := config.MustLoad(env)

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting citedex",
		zap.String("env", env),
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("store", cfg.Store.Driver),
		zap.String("generation", cfg.Generation.Provider),
	)

	metrics.RegisterModelMetrics()
	metrics.RegisterPipelineMetrics()

	store, err := buildStore(cfg.Store)
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}
	defer store.Close()

	readyCtx, readyCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Store.ReadinessTimeout)*time.Second)
	if err := store.WaitForReady(readyCtx, time.Duration(cfg.Store.ReadinessTimeout)*time.Second); err != nil {
		readyCancel()
		logger.Fatal("Store not ready", zap.Error(err))
	}
	readyCancel()

	// Repositories
	indexRepo := chunkindex.New(store)
	docRepo := document.New(store)

	if err := indexRepo.EnsureReady(context.Background(), cfg.Embedding.Dimensions); err != nil {
		logger.Fatal("Failed to prepare vector index", zap.Error(err))
	}

	// Embedder decorator chains: documents and queries may carry different
	// instruction prefixes, the cache sits below the instruction layer so the
	// key includes the prefix.
	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	docEmbedder := buildEmbedder(baseEmbedder, cfg.Embedding.DocumentInstruction, cfg.Embedding.CacheEnabled, store, logger)
	queryEmbedder := buildEmbedder(baseEmbedder, cfg.Embedding.QueryInstruction, cfg.Embedding.CacheEnabled, store, logger)

	generator, err := buildGenerator(cfg.Generation, logger)
	if err != nil {
		logger.Fatal("Failed to create generator", zap.Error(err))
	}

	// Services
	ch, err := chunker.New(cfg.Chunking.SizeWords, cfg.Chunking.OverlapWords)
	if err != nil {
		logger.Fatal("Invalid chunking config", zap.Error(err))
	}
	ingestSvc := ingestuc.New(ch, asBatchEmbedder(docEmbedder), indexRepo, docRepo, logger)
	retrieveSvc := retrieveuc.New(queryEmbedder, indexRepo, cfg.Retrieval, logger)

	var enricher answerEnricher
	if cfg.Market.Enabled {
		enricher = marketuc.New(cfg.Market, logger)
	}
	askSvc := answeruc.New(retrieveSvc, generator, enricher, cfg.Retrieval, logger)

	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(baseEmbedder))

	server := chiTransport.NewServer(askSvc, ingestSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func buildStore(cfg config.StoreConfig) (db.Store, error) {
	switch cfg.Driver {
	case "redis":
		return redisdb.NewStore(redisdb.Config{
			Addrs:     cfg.Addrs,
			Password:  cfg.Password,
			KeyPrefix: cfg.KeyPrefix,
		})
	case "chromem":
		return chromemdb.NewStore(chromemdb.Config{Path: cfg.Path})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction.
func buildEmbedder(
	base domain.Embedder,
	instruction string,
	cacheEnabled bool,
	store db.Store,
	logger *zap.Logger,
) domain.Embedder {
	embedder := base
	if cacheEnabled && store != nil {
		embedder = embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
	}
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

func buildGenerator(cfg config.GenerationConfig, logger *zap.Logger) (domain.Generator, error) {
	switch cfg.Provider {
	case "api":
		return openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Logger:      logger,
		}), nil
	case "ollama":
		return ollamaGen.NewGenerator(&ollamaGen.Config{
			ServerURL:   cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Logger:      logger,
		})
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

// answerEnricher mirrors the answer service's optional enricher dependency.
type answerEnricher interface {
	Block(ctx context.Context, question string) (string, bool)
}

// batchEmbedAdapter upgrades a plain Embedder with the per-text fallback.
type batchEmbedAdapter struct {
	domain.Embedder
}

func (a batchEmbedAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchFallback(ctx, a.Embedder, texts)
}

func asBatchEmbedder(e domain.Embedder) domain.BatchEmbedder {
	if be, ok := e.(domain.BatchEmbedder); ok {
		return be
	}
	return batchEmbedAdapter{e}
}

// embeddingHealthChecker wraps domain.Embedder to implement the health check contract.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
