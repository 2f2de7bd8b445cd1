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
	"go.uber.org/zap"

	"github.com/kestrelsearch/kestrel/internal/completion"
	"github.com/kestrelsearch/kestrel/internal/config"
	"github.com/kestrelsearch/kestrel/internal/index"
	indexRedis "github.com/kestrelsearch/kestrel/internal/index/redis"
	indexSqlite "github.com/kestrelsearch/kestrel/internal/index/sqlite"
	logpkg "github.com/kestrelsearch/kestrel/internal/logger"
	"github.com/kestrelsearch/kestrel/internal/metrics"
	"github.com/kestrelsearch/kestrel/internal/session"
	chiTransport "github.com/kestrelsearch/kestrel/internal/transport/chi"
	openaiExtract "github.com/kestrelsearch/kestrel/internal/transport/openai"
	searchuc "github.com/kestrelsearch/kestrel/internal/usecase/search"
	"github.com/kestrelsearch/kestrel/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting kestrel search daemon",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_driver", cfg.Index.Driver),
	)

	// Create index backend based on driver
	var ix index.Index
	switch cfg.Index.Driver {
	case "sqlite":
		ix, err = indexSqlite.Open(cfg.Index.Path)
	case "redis":
		ix, err = indexRedis.Open(indexRedis.Config{
			Addrs:    cfg.Index.Addrs,
			Password: cfg.Index.Password,
		})
	default:
		logger.Fatal("Unknown index driver", zap.String("driver", cfg.Index.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to open index", zap.Error(err))
	}
	defer ix.Close()

	// Wait for the index backend to be ready
	ctx := context.Background()
	if err := waitForIndex(ctx, ix, time.Duration(cfg.Index.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Index not ready", zap.Error(err))
	}
	logger.Info("Connected to index")

	// Register search metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	// Search service with optional natural-mode extractor
	searchOpts := []searchuc.Option{
		searchuc.WithFetchMultiplier(cfg.Index.FetchMultiplier),
		searchuc.WithBatchSize(cfg.Index.BatchSize),
	}
	if cfg.Extract.APIKey != "" {
		extractor := openaiExtract.NewExtractor(&openaiExtract.Config{
			APIKey:  cfg.Extract.APIKey,
			BaseURL: cfg.Extract.BaseURL,
			Model:   cfg.Extract.Model,
			Logger:  logger,
		})
		searchOpts = append(searchOpts, searchuc.WithExtractor(extractor))
		logger.Info("Keyword extractor enabled", zap.String("model", cfg.Extract.Model))
	}
	searchSvc := searchuc.New(ix, logger, searchOpts...)

	// Session table and completion engine
	sessions := session.NewManager(searchSvc, logger,
		session.WithIdleTimeout(time.Duration(cfg.Session.IdleTimeoutSec)*time.Second),
		session.WithWorkers(cfg.Session.Workers),
	)
	defer sessions.Close()

	cwd, err := os.Getwd()
	if err != nil {
		logger.Fatal("Failed to resolve working directory", zap.Error(err))
	}
	completions := completion.NewEngine(cwd, logger,
		completion.WithBatchSize(cfg.Completion.BatchSize),
	)

	server := chiTransport.NewServer(
		sessions, completions, ix,
		cfg.Index.DefaultPageSize, cfg.Index.MaxPageSize,
		logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

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

// waitForIndex pings the index until it answers or the timeout expires.
func waitForIndex(ctx context.Context, ix index.Index, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if lastErr = ix.Ping(ctx); lastErr == nil {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("index not ready after %s: %w", timeout, lastErr)
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

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
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
