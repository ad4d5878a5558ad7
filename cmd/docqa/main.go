package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/app"
	"github.com/kailas-cloud/docqa/internal/config"
	logpkg "github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/metrics"
	chiTransport "github.com/kailas-cloud/docqa/internal/transport/chi"
	"github.com/kailas-cloud/docqa/internal/version"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "docqa:", err)
		os.Exit(1)
	}
}

func run() error {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.New(env, logpkg.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docqa API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("vector_index", cfg.VectorIndex.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_model", cfg.Generation.Model),
		zap.Bool("auth_enabled", authEnabled(cfg.Auth.APIKeys)),
	)

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, env, &cfg, logger)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: chiTransport.NewRouter(
			chiTransport.NewServer(application.QA, application.Health, cfg.HTTP.MaxQuestions, logger),
			chiTransport.RouterConfig{
				APIKeys:     cfg.Auth.APIKeys,
				Logger:      logger,
				Middlewares: []func(http.Handler) http.Handler{metrics.Middleware},
			},
		),
		ReadTimeout:  cfg.HTTP.ReadTimeout(),
		WriteTimeout: cfg.HTTP.WriteTimeout(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("addr", srv.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout())
	defer cancel()

	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("Error during shutdown", zap.Error(serr))
	}
	if cerr := application.Close(shutdownCtx); cerr != nil {
		logger.Error("Error closing backends", zap.Error(cerr))
	}
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func authEnabled(keys []string) bool {
	for _, k := range keys {
		if k != "" {
			return true
		}
	}
	return false
}
