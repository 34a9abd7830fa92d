package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bargain-engine/internal/api"
	"bargain-engine/internal/config"
	"bargain-engine/internal/dialogue"
	"bargain-engine/internal/logger"
	"bargain-engine/internal/metrics"
	"bargain-engine/internal/negotiation"
	"bargain-engine/internal/store"
)

var version = "dev"

const (
	connectRetries  = 5
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	port := flag.Int("port", 8000, "HTTP server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("bargain engine starting",
		zap.String("version", version),
		zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := store.ConnectCache(ctx, cfg.RedisURL, connectRetries, log.Named("cache"))
	if err != nil {
		log.Fatal("cache connect failed", zap.Error(err))
	}
	defer cache.Close()

	records, err := store.ConnectRecords(ctx, cfg.MongoDBURL, cfg.MongoDBName, connectRetries, log.Named("records"))
	if err != nil {
		log.Fatal("record store connect failed", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		records.Close(closeCtx)
	}()

	if err := records.EnsureIndexes(ctx); err != nil {
		log.Fatal("index creation failed", zap.Error(err))
	}

	generator := dialogue.NewGenerator(dialogue.Config{
		BaseURL: cfg.NIMBaseURL,
		APIKey:  cfg.NIMAPIKey,
		Model:   cfg.NIMModel,
	}, log.Named("dialogue"))

	collector := metrics.New()

	svc := negotiation.NewService(cache, records, generator, collector, negotiation.Defaults{
		Beta:       cfg.DefaultBeta,
		Alpha:      cfg.DefaultAlpha,
		MaxRounds:  cfg.DefaultMaxRounds,
		TTLSeconds: cfg.DefaultSessionTTLSeconds,
	}, log.Named("negotiation"))

	srv := api.NewServer(cfg, svc, cache, records, collector, log.Named("api"))
	srv.RegisterHealthCheck("cache", cache)
	srv.RegisterHealthCheck("records", records)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("server stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("bargain engine stopped")
}
