// Package main replays the two "posts" screens headlessly on top of the
// query client: a post list and a post detail, visited in a loop. Every
// render is logged, so the cache behavior is visible: the list is served
// from cache for five minutes, a detail is refetched in the background
// once it is older than STALE_TIME.
//
// Run with: go run ./cmd/posts
//
//	SOURCE=http   fetch from jsonplaceholder (default)
//	SOURCE=nats   serve and fetch posts over NATS (needs NATS_URL, JetStream)
//
// Devtools: http://localhost:8080/devtools/queries
// Prometheus metrics: http://localhost:8080/metrics
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codewandler/query-go/adapters/devtools"
	"github.com/codewandler/query-go/adapters/nats"
	promadapter "github.com/codewandler/query-go/adapters/prometheus"
	"github.com/codewandler/query-go/core/query"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := loadConfig()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("demo failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, log *slog.Logger) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	client := query.NewClient(
		query.WithContext(ctx),
		query.WithLogger(log),
		query.WithMetrics(promadapter.NewQueryMetrics(reg)),
		query.WithCacheTime(cfg.CacheTime),
	)
	defer client.Close()

	src, cleanup, err := newSource(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("source %s: %w", cfg.Source, err)
	}
	defer cleanup()

	mux := http.NewServeMux()
	mux.Handle("/devtools/", http.StripPrefix("/devtools", devtools.NewHandler(client, devtools.WithLogger(log))))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		log.Info("http server starting", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("=== Posts Demo Ready ===",
		slog.String("source", cfg.Source),
		slog.Duration("stale_time", cfg.StaleTime),
		slog.Duration("cache_time", cfg.CacheTime),
	)

	return newApp(client, src, cfg.StaleTime, log).run(ctx, cfg.Navigate)
}

func newSource(ctx context.Context, cfg config, log *slog.Logger) (source, func(), error) {
	if cfg.Source == "http" {
		return newHTTPSource(cfg.BaseURL, cfg.Delay), func() {}, nil
	}

	// the KV store and the requester share one connection
	connect := nats.ReuseConnection(nats.ConnectURL(cfg.NatsURL))

	store, err := nats.NewKVStore(ctx, nats.KVConfig{Connect: connect, Bucket: "posts"})
	if err != nil {
		return nil, nil, err
	}

	nc, closeNc, err := connect()
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	if err := serveNATS(ctx, nc, store, seedPosts(cfg.SeedPosts), cfg.Delay, log); err != nil {
		closeNc()
		store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		closeNc()
		store.Close()
	}
	return &natsSource{nc: nc, timeout: 10 * time.Second}, cleanup, nil
}
