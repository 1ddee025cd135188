// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command bifrostd is the long-running daemon: it wires the dispatcher,
// queue consumer, process pool, and discovery registry together behind a
// thin HTTP surface. cmd/bifrost-worker is the process it spawns per async
// execution; cmd/bifrostctl is the CLI client that talks to it over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tombee-labs/bifrost-engine/internal/api"
	"github.com/tombee-labs/bifrost-engine/internal/broadcast"
	"github.com/tombee-labs/bifrost-engine/internal/cache"
	"github.com/tombee-labs/bifrost-engine/internal/config"
	"github.com/tombee-labs/bifrost-engine/internal/consumer"
	"github.com/tombee-labs/bifrost-engine/internal/discovery"
	"github.com/tombee-labs/bifrost-engine/internal/dispatch"
	"github.com/tombee-labs/bifrost-engine/internal/kv"
	"github.com/tombee-labs/bifrost-engine/internal/log"
	"github.com/tombee-labs/bifrost-engine/internal/logstream"
	"github.com/tombee-labs/bifrost-engine/internal/objectstore"
	"github.com/tombee-labs/bifrost-engine/internal/pool"
	"github.com/tombee-labs/bifrost-engine/internal/queue"
	"github.com/tombee-labs/bifrost-engine/internal/record"
	"github.com/tombee-labs/bifrost-engine/internal/registrations"
	"github.com/tombee-labs/bifrost-engine/internal/script"
	"github.com/tombee-labs/bifrost-engine/internal/tracing"
	"github.com/tombee-labs/bifrost-engine/internal/tracing/export"
	"github.com/tombee-labs/bifrost-engine/internal/worker"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to a YAML config file")
		listenAddr  = flag.String("listen", ":8080", "HTTP listen address")
		showVersion = flag.Bool("version", false, "show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("bifrostd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize daemon", slog.Any("error", err))
		os.Exit(1)
	}
	defer d.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- d.consumer.Run(ctx) }()

	srv := &http.Server{Addr: *listenAddr, Handler: d.router}
	go func() {
		logger.Info("bifrostd listening", slog.String("addr", *listenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("daemon error", slog.Any("error", err))
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", slog.Any("error", err))
	}
}

// daemon holds every long-lived collaborator so Close can release them in
// one place.
type daemon struct {
	router    http.Handler
	consumer  *consumer.Consumer
	records   *record.SQLiteStore
	kv        *kv.RedisStore
	queue     queue.Queue
	objects   objectstore.Store
	logs      logstream.Store
	hub       *broadcast.Hub
	provider  *tracing.OTelProvider
	discovery *discovery.Watcher
}

func (d *daemon) Close() {
	if d.discovery != nil {
		d.discovery.Close()
	}
	if closer, ok := d.logs.(interface{ Close() error }); ok && closer != nil {
		closer.Close()
	}
	if d.records != nil {
		d.records.Close()
	}
	if d.kv != nil {
		d.kv.Close()
	}
	if d.queue != nil {
		d.queue.Close()
	}
	if d.provider != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.provider.Shutdown(shutdownCtx)
	}
}

func newDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	provider, err := tracing.NewOTelProviderWithConfig(tracing.Config{
		ServiceName:    "bifrostd",
		ServiceVersion: version,
		Sampling:       tracing.SamplerConfig{Enabled: true, Rate: 1.0},
		Exporter: export.Config{
			Kind:     cfg.Tracing.Exporter,
			Endpoint: cfg.Tracing.Endpoint,
			Insecure: cfg.Tracing.Insecure,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bifrostd: init tracing: %w", err)
	}
	metrics := provider.MetricsCollector()

	records, err := record.Open(ctx, record.Config{DSN: cfg.Store.DSN, WAL: true})
	if err != nil {
		return nil, fmt.Errorf("bifrostd: open record store: %w", err)
	}

	if cfg.KV.Addr == "" {
		return nil, fmt.Errorf("bifrostd: config.kv.addr is required to reach the handshake store")
	}
	kvStore := kv.NewRedisStore(&redis.Options{Addr: cfg.KV.Addr})

	var objStore objectstore.Store
	switch cfg.ObjectStore.Backend {
	case "fs":
		objStore, err = objectstore.NewFSStore(cfg.ObjectStore.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("bifrostd: init object store: %w", err)
		}
	case "none", "":
		logger.Warn("bifrostd: object store backend disabled, oversized results and logs will fail to spill")
	default:
		return nil, fmt.Errorf("bifrostd: unsupported object_store.backend %q", cfg.ObjectStore.Backend)
	}

	var q queue.Queue
	switch cfg.Queue.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Queue.RedisAddr})
		q = queue.NewRedisQueue(client)
	default:
		q = queue.NewMemoryQueue()
	}

	var logs logstream.Store
	if cfg.Store.DSN != "" {
		logs, err = logstream.OpenSQLiteStore(ctx, cfg.Store.DSN)
		if err != nil {
			logger.Warn("bifrostd: failed to open log stream, logs will not persist", slog.Any("error", err))
		}
	}

	registry := discovery.NewRegistry()
	if err := registrations.Register(registry); err != nil {
		return nil, fmt.Errorf("bifrostd: register compiled-in handlers: %w", err)
	}
	var watcher *discovery.Watcher
	if len(cfg.Discovery.WorkspaceDirs) > 0 {
		scanner := discovery.Scanner{WorkspaceDirs: cfg.Discovery.WorkspaceDirs, Patterns: cfg.Discovery.Patterns}
		metas, issues, err := scanner.Scan()
		if err != nil {
			logger.Warn("bifrostd: initial manifest scan failed", slog.Any("error", err))
		}
		for _, issue := range issues {
			logger.Warn("bifrostd: invalid manifest", slog.String("path", issue.Path), slog.String("issue", issue.Issue.String()))
		}
		registry.RefreshMetadata(metas)

		if cfg.Discovery.Watch {
			watcher, err = discovery.NewWatcher(cfg.Discovery.WorkspaceDirs, logger)
			if err != nil {
				logger.Warn("bifrostd: failed to start manifest watcher", slog.Any("error", err))
			} else {
				watcher.Start(ctx)
				go rescanOnChange(ctx, watcher, scanner, registry, logger)
			}
		}
	}

	var hub *broadcast.Hub
	var bcast broadcast.Broadcaster = broadcast.Nop{}
	if cfg.Broadcast.Enabled {
		hub = broadcast.NewHub(logger)
		bcast = hub
	}

	scriptEngine := script.New()
	workerDeps := worker.Deps{
		Registry:  registry,
		Scripts:   scriptEngine,
		Cache:     cache.New(),
		Logs:      logs,
		Broadcast: bcast,
		Logger:    logger,
	}

	poolDeps := pool.New(cfg.Pool, kvStore, logger, metrics)

	consumerDeps := consumer.Deps{
		Queue:       q,
		Pool:        poolDeps,
		Records:     records,
		KV:          kvStore,
		ObjectStore: objStore,
		Broadcast:   bcast,
		Metrics:     metrics,
		Logger:      logger,
	}
	consumerCfg := consumer.Config{
		Queue:       cfg.Queue,
		Consumer:    cfg.Consumer,
		ObjectStore: cfg.ObjectStore,
	}
	c := consumer.New(consumerDeps, consumerCfg)

	dispatcher := dispatch.New(dispatch.Deps{
		Registry:    registry,
		Records:     records,
		Queue:       q,
		Worker:      workerDeps,
		ObjectStore: objStore,
		Broadcast:   bcast,
		Metrics:     metrics,
		Logger:      logger,
	}, dispatch.Config{
		Dispatch:    cfg.Dispatch,
		Pool:        cfg.Pool,
		ObjectStore: cfg.ObjectStore,
	})

	router := api.NewRouter(api.RouterConfig{Version: version, Commit: commit, BuildDate: buildDate}, api.Deps{
		Dispatcher: dispatcher,
		Records:    records,
		KV:         kvStore,
		Registry:   registry,
		Worker:     workerDeps,
		Logs:       logs,
		Hub:        hub,
		Metrics:    metrics,
		Logger:     logger,
	})
	if handler := provider.MetricsHandler(); handler != nil {
		router.SetMetricsHandler(handler)
	}

	return &daemon{
		router:    router,
		consumer:  c,
		records:   records,
		kv:        kvStore,
		queue:     q,
		objects:   objStore,
		logs:      logs,
		hub:       hub,
		provider:  provider,
		discovery: watcher,
	}, nil
}

// rescanOnChange re-scans and refreshes the registry whenever the watcher
// reports a changed manifest file, draining any events queued while the
// previous scan ran so a burst of edits triggers one scan, not one per file.
func rescanOnChange(ctx context.Context, watcher *discovery.Watcher, scanner discovery.Scanner, registry *discovery.Registry, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-watcher.Events():
			if !ok {
				return
			}
			drain(watcher.Events())
			metas, issues, err := scanner.Scan()
			if err != nil {
				logger.Warn("bifrostd: rescan failed", slog.Any("error", err))
				continue
			}
			for _, issue := range issues {
				logger.Warn("bifrostd: invalid manifest", slog.String("path", issue.Path), slog.String("issue", issue.Issue.String()))
			}
			registry.RefreshMetadata(metas)
			logger.Info("bifrostd: registry refreshed", slog.Int("workflows", len(registry.Workflows())), slog.Int("data_providers", len(registry.DataProviders())))
		}
	}
}

func drain(events <-chan string) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}
