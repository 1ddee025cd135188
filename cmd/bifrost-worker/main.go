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

// Command bifrost-worker is the process internal/pool spawns per async
// execution. It reads H.context, runs it through internal/worker.Run, and
// writes H.result before exiting — everything heavier (sync dispatch,
// data-provider calls, the HTTP/websocket surface) lives in cmd/bifrostd.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/tombee-labs/bifrost-engine/internal/config"
	"github.com/tombee-labs/bifrost-engine/internal/discovery"
	"github.com/tombee-labs/bifrost-engine/internal/kv"
	"github.com/tombee-labs/bifrost-engine/internal/log"
	"github.com/tombee-labs/bifrost-engine/internal/logstream"
	"github.com/tombee-labs/bifrost-engine/internal/registrations"
	"github.com/tombee-labs/bifrost-engine/internal/script"
	"github.com/tombee-labs/bifrost-engine/internal/worker"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		executionID = flag.String("execution-id", "", "execution id to read from the handshake store and run")
		showVersion = flag.Bool("version", false, "show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("bifrost-worker %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}
	if *executionID == "" {
		fmt.Fprintln(os.Stderr, "bifrost-worker: --execution-id is required")
		os.Exit(2)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, logger, *executionID); err != nil {
		logger.Error("worker run failed", slog.String("execution_id", *executionID), slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, executionID string) error {
	if cfg.KV.Addr == "" {
		return fmt.Errorf("bifrost-worker: config.kv.addr is required to reach the handshake store")
	}
	store := kv.NewRedisStore(&redis.Options{Addr: cfg.KV.Addr})
	defer store.Close()

	raw, err := store.GetContext(ctx, executionID)
	if err != nil {
		return fmt.Errorf("bifrost-worker: read H.context: %w", err)
	}
	req, err := worker.DecodeRequest(raw)
	if err != nil {
		return fmt.Errorf("bifrost-worker: %w", err)
	}

	registry := discovery.NewRegistry()
	if err := registrations.Register(registry); err != nil {
		return fmt.Errorf("bifrost-worker: register compiled-in handlers: %w", err)
	}
	if metas, issues := scanManifests(cfg, logger); len(metas) > 0 || len(issues) > 0 {
		registry.RefreshMetadata(metas)
	}

	var logs logstream.Store
	if cfg.Store.DSN != "" {
		s, err := logstream.OpenSQLiteStore(ctx, cfg.Store.DSN)
		if err != nil {
			logger.Warn("bifrost-worker: failed to open log stream, logs will not persist", slog.Any("error", err))
		} else {
			defer s.Close()
			logs = s
		}
	}

	// A spawned worker has no handle on the daemon's in-process websocket
	// hub, so live log/status broadcast is unavailable from this path —
	// the deps.Broadcast field is left nil (internal/worker treats that as
	// best-effort no-op, matching broadcast.Nop's own contract). Clients
	// tailing an async execution's logs read internal/logstream directly.
	deps := worker.Deps{
		Registry: registry,
		Scripts:  script.New(),
		Logs:     logs,
		Logger:   logger,
	}

	result := worker.Run(ctx, deps, req)
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("bifrost-worker: encode result: %w", err)
	}
	if err := store.PutResult(ctx, executionID, data, cfg.KV.EntryTTL); err != nil {
		return fmt.Errorf("bifrost-worker: write H.result: %w", err)
	}
	return nil
}

func scanManifests(cfg *config.Config, logger *slog.Logger) ([]discovery.Metadata, []discovery.ScanIssue) {
	if len(cfg.Discovery.WorkspaceDirs) == 0 {
		return nil, nil
	}
	scanner := discovery.Scanner{WorkspaceDirs: cfg.Discovery.WorkspaceDirs, Patterns: cfg.Discovery.Patterns}
	metas, issues, err := scanner.Scan()
	if err != nil {
		logger.Warn("bifrost-worker: manifest scan failed", slog.Any("error", err))
		return nil, nil
	}
	return metas, issues
}
