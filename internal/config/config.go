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

// Package config loads Bifrost's runtime configuration. It follows the same
// manual, Viper-free approach as the rest of the module: a YAML file
// supplies defaults and BIFROST_*-prefixed environment variables override
// individual fields, which is how the daemon and worker binaries pick up
// per-deployment settings without a config-management dependency.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete Bifrost runtime configuration.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Queue       QueueConfig       `yaml:"queue"`
	KV          KVConfig          `yaml:"kv"`
	Store       StoreConfig       `yaml:"store"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Pool        PoolConfig        `yaml:"pool"`
	Consumer    ConsumerConfig    `yaml:"consumer"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Broadcast   BroadcastConfig   `yaml:"broadcast"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// LogConfig mirrors internal/log.Config in yaml-addressable form.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// QueueConfig selects and configures the execution-request queue.
type QueueConfig struct {
	// Backend is "memory" or "redis". Default: memory.
	Backend string `yaml:"backend"`
	// RedisAddr is the broker address when Backend is "redis".
	RedisAddr string `yaml:"redis_addr"`
	// DeadLetterInterval is how often the poison-queue processor sweeps for
	// stuck messages even without a new arrival. Default: 5m.
	DeadLetterInterval time.Duration `yaml:"dead_letter_interval"`
	// DeadLetterBatchSize caps messages reaped per sweep. Default: 32.
	DeadLetterBatchSize int `yaml:"dead_letter_batch_size"`
	// MaxDeliveryAttempts is the delivery count after which a message is
	// considered poisoned. Default: 5.
	MaxDeliveryAttempts int `yaml:"max_delivery_attempts"`
}

// KVConfig configures the worker-to-pool handshake store (H).
type KVConfig struct {
	// Addr is the redis address backing the handshake KV. It is required:
	// bifrostd and bifrost-worker both refuse to start when it is empty.
	Addr string `yaml:"addr"`
	// EntryTTL bounds every handshake key (context/result/cancel).
	// Default: 1h.
	EntryTTL time.Duration `yaml:"entry_ttl"`
}

// StoreConfig configures the execution record store and its indexes.
type StoreConfig struct {
	// Driver is "sqlite" (the only supported driver today).
	Driver string `yaml:"driver"`
	// DSN is the modernc.org/sqlite data source, e.g. "file:bifrost.db".
	DSN string `yaml:"dsn"`
	// PendingStuckAfter and RunningStuckAfter bound get_stuck's two scans.
	PendingStuckAfter time.Duration `yaml:"pending_stuck_after"`
	RunningStuckAfter time.Duration `yaml:"running_stuck_after"`
}

// ObjectStoreConfig configures the collaborator blob store used when an
// execution's logs, variables, or result spill out of the inline record.
type ObjectStoreConfig struct {
	// Backend is "fs" (local filesystem) or "none" (no object store: nothing
	// is spilled and results stay inline whatever their size).
	Backend string `yaml:"backend"`
	// BaseDir is the root directory for the fs backend.
	BaseDir string `yaml:"base_dir"`
	// InlineSizeLimitBytes is the spill threshold (invariant I3). Default: 1024.
	InlineSizeLimitBytes int `yaml:"inline_size_limit_bytes"`
}

// PoolConfig configures the process pool.
type PoolConfig struct {
	// WorkerBinary is the path to the bifrost-worker executable.
	WorkerBinary string `yaml:"worker_binary"`
	// MaxWorkers caps concurrently spawned worker processes.
	MaxWorkers int `yaml:"max_workers"`
	// CancelCheckInterval is the monitor loop period. Default: 250ms.
	CancelCheckInterval time.Duration `yaml:"cancel_check_interval"`
	// GracefulShutdown is how long SIGTERM is given before SIGKILL.
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	// DefaultTimeout is used when a workflow declares none. Default: 1800s.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// ConsumerConfig configures the queue consumer's cancellation polling.
type ConsumerConfig struct {
	// CancelPollInterval is how often the consumer checks for a CANCELLING
	// request flag while C5.execute is in flight.
	CancelPollInterval time.Duration `yaml:"cancel_poll_interval"`
	// DefaultPendingTimeout and DefaultRunningTimeout feed get_stuck.
	DefaultPendingTimeout time.Duration `yaml:"default_pending_timeout"`
	DefaultRunningTimeout time.Duration `yaml:"default_running_timeout"`
}

// DiscoveryConfig configures workspace scanning for workflows and data providers.
type DiscoveryConfig struct {
	// WorkspaceDirs are roots scanned for workflow/data-provider source files.
	WorkspaceDirs []string `yaml:"workspace_dirs"`
	// Patterns are doublestar globs matched under each workspace dir.
	Patterns []string `yaml:"patterns"`
	// Watch enables fsnotify-driven re-discovery on file changes.
	Watch bool `yaml:"watch"`
}

// BroadcastConfig configures the optional real-time broadcaster. It is
// disabled by default; the dispatcher and consumer degrade to no-ops when it
// has no listen address configured.
type BroadcastConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// DispatchConfig configures the dispatcher's sync/async decision surface.
type DispatchConfig struct {
	// SyncTimeout bounds how long a sync dispatch will wait before the
	// caller gets a timeout response even though the worker keeps running.
	SyncTimeout time.Duration `yaml:"sync_timeout"`
}

// TracingConfig selects where spans go after they're recorded.
type TracingConfig struct {
	// Exporter is "stdout", "otlp-grpc", "otlp-http", or "none". Default: stdout.
	Exporter string `yaml:"exporter"`
	// Endpoint is the collector address for otlp-grpc/otlp-http. Ignored
	// otherwise.
	Endpoint string `yaml:"endpoint"`
	// Insecure disables TLS for otlp-grpc/otlp-http, for talking to a
	// collector over plaintext in development.
	Insecure bool `yaml:"insecure"`
}

// Default returns a Config populated with the engine's documented defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Queue: QueueConfig{
			Backend:             "memory",
			DeadLetterInterval:  5 * time.Minute,
			DeadLetterBatchSize: 32,
			MaxDeliveryAttempts: 5,
		},
		KV: KVConfig{EntryTTL: time.Hour},
		Store: StoreConfig{
			Driver:            "sqlite",
			DSN:               "file:bifrost.db",
			PendingStuckAfter: 10 * time.Minute,
			RunningStuckAfter: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Backend:              "fs",
			BaseDir:              "./data/objects",
			InlineSizeLimitBytes: 1024,
		},
		Pool: PoolConfig{
			WorkerBinary:        "bifrost-worker",
			MaxWorkers:          16,
			CancelCheckInterval: 250 * time.Millisecond,
			GracefulShutdown:    3 * time.Second,
			DefaultTimeout:      1800 * time.Second,
		},
		Consumer: ConsumerConfig{
			CancelPollInterval:    250 * time.Millisecond,
			DefaultPendingTimeout: 10 * time.Minute,
			DefaultRunningTimeout: 30 * time.Minute,
		},
		Discovery: DiscoveryConfig{
			Patterns: []string{"**/*.yaml", "**/*.yml"},
		},
		Dispatch: DispatchConfig{SyncTimeout: 30 * time.Second},
		Tracing:  TracingConfig{Exporter: "stdout"},
	}
}

// Load reads a YAML config file if path is non-empty, layers BIFROST_*
// environment overrides on top, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers BIFROST_*-prefixed environment variables over an
// already-loaded config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BIFROST_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("BIFROST_LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv("BIFROST_QUEUE_BACKEND"); v != "" {
		cfg.Queue.Backend = v
	}
	if v := os.Getenv("BIFROST_QUEUE_REDIS_ADDR"); v != "" {
		cfg.Queue.RedisAddr = v
	}
	if v := os.Getenv("BIFROST_KV_ADDR"); v != "" {
		cfg.KV.Addr = v
	}
	if v := os.Getenv("BIFROST_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("BIFROST_OBJECT_STORE_BASE_DIR"); v != "" {
		cfg.ObjectStore.BaseDir = v
	}
	if v := os.Getenv("BIFROST_WORKER_BINARY"); v != "" {
		cfg.Pool.WorkerBinary = v
	}
	if v := os.Getenv("BIFROST_POOL_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MaxWorkers = n
		}
	}
	if v := os.Getenv("BIFROST_BROADCAST_ENABLED"); v == "true" || v == "1" {
		cfg.Broadcast.Enabled = true
	}
	if v := os.Getenv("BIFROST_BROADCAST_LISTEN"); v != "" {
		cfg.Broadcast.Listen = v
	}
	if v := os.Getenv("BIFROST_TRACING_EXPORTER"); v != "" {
		cfg.Tracing.Exporter = v
	}
	if v := os.Getenv("BIFROST_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
}

// Validate checks invariants Load relies on before handing the config to the
// rest of the engine.
func (c *Config) Validate() error {
	var problems []string

	switch c.Queue.Backend {
	case "memory", "redis":
	default:
		problems = append(problems, fmt.Sprintf("queue.backend: unsupported value %q", c.Queue.Backend))
	}
	if c.Queue.Backend == "redis" && c.Queue.RedisAddr == "" {
		problems = append(problems, "queue.redis_addr is required when queue.backend is redis")
	}
	if c.Store.Driver != "sqlite" {
		problems = append(problems, fmt.Sprintf("store.driver: unsupported value %q", c.Store.Driver))
	}
	if c.ObjectStore.InlineSizeLimitBytes <= 0 {
		problems = append(problems, "object_store.inline_size_limit_bytes must be positive")
	}
	if c.Pool.MaxWorkers <= 0 {
		problems = append(problems, "pool.max_workers must be positive")
	}
	if c.Pool.CancelCheckInterval <= 0 {
		problems = append(problems, "pool.cancel_check_interval must be positive")
	}
	if c.Broadcast.Enabled && c.Broadcast.Listen == "" {
		problems = append(problems, "broadcast.listen is required when broadcast.enabled is true")
	}
	switch c.Tracing.Exporter {
	case "stdout", "otlp-grpc", "otlp-http", "none", "":
	default:
		problems = append(problems, fmt.Sprintf("tracing.exporter: unsupported value %q", c.Tracing.Exporter))
	}
	if (c.Tracing.Exporter == "otlp-grpc" || c.Tracing.Exporter == "otlp-http") && c.Tracing.Endpoint == "" {
		problems = append(problems, "tracing.endpoint is required when tracing.exporter is otlp-grpc or otlp-http")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
