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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got: %v", err)
	}
	if cfg.Pool.CancelCheckInterval != 250*time.Millisecond {
		t.Errorf("expected cancel_check_interval default of 250ms, got %v", cfg.Pool.CancelCheckInterval)
	}
	if cfg.Queue.DeadLetterBatchSize != 32 {
		t.Errorf("expected dead_letter_batch_size default of 32, got %d", cfg.Queue.DeadLetterBatchSize)
	}
	if cfg.ObjectStore.InlineSizeLimitBytes != 1024 {
		t.Errorf("expected inline_size_limit_bytes default of 1024, got %d", cfg.ObjectStore.InlineSizeLimitBytes)
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bifrost.yaml")
	contents := []byte(`
log:
  level: debug
queue:
  backend: redis
  redis_addr: localhost:6379
pool:
  max_workers: 4
`)
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected Load to succeed, got: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log.level 'debug', got %q", cfg.Log.Level)
	}
	if cfg.Queue.Backend != "redis" || cfg.Queue.RedisAddr != "localhost:6379" {
		t.Errorf("expected redis queue config, got %+v", cfg.Queue)
	}
	if cfg.Pool.MaxWorkers != 4 {
		t.Errorf("expected pool.max_workers 4, got %d", cfg.Pool.MaxWorkers)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected store.driver to keep default 'sqlite', got %q", cfg.Store.Driver)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bifrost.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	t.Setenv("BIFROST_LOG_LEVEL", "trace")
	t.Setenv("BIFROST_POOL_MAX_WORKERS", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected Load to succeed, got: %v", err)
	}
	if cfg.Log.Level != "trace" {
		t.Errorf("expected BIFROST_LOG_LEVEL to override file, got %q", cfg.Log.Level)
	}
	if cfg.Pool.MaxWorkers != 8 {
		t.Errorf("expected BIFROST_POOL_MAX_WORKERS to override default, got %d", cfg.Pool.MaxWorkers)
	}
}

func TestValidate_RejectsUnknownQueueBackend(t *testing.T) {
	cfg := Default()
	cfg.Queue.Backend = "sqs"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported queue backend")
	}
}

func TestValidate_RequiresRedisAddrForRedisBackend(t *testing.T) {
	cfg := Default()
	cfg.Queue.Backend = "redis"
	cfg.Queue.RedisAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when redis backend has no address")
	}
}

func TestValidate_RequiresBroadcastListenWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.Broadcast.Enabled = true
	cfg.Broadcast.Listen = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when broadcast is enabled with no listen address")
	}
}

func TestValidate_RejectsNonPositivePoolSettings(t *testing.T) {
	cfg := Default()
	cfg.Pool.MaxWorkers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero max_workers")
	}
}

func TestValidate_RejectsUnknownTracingExporter(t *testing.T) {
	cfg := Default()
	cfg.Tracing.Exporter = "jaeger"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported tracing exporter")
	}
}

func TestValidate_RequiresEndpointForOTLPExporter(t *testing.T) {
	cfg := Default()
	cfg.Tracing.Exporter = "otlp-grpc"
	cfg.Tracing.Endpoint = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when otlp-grpc exporter has no endpoint")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error loading a nonexistent config file")
	}
}
