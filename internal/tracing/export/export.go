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

// Package export builds the OpenTelemetry span exporter internal/tracing
// attaches to its TracerProvider: stdout for local development, OTLP over
// gRPC or HTTP for a real collector.
package export

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

// Config selects and configures a span exporter.
type Config struct {
	// Kind is "stdout", "otlp-grpc", "otlp-http", or "none".
	Kind string
	// Endpoint is the collector address for otlp-grpc/otlp-http.
	Endpoint string
	// Insecure disables TLS for otlp-grpc/otlp-http.
	Insecure bool
	// Writer is the stdout exporter's destination. Defaults to os.Stdout.
	Writer io.Writer
}

// New builds the exporter Config names. It returns (nil, nil) for "none" or
// an empty Kind, which callers treat as "record spans but export nothing."
func New(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "stdout":
		return newConsoleExporter(cfg)
	case "otlp-grpc":
		return newOTLPGRPCExporter(ctx, cfg)
	case "otlp-http":
		return newOTLPHTTPExporter(ctx, cfg)
	default:
		return nil, fmt.Errorf("tracing: unsupported exporter kind %q", cfg.Kind)
	}
}

// newConsoleExporter prints spans to Writer (or stdout), pretty-printed —
// the default for a plain `bifrostd` run with no collector configured.
func newConsoleExporter(cfg Config) (trace.SpanExporter, error) {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(writer), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("tracing: create stdout exporter: %w", err)
	}
	return exporter, nil
}

func newOTLPGRPCExporter(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tracing: create otlp grpc exporter: %w", err)
	}
	return exporter, nil
}

func newOTLPHTTPExporter(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	} else {
		opts = append(opts, otlptracehttp.WithTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tracing: create otlp http exporter: %w", err)
	}
	return exporter, nil
}
