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

package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tombee-labs/bifrost-engine/internal/tracing/export"
)

// Config configures a TracerProvider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Sampling       SamplerConfig
	// Exporter selects where recorded spans go. A zero value behaves like
	// export.Config{Kind: "none"}: spans are recorded but never leave the
	// process, which is only useful for the SpanContext-propagation tests.
	Exporter export.Config
}

// SpanKind classifies the relationship a span has to its parent and children,
// mirroring the OpenTelemetry span kinds without requiring callers outside
// this package to import the OTel SDK directly.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindClient
	SpanKindServer
	SpanKindProducer
	SpanKindConsumer
)

// StatusCode is a span's terminal status.
type StatusCode int

const (
	StatusCodeUnset StatusCode = iota
	StatusCodeOK
	StatusCodeError
)

// TraceContext is the propagable identity of a span.
type TraceContext struct {
	TraceID    string
	SpanID     string
	TraceFlags byte
	TraceState string
}

// SpanConfig accumulates span-start options.
type SpanConfig struct {
	SpanKind   SpanKind
	Attributes map[string]any
	Timestamp  *int64 // unix nanos
}

// SpanOption configures a span at start time.
type SpanOption interface {
	ApplySpanOption(*SpanConfig)
}

type spanKindOption SpanKind

func (o spanKindOption) ApplySpanOption(cfg *SpanConfig) { cfg.SpanKind = SpanKind(o) }

// WithSpanKind sets the span's kind.
func WithSpanKind(kind SpanKind) SpanOption { return spanKindOption(kind) }

type spanAttributesOption map[string]any

func (o spanAttributesOption) ApplySpanOption(cfg *SpanConfig) {
	if cfg.Attributes == nil {
		cfg.Attributes = make(map[string]any, len(o))
	}
	for k, v := range o {
		cfg.Attributes[k] = v
	}
}

// WithSpanAttributes sets initial span attributes.
func WithSpanAttributes(attrs map[string]any) SpanOption { return spanAttributesOption(attrs) }

type spanTimestampOption int64

func (o spanTimestampOption) ApplySpanOption(cfg *SpanConfig) {
	ts := int64(o)
	cfg.Timestamp = &ts
}

// WithSpanTimestamp overrides the span's start time (unix nanos).
func WithSpanTimestamp(unixNanos int64) SpanOption { return spanTimestampOption(unixNanos) }

// SpanEndConfig accumulates span-end options.
type SpanEndConfig struct {
	Timestamp *int64
}

// SpanEndOption configures a span at end time.
type SpanEndOption interface {
	ApplySpanEndOption(*SpanEndConfig)
}

type spanEndTimestampOption int64

func (o spanEndTimestampOption) ApplySpanEndOption(cfg *SpanEndConfig) {
	ts := int64(o)
	cfg.Timestamp = &ts
}

// WithEndTimestamp overrides the span's end time (unix nanos).
func WithEndTimestamp(unixNanos int64) SpanEndOption { return spanEndTimestampOption(unixNanos) }

// SpanHandle is a started span.
type SpanHandle interface {
	End(opts ...SpanEndOption)
	SetStatus(code StatusCode, message string)
	SetAttributes(attrs map[string]any)
	AddEvent(name string, attrs map[string]any)
	SpanContext() TraceContext
	RecordError(err error)
}

// Tracer starts spans for one instrumentation scope (e.g. "dispatch", "pool").
type Tracer interface {
	Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanHandle)
}

// TracerProvider is the top-level tracing collaborator each long-running
// component (dispatcher, consumer, pool) holds for the lifetime of the process.
type TracerProvider interface {
	Tracer(name string) Tracer
	Shutdown(ctx context.Context) error
	ForceFlush(ctx context.Context) error
}

// toAttribute converts a loosely-typed span attribute value into an
// OpenTelemetry attribute.KeyValue, falling back to a string representation
// for types with no direct OTel mapping.
func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

func timeFromNanos(unixNanos int64) time.Time {
	return time.Unix(0, unixNanos)
}
