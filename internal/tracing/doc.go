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

/*
Package tracing provides distributed tracing and metrics for the execution
engine: spans across dispatch, queue consumption, the process pool, and
worker runs, Prometheus metrics export, and correlation ID propagation for
following one execution across process boundaries.

# Quick Start

Create an OTel provider:

	cfg := tracing.Config{
	    ServiceName:    "bifrostd",
	    ServiceVersion: "1.0.0",
	    Sampling: tracing.SamplerConfig{
	        Enabled: true,
	        Rate:    0.1, // 10% sampling
	    },
	}

	provider, err := tracing.NewOTelProviderWithConfig(cfg)

Get a tracer and create spans:

	tracer := provider.Tracer("dispatch")

	ctx, span := tracer.Start(ctx, "dispatch-execution",
	    tracing.WithSpanAttributes(map[string]any{
	        "execution_id": executionID,
	    }),
	)
	defer span.End()

# Correlation IDs

Correlation IDs link a dispatch request to its consumer, pool, and worker spans:

	correlationID := tracing.FromContext(ctx)
	req.Header.Set("X-Correlation-ID", string(correlationID))
	handler = tracing.CorrelationMiddleware(handler)

# Metrics Collection

	collector := provider.MetricsCollector()
	collector.RecordExecutionStart(ctx, executionID, workflowName)
	collector.RecordExecutionComplete(ctx, executionID, workflowName, "SUCCESS", duration)

Metrics exposed at /metrics:

  - bifrost_executions_total{workflow}
  - bifrost_execution_duration_seconds{workflow,status}
  - bifrost_worker_exits_total{workflow,reason}
  - bifrost_poison_messages_total{workflow}
  - bifrost_queue_depth
  - bifrost_active_executions

# Key Components

  - OTelProvider: OpenTelemetry SDK wrapper implementing TracerProvider
  - MetricsCollector: Prometheus metrics recording
  - CorrelationID: Request correlation across the dispatch/consumer/pool/worker chain
  - Sampler: Configurable trace sampling, with forced sampling for error spans
*/
package tracing
