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
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SubscriberCounter reports how many broadcaster subscribers are currently
// attached, for the bifrost_broadcast_subscribers gauge.
type SubscriberCounter interface {
	TotalSubscriberCount() int
	SubscriberMapKeyCount() int
}

// ExecutionCounter reports how many in-flight executions a component holds
// in memory, for the bifrost_executions_in_memory gauge.
type ExecutionCounter interface {
	ExecutionCount() int
}

// MetricsCollector collects OpenTelemetry metrics for the execution engine,
// exported through the Prometheus bridge registered by NewOTelProvider.
type MetricsCollector struct {
	meter metric.Meter

	executionsTotal    metric.Int64Counter
	workerExitsTotal   metric.Int64Counter
	poisonMessagesTotal metric.Int64Counter

	executionDuration metric.Float64Histogram
	workerRSSBytes    metric.Int64Histogram
	workerCPUSeconds  metric.Float64Histogram

	activeExecutions   map[string]bool
	activeExecutionsMu sync.RWMutex
	queueDepth         int64
	queueDepthMu       sync.RWMutex

	subscriberCounter SubscriberCounter
	executionCounter  ExecutionCounter
	subscriberMu      sync.RWMutex
	executionCounterMu sync.RWMutex
}

// NewMetricsCollector creates a new metrics collector using the given meter provider.
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("bifrost")

	mc := &MetricsCollector{
		meter:            meter,
		activeExecutions: make(map[string]bool),
	}

	var err error

	mc.executionsTotal, err = meter.Int64Counter(
		"bifrost_executions_total",
		metric.WithDescription("Total number of executions dispatched"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, err
	}

	mc.workerExitsTotal, err = meter.Int64Counter(
		"bifrost_worker_exits_total",
		metric.WithDescription("Total number of worker process exits, by reason"),
		metric.WithUnit("{exit}"),
	)
	if err != nil {
		return nil, err
	}

	mc.poisonMessagesTotal, err = meter.Int64Counter(
		"bifrost_poison_messages_total",
		metric.WithDescription("Total number of queue messages moved to the dead-letter queue"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	mc.executionDuration, err = meter.Float64Histogram(
		"bifrost_execution_duration_seconds",
		metric.WithDescription("Execution wall-clock duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.workerRSSBytes, err = meter.Int64Histogram(
		"bifrost_worker_peak_rss_bytes",
		metric.WithDescription("Peak resident set size reported by a worker process"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	mc.workerCPUSeconds, err = meter.Float64Histogram(
		"bifrost_worker_cpu_seconds",
		metric.WithDescription("Total CPU time (user+system) reported by a worker process"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"bifrost_active_executions",
		metric.WithDescription("Number of currently RUNNING executions"),
		metric.WithUnit("{execution}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.activeExecutionsMu.RLock()
			count := len(mc.activeExecutions)
			mc.activeExecutionsMu.RUnlock()
			observer.Observe(int64(count))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"bifrost_queue_depth",
		metric.WithDescription("Number of pending executions in the queue"),
		metric.WithUnit("{execution}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.queueDepthMu.RLock()
			depth := mc.queueDepth
			mc.queueDepthMu.RUnlock()
			observer.Observe(depth)
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"bifrost_broadcast_subscribers",
		metric.WithDescription("Number of active broadcaster subscribers across all groups"),
		metric.WithUnit("{subscriber}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.subscriberMu.RLock()
			counter := mc.subscriberCounter
			mc.subscriberMu.RUnlock()
			if counter != nil {
				observer.Observe(int64(counter.TotalSubscriberCount()))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"bifrost_broadcast_groups",
		metric.WithDescription("Number of distinct broadcaster groups with at least one subscriber"),
		metric.WithUnit("{group}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.subscriberMu.RLock()
			counter := mc.subscriberCounter
			mc.subscriberMu.RUnlock()
			if counter != nil {
				observer.Observe(int64(counter.SubscriberMapKeyCount()))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"bifrost_goroutines",
		metric.WithDescription("Number of active goroutines"),
		metric.WithUnit("{goroutine}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(runtime.NumGoroutine()))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"bifrost_executions_in_memory",
		metric.WithDescription("Number of executions held in an in-process cache"),
		metric.WithUnit("{execution}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.executionCounterMu.RLock()
			counter := mc.executionCounter
			mc.executionCounterMu.RUnlock()
			if counter != nil {
				observer.Observe(int64(counter.ExecutionCount()))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"bifrost_heap_bytes",
		metric.WithDescription("Current heap allocation in bytes"),
		metric.WithUnit("By"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			observer.Observe(int64(m.HeapAlloc))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordExecutionStart records an execution entering RUNNING.
func (mc *MetricsCollector) RecordExecutionStart(ctx context.Context, executionID, workflowName string) {
	mc.activeExecutionsMu.Lock()
	mc.activeExecutions[executionID] = true
	mc.activeExecutionsMu.Unlock()

	mc.executionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow", workflowName)))
}

// RecordExecutionComplete records an execution reaching a terminal status.
func (mc *MetricsCollector) RecordExecutionComplete(ctx context.Context, executionID, workflowName, status string, duration time.Duration) {
	mc.activeExecutionsMu.Lock()
	delete(mc.activeExecutions, executionID)
	mc.activeExecutionsMu.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("workflow", workflowName),
		attribute.String("status", status),
	}

	mc.executionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordWorkerExit records a worker process exit and its resource usage.
func (mc *MetricsCollector) RecordWorkerExit(ctx context.Context, workflowName, exitReason string, peakRSSBytes int64, cpuTotalSeconds float64) {
	attrs := []attribute.KeyValue{
		attribute.String("workflow", workflowName),
		attribute.String("reason", exitReason),
	}
	mc.workerExitsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if peakRSSBytes > 0 {
		mc.workerRSSBytes.Record(ctx, peakRSSBytes, metric.WithAttributes(attrs...))
	}
	if cpuTotalSeconds > 0 {
		mc.workerCPUSeconds.Record(ctx, cpuTotalSeconds, metric.WithAttributes(attrs...))
	}
}

// RecordPoisonMessage records a queue message moved to the dead-letter queue.
func (mc *MetricsCollector) RecordPoisonMessage(ctx context.Context, workflowName string) {
	mc.poisonMessagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow", workflowName)))
}

// IncrementQueueDepth increments the pending execution queue depth.
func (mc *MetricsCollector) IncrementQueueDepth() {
	mc.queueDepthMu.Lock()
	mc.queueDepth++
	mc.queueDepthMu.Unlock()
}

// DecrementQueueDepth decrements the pending execution queue depth.
func (mc *MetricsCollector) DecrementQueueDepth() {
	mc.queueDepthMu.Lock()
	if mc.queueDepth > 0 {
		mc.queueDepth--
	}
	mc.queueDepthMu.Unlock()
}

// SetSubscriberCounter sets the subscriber counter backing the broadcast gauges.
func (mc *MetricsCollector) SetSubscriberCounter(counter SubscriberCounter) {
	mc.subscriberMu.Lock()
	mc.subscriberCounter = counter
	mc.subscriberMu.Unlock()
}

// SetExecutionCounter sets the execution counter backing the in-memory gauge.
func (mc *MetricsCollector) SetExecutionCounter(counter ExecutionCounter) {
	mc.executionCounterMu.Lock()
	mc.executionCounter = counter
	mc.executionCounterMu.Unlock()
}
