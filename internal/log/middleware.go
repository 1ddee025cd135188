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

package log

import (
	"log/slog"
	"time"
)

// DispatchRequest represents an incoming dispatch request for logging purposes.
type DispatchRequest struct {
	// MessageType is the type of dispatch request (e.g., "execute_workflow", "execute_data_provider").
	MessageType string

	// CorrelationID is the correlation ID for tracing the request.
	CorrelationID string

	// RequestID is the unique ID for this specific request.
	RequestID string

	// RemoteAddr is the remote address of the client.
	RemoteAddr string

	// Metadata contains additional request metadata.
	Metadata map[string]interface{}
}

// DispatchResponse represents a dispatch response for logging purposes.
type DispatchResponse struct {
	// Success indicates whether the request was successful.
	Success bool

	// Error is the error message if the request failed.
	Error string

	// DurationMs is the duration of the request in milliseconds.
	DurationMs int64

	// Metadata contains additional response metadata.
	Metadata map[string]interface{}
}

// LogDispatchRequest logs an incoming dispatch request.
func LogDispatchRequest(logger *slog.Logger, req *DispatchRequest) {
	attrs := []any{
		"event", "dispatch_request",
		"message_type", req.MessageType,
		"remote", req.RemoteAddr,
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", req.CorrelationID)
	}

	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}

	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Info("dispatch request received", attrs...)
}

// LogDispatchResponse logs a dispatch response.
func LogDispatchResponse(logger *slog.Logger, req *DispatchRequest, resp *DispatchResponse) {
	attrs := []any{
		"event", "dispatch_response",
		"message_type", req.MessageType,
		"success", resp.Success,
		"duration_ms", resp.DurationMs,
		"remote", req.RemoteAddr,
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", req.CorrelationID)
	}

	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}

	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
	}

	for k, v := range resp.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "dispatch request completed"

	if !resp.Success {
		level = slog.LevelError
		message = "dispatch request failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// DispatchMiddleware wraps a dispatch handler function with logging.
// It logs the request when it arrives and the response when it completes.
type DispatchMiddleware struct {
	logger *slog.Logger
}

// NewDispatchMiddleware creates a new dispatch logging middleware.
func NewDispatchMiddleware(logger *slog.Logger) *DispatchMiddleware {
	return &DispatchMiddleware{
		logger: logger,
	}
}

// Handler wraps a function that processes a dispatch request.
// It logs the request and response automatically.
func (m *DispatchMiddleware) Handler(req *DispatchRequest, handler func() error) error {
	start := time.Now()

	// Log incoming request
	LogDispatchRequest(m.logger, req)

	// Execute handler
	err := handler()

	// Calculate duration
	duration := time.Since(start).Milliseconds()

	// Log response
	resp := &DispatchResponse{
		Success:    err == nil,
		DurationMs: duration,
	}

	if err != nil {
		resp.Error = err.Error()
	}

	LogDispatchResponse(m.logger, req, resp)

	return err
}

// HandlerWithMetadata wraps a function that processes a dispatch request and returns metadata.
// It logs the request and response with the returned metadata.
func (m *DispatchMiddleware) HandlerWithMetadata(req *DispatchRequest, handler func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	start := time.Now()

	// Log incoming request
	LogDispatchRequest(m.logger, req)

	// Execute handler
	metadata, err := handler()

	// Calculate duration
	duration := time.Since(start).Milliseconds()

	// Log response
	resp := &DispatchResponse{
		Success:    err == nil,
		DurationMs: duration,
		Metadata:   metadata,
	}

	if err != nil {
		resp.Error = err.Error()
	}

	LogDispatchResponse(m.logger, req, resp)

	return metadata, err
}
